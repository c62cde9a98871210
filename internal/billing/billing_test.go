package billing

import (
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-case-manager/internal/auth"
	"github.com/aldoetobex/legal-case-manager/internal/notify"
	"github.com/aldoetobex/legal-case-manager/internal/testutil"
	"github.com/aldoetobex/legal-case-manager/pkg/models"
	"github.com/aldoetobex/legal-case-manager/pkg/utils"
)

func appAs(db *gorm.DB, uid uuid.UUID, role models.Role) *fiber.App {
	h := NewHandler(db, notify.New(db, nil, ""))
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Use(testutil.InjectAuth(uid, role))
	app.Post("/cases/:id/incomes", h.CreateIncome)
	app.Post("/cases/:id/expenses", h.CreateExpense)
	app.Get("/cases/:id/finance", h.CaseFinance)
	app.Delete("/incomes/:id", h.DeleteIncome)
	app.Delete("/expenses/:id", h.DeleteExpense)
	app.Post("/billings", h.Create)
	app.Get("/billings", h.List)
	app.Get("/billings/:id", h.Detail)
	app.Post("/billings/:id/pay", h.Pay)
	app.Post("/billings/:id/cancel", h.Cancel)
	return app
}

func Test_NewInvoiceNumber_Format(t *testing.T) {
	n := NewInvoiceNumber(time.Date(2026, 4, 9, 0, 0, 0, 0, time.UTC))
	if !regexp.MustCompile(`^INV-202604-[0-9A-F]{6}$`).MatchString(n) {
		t.Fatalf("unexpected invoice number %q", n)
	}
}

func Test_Ledger_Finance(t *testing.T) {
	db := testutil.OpenDB(t)
	adv := testutil.SeedUser(t, db, models.RoleAdvocate, "Ada Advocate")
	cli := testutil.SeedUser(t, db, models.RoleClient, "Carl Client")
	cs := testutil.SeedCase(t, db, adv.ID, cli.ID, models.CaseActive)
	app := appAs(db, adv.ID, models.RoleAdvocate)
	base := "/cases/" + cs.ID.String()

	var inc models.CaseIncome
	resp := testutil.JSON(t, app, http.MethodPost, base+"/incomes", fiber.Map{
		"amount_cents": 500000, "category": "Retainer", "date": "2026-03-02",
	}, &inc)
	if resp.StatusCode != fiber.StatusCreated || inc.Category != "retainer" {
		t.Fatalf("income: %d %+v", resp.StatusCode, inc)
	}
	testutil.JSON(t, app, http.MethodPost, base+"/expenses", fiber.Map{"amount_cents": 120050, "category": "court fees"}, nil)

	resp = testutil.JSON(t, app, http.MethodPost, base+"/expenses", fiber.Map{"amount_cents": -1, "category": "x"}, nil)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("negative amount expected 400, got %d", resp.StatusCode)
	}

	var fin CaseFinance
	testutil.JSON(t, app, http.MethodGet, base+"/finance", nil, &fin)
	if fin.IncomeCents != 500000 || fin.ExpenseCents != 120050 || fin.BalanceCents != 379950 {
		t.Fatalf("unexpected finance: %+v", fin)
	}

	resp = testutil.JSON(t, appAs(db, cli.ID, models.RoleClient), http.MethodGet, base+"/finance", nil, nil)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("client finance expected 403, got %d", resp.StatusCode)
	}

	var acts []models.CaseActivity
	db.Where("case_id = ? AND action_type = ?", cs.ID, utils.ActionIncomeRecorded).Find(&acts)
	if len(acts) != 1 || acts[0].Description != "Income recorded: 5,000.00" {
		t.Fatalf("unexpected income activity: %+v", acts)
	}

	other := testutil.SeedUser(t, db, models.RoleAdvocate, "Otto Other")
	resp = testutil.JSON(t, appAs(db, other.ID, models.RoleAdvocate), http.MethodDelete, "/incomes/"+inc.ID.String(), nil, nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("foreign delete expected 404, got %d", resp.StatusCode)
	}
	resp = testutil.JSON(t, app, http.MethodDelete, "/incomes/"+inc.ID.String(), nil, nil)
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("delete expected 204, got %d", resp.StatusCode)
	}
}

func Test_Billing_IssuePayIdempotent(t *testing.T) {
	db := testutil.OpenDB(t)
	adv := testutil.SeedUser(t, db, models.RoleAdvocate, "Ada Advocate")
	cli := testutil.SeedUser(t, db, models.RoleClient, "Carl Client")
	cs := testutil.SeedCase(t, db, adv.ID, cli.ID, models.CaseActive)
	advApp, cliApp := appAs(db, adv.ID, models.RoleAdvocate), appAs(db, cli.ID, models.RoleClient)

	var b BillingView
	resp := testutil.JSON(t, advApp, http.MethodPost, "/billings", fiber.Map{
		"case_id": cs.ID.String(), "amount_cents": 250000, "description": "Hearing prep", "due_date": "2026-06-30",
	}, &b)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create expected 201, got %d", resp.StatusCode)
	}
	if b.ClientID != cli.ID || b.Status != models.BillingPending || b.Amount != "2,500.00" {
		t.Fatalf("unexpected invoice: %+v", b)
	}

	var n int64
	db.Model(&models.Notification{}).Where("user_id = ? AND related_to = ?", cli.ID, notify.RelatedBilling).Count(&n)
	if n != 1 {
		t.Fatalf("client should be notified, got %d", n)
	}

	var page struct {
		Total int64         `json:"total"`
		Items []BillingView `json:"items"`
	}
	testutil.JSON(t, cliApp, http.MethodGet, "/billings?status=pending", nil, &page)
	if page.Total != 1 {
		t.Fatalf("client should list the invoice, got %d", page.Total)
	}

	var paid BillingView
	resp = testutil.JSON(t, cliApp, http.MethodPost, "/billings/"+b.ID.String()+"/pay", nil, &paid)
	if resp.StatusCode != fiber.StatusOK || paid.Status != models.BillingPaid || paid.PaidAt == nil {
		t.Fatalf("pay: %d %+v", resp.StatusCode, paid)
	}
	resp = testutil.JSON(t, cliApp, http.MethodPost, "/billings/"+b.ID.String()+"/pay", nil, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("repeat pay expected 200, got %d", resp.StatusCode)
	}

	var incomes int64
	db.Model(&models.CaseIncome{}).Where("case_id = ? AND category = ?", cs.ID, "billing").Count(&incomes)
	if incomes != 1 {
		t.Fatalf("paying should record exactly one income row, got %d", incomes)
	}

	resp = testutil.JSON(t, advApp, http.MethodPost, "/billings/"+b.ID.String()+"/cancel", nil, nil)
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("cancel paid invoice expected 409, got %d", resp.StatusCode)
	}
}

func Test_Billing_CancelRules(t *testing.T) {
	db := testutil.OpenDB(t)
	adv := testutil.SeedUser(t, db, models.RoleAdvocate, "Ada Advocate")
	cli := testutil.SeedUser(t, db, models.RoleClient, "Carl Client")
	stranger := testutil.SeedUser(t, db, models.RoleClient, "Sid Stranger")
	cs := testutil.SeedCase(t, db, adv.ID, cli.ID, models.CaseActive)
	advApp := appAs(db, adv.ID, models.RoleAdvocate)

	var b BillingView
	testutil.JSON(t, advApp, http.MethodPost, "/billings", fiber.Map{
		"case_id": cs.ID.String(), "amount_cents": 1000, "description": "Copies",
	}, &b)

	resp := testutil.JSON(t, appAs(db, stranger.ID, models.RoleClient), http.MethodGet, "/billings/"+b.ID.String(), nil, nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("stranger expected 404, got %d", resp.StatusCode)
	}
	resp = testutil.JSON(t, appAs(db, cli.ID, models.RoleClient), http.MethodPost, "/billings/"+b.ID.String()+"/cancel", nil, nil)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("client cancel expected 403, got %d", resp.StatusCode)
	}

	var out BillingView
	resp = testutil.JSON(t, advApp, http.MethodPost, "/billings/"+b.ID.String()+"/cancel", nil, &out)
	if resp.StatusCode != fiber.StatusOK || out.Status != models.BillingCancelled {
		t.Fatalf("cancel: %d %+v", resp.StatusCode, out)
	}
	resp = testutil.JSON(t, advApp, http.MethodPost, "/billings/"+b.ID.String()+"/pay", nil, nil)
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("pay cancelled expected 409, got %d", resp.StatusCode)
	}
}
