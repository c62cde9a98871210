package reports

import (
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-case-manager/internal/auth"
	"github.com/aldoetobex/legal-case-manager/internal/testutil"
	"github.com/aldoetobex/legal-case-manager/pkg/models"
)

func appAs(db *gorm.DB, uid uuid.UUID, role models.Role) *fiber.App {
	h := NewHandler(db)
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Use(testutil.InjectAuth(uid, role))
	app.Get("/reports/dashboard", h.Dashboard)
	app.Get("/reports/cases", h.Cases)
	app.Get("/reports/financial", h.Financial)
	app.Get("/reports/tasks", h.Tasks)
	return app
}

type fixture struct {
	db       *gorm.DB
	adv, cli models.User
	active   models.Case
}

func seed(t *testing.T) fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	adv := testutil.SeedUser(t, db, models.RoleAdvocate, "Ada Advocate")
	cli := testutil.SeedUser(t, db, models.RoleClient, "Carl Client")
	other := testutil.SeedUser(t, db, models.RoleAdvocate, "Otto Other")
	testutil.SeedCase(t, db, adv.ID, cli.ID, models.CasePending)
	active := testutil.SeedCase(t, db, adv.ID, cli.ID, models.CaseActive)
	hidden := testutil.SeedCase(t, db, other.ID, cli.ID, models.CaseWon)

	now := time.Now()
	db.Create(&models.CaseIncome{CaseID: active.ID, AdvocateID: adv.ID, AmountCents: 300000, Category: "retainer", Date: now})
	db.Create(&models.CaseExpense{CaseID: active.ID, AdvocateID: adv.ID, AmountCents: 45000, Category: "court_fees", Date: now})
	db.Create(&models.CaseExpense{CaseID: active.ID, AdvocateID: adv.ID, AmountCents: 5000, Category: "travel", Date: now})
	db.Create(&models.CaseIncome{CaseID: hidden.ID, AdvocateID: other.ID, AmountCents: 999900, Category: "retainer", Date: now})
	db.Create(&models.Billing{CaseID: active.ID, ClientID: cli.ID, AdvocateID: adv.ID,
		InvoiceNumber: "INV-TEST-1", AmountCents: 120000, Status: models.BillingPending})

	yesterday := now.AddDate(0, 0, -1)
	db.Create(&models.Task{Title: "File motion", Status: models.TaskPending, Priority: models.PriorityHigh,
		AssignedTo: adv.ID, CreatedBy: adv.ID, DueDate: &yesterday})
	db.Create(&models.Task{Title: "Call client", Status: models.TaskCompleted, Priority: models.PriorityLow,
		AssignedTo: adv.ID, CreatedBy: adv.ID, CompletedAt: &now})
	db.Create(&models.Task{Title: "Not mine", Status: models.TaskPending, Priority: models.PriorityLow,
		AssignedTo: other.ID, CreatedBy: other.ID})
	return fixture{db: db, adv: adv, cli: cli, active: active}
}

func Test_Dashboard_ScopedToAdvocate(t *testing.T) {
	f := seed(t)
	var d Dashboard
	resp := testutil.JSON(t, appAs(f.db, f.adv.ID, models.RoleAdvocate), http.MethodGet, "/reports/dashboard", nil, &d)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("dashboard expected 200, got %d", resp.StatusCode)
	}
	if d.Cases.Total != 2 || d.Cases.Pending != 1 || d.Cases.Active != 1 || d.Cases.Closed != 0 {
		t.Fatalf("unexpected case counters: %+v", d.Cases)
	}
	if d.Clients != 1 {
		t.Fatalf("expected 1 client, got %d", d.Clients)
	}
	if d.Tasks.Open != 1 || d.Tasks.Overdue != 1 {
		t.Fatalf("unexpected task counters: %+v", d.Tasks)
	}
	if d.IncomeThisMonth.Cents != 300000 || d.IncomeThisMonth.Formatted != "3,000.00" {
		t.Fatalf("unexpected income: %+v", d.IncomeThisMonth)
	}
	if d.ExpenseThisMonth.Cents != 50000 || d.Outstanding.Cents != 120000 {
		t.Fatalf("unexpected money: expense=%+v outstanding=%+v", d.ExpenseThisMonth, d.Outstanding)
	}
}

func Test_Dashboard_StaffSeesEverything(t *testing.T) {
	f := seed(t)
	staff := testutil.SeedUser(t, f.db, models.RoleStaff, "Sam Staff")
	var d Dashboard
	testutil.JSON(t, appAs(f.db, staff.ID, models.RoleStaff), http.MethodGet, "/reports/dashboard", nil, &d)
	if d.Cases.Total != 3 || d.Cases.Closed != 1 {
		t.Fatalf("staff should see all cases: %+v", d.Cases)
	}
	if d.IncomeThisMonth.Cents != 1299900 {
		t.Fatalf("staff should see all income, got %d", d.IncomeThisMonth.Cents)
	}
}

func Test_CasesReport_ZeroFilled(t *testing.T) {
	f := seed(t)
	var r CasesReport
	resp := testutil.JSON(t, appAs(f.db, f.adv.ID, models.RoleAdvocate), http.MethodGet, "/reports/cases", nil, &r)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("cases report expected 200, got %d", resp.StatusCode)
	}
	if r.Total != 2 {
		t.Fatalf("expected 2 cases, got %d", r.Total)
	}
	if len(r.ByStatus.Labels) != len(models.CaseStatuses) || r.ByStatus.Labels[0] != "Pending" {
		t.Fatalf("unexpected status labels: %v", r.ByStatus.Labels)
	}
	want := []int64{1, 1, 0, 0, 0, 0}
	for i, v := range want {
		if r.ByStatus.Values[i] != v {
			t.Fatalf("by_status = %v, want %v", r.ByStatus.Values, want)
		}
	}
	if len(r.ByType.Labels) != 1 || r.ByType.Labels[0] != "Civil" || r.ByType.Values[0] != 2 {
		t.Fatalf("unexpected by_type: %+v", r.ByType)
	}
	if len(r.ByMonth.Values) != 12 || r.ByMonth.Values[11] != 2 {
		t.Fatalf("unexpected by_month: %+v", r.ByMonth)
	}
}

func Test_FinancialReport(t *testing.T) {
	f := seed(t)
	var r FinancialReport
	resp := testutil.JSON(t, appAs(f.db, f.adv.ID, models.RoleAdvocate), http.MethodGet, "/reports/financial", nil, &r)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("financial report expected 200, got %d", resp.StatusCode)
	}
	if r.Income.Cents != 300000 || r.Expense.Cents != 50000 || r.Net.Cents != 250000 || r.Net.Formatted != "2,500.00" {
		t.Fatalf("unexpected totals: %+v %+v %+v", r.Income, r.Expense, r.Net)
	}
	if len(r.Months) != 12 || r.IncomeByMonth[11] != 300000 || r.ExpenseByMonth[11] != 50000 {
		t.Fatalf("unexpected monthly series: %v %v %v", r.Months, r.IncomeByMonth, r.ExpenseByMonth)
	}
	if r.ExpensesByCategory.Labels[0] != "Court Fees" || r.ExpensesByCategory.Values[0] != 45000 {
		t.Fatalf("unexpected categories: %+v", r.ExpensesByCategory)
	}
	if r.Billing.Pending.Cents != 120000 || r.Billing.Paid.Cents != 0 {
		t.Fatalf("unexpected billing: %+v", r.Billing)
	}
}

func Test_TasksReport(t *testing.T) {
	f := seed(t)
	var r TasksReport
	testutil.JSON(t, appAs(f.db, f.adv.ID, models.RoleAdvocate), http.MethodGet, "/reports/tasks", nil, &r)
	if r.Total != 2 || r.Overdue != 1 || r.CompletionRate != 50 {
		t.Fatalf("unexpected tasks report: %+v", r)
	}
	if r.ByStatus.Labels[1] != "In Progress" || r.ByStatus.Values[0] != 1 || r.ByStatus.Values[2] != 1 {
		t.Fatalf("unexpected by_status: %+v", r.ByStatus)
	}
	if r.ByPriority.Values[0] != 1 || r.ByPriority.Values[2] != 1 {
		t.Fatalf("unexpected by_priority: %+v", r.ByPriority)
	}
}

func Test_Range_Validation(t *testing.T) {
	f := seed(t)
	app := appAs(f.db, f.adv.ID, models.RoleAdvocate)
	for _, q := range []string{"?from=2026-13-01", "?to=yesterday", "?from=2026-05-02&to=2026-05-01"} {
		resp := testutil.JSON(t, app, http.MethodGet, "/reports/cases"+q, nil, nil)
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Fatalf("%s expected 400, got %d", q, resp.StatusCode)
		}
	}
}

func Test_Window_Months(t *testing.T) {
	w, err := parseRange("2025-11-15", "2026-02-03", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	got := w.months()
	want := []string{"2025-11", "2025-12", "2026-01", "2026-02"}
	if len(got) != len(want) {
		t.Fatalf("months = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("months = %v, want %v", got, want)
		}
	}
	if v := w.view(); v.From != "2025-11-15" || v.To != "2026-02-03" {
		t.Fatalf("unexpected view: %+v", v)
	}

	def, _ := parseRange("", "", time.Date(2026, 4, 9, 15, 0, 0, 0, time.Local))
	if m := def.months(); len(m) != 12 || m[0] != "2025-05" || m[11] != "2026-04" {
		t.Fatalf("default window months = %v", m)
	}
}
