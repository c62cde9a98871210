package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/aldoetobex/legal-case-manager/internal/auth"
	"github.com/aldoetobex/legal-case-manager/internal/cases"
	"github.com/aldoetobex/legal-case-manager/pkg/models"
	"github.com/aldoetobex/legal-case-manager/pkg/utils"
	"github.com/aldoetobex/legal-case-manager/pkg/validation"
)

// Income and expense rows share one request shape and one set of handlers.

type EntryRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
	Category    string `json:"category" validate:"required,max=60"`
	Description string `json:"description" validate:"max=500"`
	Date        string `json:"date" validate:"omitempty,ymd"`
}

// CaseFinance is the per-case money summary.
type CaseFinance struct {
	IncomeCents  int64                `json:"income_cents"`
	ExpenseCents int64                `json:"expense_cents"`
	BalanceCents int64                `json:"balance_cents"`
	Incomes      []models.CaseIncome  `json:"incomes"`
	Expenses     []models.CaseExpense `json:"expenses"`
}

type entryKind int

const (
	kindIncome entryKind = iota
	kindExpense
)

func (k entryKind) model() any {
	if k == kindIncome {
		return &models.CaseIncome{}
	}
	return &models.CaseExpense{}
}

func (k entryKind) String() string {
	if k == kindIncome {
		return "income"
	}
	return "expense"
}

/* ================================ Create ================================ */

// Record Income godoc
// @Summary      Record income on a case
// @Tags         billing
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path string       true "case id (uuid)"
// @Param        payload  body EntryRequest true "Income"
// @Success      201  {object}  models.CaseIncome
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id}/incomes [post]
func (h *Handler) CreateIncome(c *fiber.Ctx) error { return h.createEntry(c, kindIncome) }

// Record Expense godoc
// @Summary      Record expense on a case
// @Tags         billing
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path string       true "case id (uuid)"
// @Param        payload  body EntryRequest true "Expense"
// @Success      201  {object}  models.CaseExpense
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id}/expenses [post]
func (h *Handler) CreateExpense(c *fiber.Ctx) error { return h.createEntry(c, kindExpense) }

func (h *Handler) createEntry(c *fiber.Ctx, kind entryKind) error {
	caseID, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	uid := auth.MustUserID(c)
	if _, err := cases.LoadForWrite(ctx, h.db, caseID, uid, auth.MustRole(c)); err != nil {
		return err
	}

	var in EntryRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	date := time.Now()
	if d, _ := utils.ParseDate(in.Date); d != nil {
		date = *d
	}
	category := strings.ToLower(strings.TrimSpace(in.Category))
	desc := strings.TrimSpace(in.Description)

	var (
		row    any
		action string
		label  string
	)
	switch kind {
	case kindIncome:
		row = &models.CaseIncome{CaseID: caseID, AdvocateID: uid, AmountCents: in.AmountCents,
			Category: category, Description: desc, Date: date}
		action, label = utils.ActionIncomeRecorded, "Income recorded"
	default:
		row = &models.CaseExpense{CaseID: caseID, AdvocateID: uid, AmountCents: in.AmountCents,
			Category: category, Description: desc, Date: date}
		action, label = utils.ActionExpenseRecorded, "Expense recorded"
	}
	if err := h.db.WithContext(ctx).Create(row).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to record "+kind.String())
	}

	utils.LogCaseActivity(ctx, h.db, caseID, uid, action,
		fmt.Sprintf("%s: %s", label, utils.FormatCents(in.AmountCents)),
		map[string]any{"amount_cents": in.AmountCents, "category": category})
	return c.Status(fiber.StatusCreated).JSON(row)
}

/* ================================= Read ================================= */

// Case Finance godoc
// @Summary      Income, expenses and balance of a case
// @Tags         billing
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "case id (uuid)"
// @Success      200  {object}  CaseFinance
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id}/finance [get]
func (h *Handler) CaseFinance(c *fiber.Ctx) error {
	caseID, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	if _, err := cases.LoadForWrite(ctx, h.db, caseID, auth.MustUserID(c), auth.MustRole(c)); err != nil {
		return err
	}

	out := CaseFinance{Incomes: []models.CaseIncome{}, Expenses: []models.CaseExpense{}}
	db := h.db.WithContext(ctx)
	if err := db.Where("case_id = ?", caseID).Order("date DESC").Find(&out.Incomes).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if err := db.Where("case_id = ?", caseID).Order("date DESC").Find(&out.Expenses).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	for _, r := range out.Incomes {
		out.IncomeCents += r.AmountCents
	}
	for _, r := range out.Expenses {
		out.ExpenseCents += r.AmountCents
	}
	out.BalanceCents = out.IncomeCents - out.ExpenseCents
	return c.JSON(out)
}

/* ================================ Delete ================================ */

// Delete Income godoc
// @Summary      Delete an income row
// @Description  Only the advocate who recorded it, or staff
// @Tags         billing
// @Security     BearerAuth
// @Param        id   path string true "income id (uuid)"
// @Success      204
// @Failure      404  {object}  models.ErrorResponse
// @Router       /incomes/{id} [delete]
func (h *Handler) DeleteIncome(c *fiber.Ctx) error { return h.deleteEntry(c, kindIncome) }

// Delete Expense godoc
// @Summary      Delete an expense row
// @Description  Only the advocate who recorded it, or staff
// @Tags         billing
// @Security     BearerAuth
// @Param        id   path string true "expense id (uuid)"
// @Success      204
// @Failure      404  {object}  models.ErrorResponse
// @Router       /expenses/{id} [delete]
func (h *Handler) DeleteExpense(c *fiber.Ctx) error { return h.deleteEntry(c, kindExpense) }

func (h *Handler) deleteEntry(c *fiber.Ctx, kind entryKind) error {
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	q := h.db.WithContext(c.UserContext()).Where("id = ?", id)
	if auth.MustRole(c) != models.RoleStaff {
		q = q.Where("advocate_id = ?", auth.MustUserID(c))
	}
	res := q.Delete(kind.model())
	if res.Error != nil {
		return fiber.ErrInternalServerError
	}
	if res.RowsAffected == 0 {
		return fiber.ErrNotFound
	}
	return c.SendStatus(fiber.StatusNoContent)
}
