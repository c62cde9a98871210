package billing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/legal-case-manager/internal/auth"
	"github.com/aldoetobex/legal-case-manager/internal/cases"
	"github.com/aldoetobex/legal-case-manager/internal/notify"
	"github.com/aldoetobex/legal-case-manager/pkg/models"
	"github.com/aldoetobex/legal-case-manager/pkg/utils"
	"github.com/aldoetobex/legal-case-manager/pkg/validation"
)

/* ================================ DTOs ================================= */

type BillingRequest struct {
	CaseID      string `json:"case_id" validate:"required,uuid"`
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
	Description string `json:"description" validate:"required,max=500"`
	DueDate     string `json:"due_date" validate:"omitempty,ymd"`
}

// BillingView adds the formatted amount for display.
type BillingView struct {
	models.Billing
	Amount string `json:"amount"`
}

func view(b models.Billing) BillingView {
	return BillingView{Billing: b, Amount: utils.FormatCents(b.AmountCents)}
}

/* ============================== Handler ================================= */

type Handler struct {
	db       *gorm.DB
	notifier *notify.Notifier
}

func NewHandler(db *gorm.DB, notifier *notify.Notifier) *Handler {
	return &Handler{db: db, notifier: notifier}
}

// NewInvoiceNumber returns INV-YYYYMM-XXXXXX.
func NewInvoiceNumber(now time.Time) string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return fmt.Sprintf("INV-%s-%s", now.Format("200601"), strings.ToUpper(hex.EncodeToString(b)))
}

// caseVisible is the subquery of case ids the caller may see.
func (h *Handler) caseVisible(c *fiber.Ctx) *gorm.DB {
	return cases.Scope(h.db.Session(&gorm.Session{NewDB: true}).Model(&models.Case{}),
		auth.MustUserID(c), auth.MustRole(c)).Select("cases.id")
}

// load returns an invoice on a case visible to the caller, or 404.
func (h *Handler) load(c *fiber.Ctx) (models.Billing, error) {
	var b models.Billing
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return b, err
	}
	err = h.db.WithContext(c.UserContext()).
		Where("id = ? AND case_id IN (?)", id, h.caseVisible(c)).
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return b, fiber.ErrNotFound
	}
	if err != nil {
		return b, fiber.ErrInternalServerError
	}
	return b, nil
}

/* ================================ Issue ================================= */

// Create Billing godoc
// @Summary      Issue an invoice
// @Description  Bills the case's client and notifies them
// @Tags         billing
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  BillingRequest  true  "Invoice"
// @Success      201  {object}  BillingView
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      422  {object}  models.ErrorResponse
// @Router       /billings [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	var in BillingRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	ctx := c.UserContext()
	uid := auth.MustUserID(c)
	cs, err := cases.LoadForWrite(ctx, h.db, uuid.MustParse(in.CaseID), uid, auth.MustRole(c))
	if err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "case not found")
	}
	due, _ := utils.ParseDate(in.DueDate)

	b := models.Billing{
		CaseID:      cs.ID,
		ClientID:    cs.ClientID,
		AdvocateID:  uid,
		AmountCents: in.AmountCents,
		Description: strings.TrimSpace(in.Description),
		DueDate:     due,
		Status:      models.BillingPending,
	}
	for attempt := 0; ; attempt++ {
		b.ID = uuid.Nil
		b.InvoiceNumber = NewInvoiceNumber(time.Now())
		err = h.db.WithContext(ctx).Create(&b).Error
		if err == nil || attempt == 4 || !isUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to create invoice")
	}

	utils.LogCaseActivity(ctx, h.db, cs.ID, uid, utils.ActionBillingIssued,
		fmt.Sprintf("Invoice %s issued for %s", b.InvoiceNumber, utils.FormatCents(b.AmountCents)),
		map[string]any{"billing_id": b.ID, "amount_cents": b.AmountCents})
	h.notifier.Notify(ctx, uid, notify.Notice{
		UserID:    cs.ClientID,
		Title:     "New invoice " + b.InvoiceNumber,
		Message:   fmt.Sprintf("An invoice of %s was issued for case %s.", utils.FormatCents(b.AmountCents), cs.CaseNumber),
		RelatedTo: notify.RelatedBilling,
		RelatedID: &b.ID,
		Data:      map[string]any{"case_id": cs.ID, "amount_cents": b.AmountCents},
	})
	return c.Status(fiber.StatusCreated).JSON(view(b))
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique") || strings.Contains(s, "duplicate")
}

/* ================================= Read ================================= */

// List Billings godoc
// @Summary      List invoices
// @Description  Clients see their own; advocates see invoices on their cases; staff see all
// @Tags         billing
// @Security     BearerAuth
// @Produce      json
// @Param        status    query string false "pending | paid | cancelled"
// @Param        case_id   query string false "case id"
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Success      200  {object}  models.Page[BillingView]
// @Router       /billings [get]
func (h *Handler) List(c *fiber.Ctx) error {
	page, size := utils.ParsePage(c)

	q := h.db.WithContext(c.UserContext()).Model(&models.Billing{}).
		Where("case_id IN (?)", h.caseVisible(c))
	if s := c.Query("status"); s != "" {
		q = q.Where("status = ?", s)
	}
	if cid := c.Query("case_id"); cid != "" {
		id, err := uuid.Parse(cid)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid case_id")
		}
		q = q.Where("case_id = ?", id)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	var rows []models.Billing
	if err := q.Order("created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	items := make([]BillingView, 0, len(rows))
	for _, b := range rows {
		items = append(items, view(b))
	}
	return c.JSON(utils.NewPage(page, size, total, items))
}

// Billing Detail godoc
// @Summary      Invoice detail
// @Tags         billing
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "billing id (uuid)"
// @Success      200  {object}  BillingView
// @Failure      404  {object}  models.ErrorResponse
// @Router       /billings/{id} [get]
func (h *Handler) Detail(c *fiber.Ctx) error {
	b, err := h.load(c)
	if err != nil {
		return err
	}
	return c.JSON(view(b))
}

/* ============================= Transitions ============================== */

var errNotPending = errors.New("invoice is not pending")

// Pay Billing godoc
// @Summary      Mark an invoice paid
// @Description  Runs in a transaction with the invoice row locked. Paying records the amount as case income. Repeating the call on a paid invoice is a no-op.
// @Tags         billing
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "billing id (uuid)"
// @Success      200  {object}  BillingView
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /billings/{id}/pay [post]
func (h *Handler) Pay(c *fiber.Ctx) error {
	b, err := h.load(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	uid := auth.MustUserID(c)

	alreadyPaid := false
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&b, "id = ?", b.ID).Error; err != nil {
			return err
		}
		switch b.Status {
		case models.BillingPaid:
			alreadyPaid = true
			return nil
		case models.BillingCancelled:
			return errNotPending
		}

		now := time.Now()
		res := tx.Model(&models.Billing{}).
			Where("id = ? AND status = ?", b.ID, models.BillingPending).
			Updates(map[string]any{"status": models.BillingPaid, "paid_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errNotPending
		}
		b.Status, b.PaidAt = models.BillingPaid, &now

		return tx.Create(&models.CaseIncome{
			CaseID:      b.CaseID,
			AdvocateID:  b.AdvocateID,
			AmountCents: b.AmountCents,
			Category:    "billing",
			Description: "Payment of invoice " + b.InvoiceNumber,
			Date:        now,
		}).Error
	})
	if errors.Is(err, errNotPending) {
		return fiber.NewError(fiber.StatusConflict, "invoice is cancelled")
	}
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to record payment")
	}
	if alreadyPaid {
		return c.JSON(view(b))
	}

	utils.LogCaseActivity(ctx, h.db, b.CaseID, uid, utils.ActionBillingPaid,
		fmt.Sprintf("Invoice %s paid", b.InvoiceNumber),
		map[string]any{"billing_id": b.ID, "amount_cents": b.AmountCents})
	h.notifyParties(ctx, uid, b, "Invoice paid", fmt.Sprintf("Invoice %s (%s) was paid.", b.InvoiceNumber, utils.FormatCents(b.AmountCents)))
	return c.JSON(view(b))
}

// Cancel Billing godoc
// @Summary      Cancel a pending invoice
// @Tags         billing
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "billing id (uuid)"
// @Success      200  {object}  BillingView
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /billings/{id}/cancel [post]
func (h *Handler) Cancel(c *fiber.Ctx) error {
	b, err := h.load(c)
	if err != nil {
		return err
	}
	if auth.MustRole(c) == models.RoleClient {
		return fiber.ErrForbidden
	}
	ctx := c.UserContext()
	res := h.db.WithContext(ctx).Model(&models.Billing{}).
		Where("id = ? AND status = ?", b.ID, models.BillingPending).
		Update("status", models.BillingCancelled)
	if res.Error != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to cancel invoice")
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusConflict, "only pending invoices can be cancelled")
	}
	b.Status = models.BillingCancelled

	h.notifyParties(ctx, auth.MustUserID(c), b, "Invoice cancelled", fmt.Sprintf("Invoice %s was cancelled.", b.InvoiceNumber))
	return c.JSON(view(b))
}

// lockForUpdate adds SELECT ... FOR UPDATE on dialects that support it.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	switch tx.Dialector.Name() {
	case "postgres", "mysql":
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	default:
		return tx
	}
}

// notifyParties tells the client and every advocate on the case; the actor is skipped.
func (h *Handler) notifyParties(ctx context.Context, actorID uuid.UUID, b models.Billing, title, msg string) {
	to := []uuid.UUID{b.ClientID, b.AdvocateID}
	for _, id := range cases.AdvocateIDs(ctx, h.db, b.CaseID) {
		if !slices.Contains(to, id) {
			to = append(to, id)
		}
	}
	for _, id := range to {
		h.notifier.Notify(ctx, actorID, notify.Notice{
			UserID:    id,
			Title:     title,
			Message:   msg,
			RelatedTo: notify.RelatedBilling,
			RelatedID: &b.ID,
		})
	}
}
