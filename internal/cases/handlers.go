package cases

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-case-manager/internal/auth"
	"github.com/aldoetobex/legal-case-manager/internal/notify"
	"github.com/aldoetobex/legal-case-manager/pkg/models"
	"github.com/aldoetobex/legal-case-manager/pkg/utils"
	"github.com/aldoetobex/legal-case-manager/pkg/validation"
)

/* ================================ DTOs ================================= */

type CreateCaseRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	CaseType    string `json:"case_type" validate:"required,max=60"`
	CourtName   string `json:"court_name" validate:"max=120"`
	FilingDate  string `json:"filing_date" validate:"omitempty,ymd"`
	HearingDate string `json:"hearing_date" validate:"omitempty,ymd"`
	Status      string `json:"status" validate:"omitempty,oneof=pending active closed won lost settled"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	ClientID    string `json:"client_id" validate:"required,uuid"`
}

type UpdateCaseRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	CaseType    string `json:"case_type" validate:"required,max=60"`
	CourtName   string `json:"court_name" validate:"max=120"`
	FilingDate  string `json:"filing_date" validate:"omitempty,ymd"`
	HearingDate string `json:"hearing_date" validate:"omitempty,ymd"`
	Priority    string `json:"priority" validate:"required,oneof=low medium high urgent"`
}

type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending active closed won lost settled"`
	Note   string `json:"note" validate:"max=500"`
}

type AssignRequest struct {
	AdvocateID string `json:"advocate_id" validate:"required,uuid"`
	Role       string `json:"role" validate:"omitempty,oneof=lead associate"`
}

type NoteRequest struct {
	Description string `json:"description" validate:"required,max=2000"`
}

// CaseDetail is a case with its people and latest history.
type CaseDetail struct {
	models.Case
	RecentActivity []models.CaseActivity `json:"recent_activity"`
}

/* ============================== Handler ================================= */

type Handler struct {
	db       *gorm.DB
	notifier *notify.Notifier
}

func NewHandler(db *gorm.DB, notifier *notify.Notifier) *Handler {
	return &Handler{db: db, notifier: notifier}
}

// NewCaseNumber returns CASE-<year>-<6 hex>.
func NewCaseNumber(now time.Time) string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return fmt.Sprintf("CASE-%d-%s", now.Year(), strings.ToUpper(hex.EncodeToString(b)))
}

/* =============================== Create ================================= */

// Create Case godoc
// @Summary      Create case
// @Description  Advocate opens a case for a client and becomes its lead
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateCaseRequest  true  "Case payload"
// @Success      201  {object}  models.Case
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      401  {object}  models.ErrorResponse
// @Failure      422  {object}  models.ErrorResponse  "client not found"
// @Router       /cases [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreateCaseRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	ctx := c.UserContext()
	advocateID := auth.MustUserID(c)
	clientID := uuid.MustParse(in.ClientID)

	var client models.User
	if err := h.db.WithContext(ctx).Where("id = ? AND role = ?", clientID, models.RoleClient).First(&client).Error; err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "client not found")
	}

	filing, _ := utils.ParseDate(in.FilingDate)
	hearing, _ := utils.ParseDate(in.HearingDate)

	cs := models.Case{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		CaseType:    strings.TrimSpace(in.CaseType),
		CourtName:   strings.TrimSpace(in.CourtName),
		FilingDate:  filing,
		HearingDate: hearing,
		Status:      models.CasePending,
		Priority:    models.PriorityMedium,
		ClientID:    clientID,
		CreatedBy:   advocateID,
	}
	if in.Status != "" {
		cs.Status = models.CaseStatus(in.Status)
	}
	if in.Priority != "" {
		cs.Priority = models.Priority(in.Priority)
	}

	if err := h.insertWithLead(ctx, &cs, advocateID); err != nil {
		return err
	}

	utils.LogCaseActivity(ctx, h.db, cs.ID, advocateID, utils.ActionCaseCreated, "Case created",
		map[string]any{"case_number": cs.CaseNumber, "status": cs.Status})

	h.notifier.Notify(ctx, advocateID, notify.Notice{
		UserID:    clientID,
		Title:     "New case opened",
		Message:   fmt.Sprintf("Case %s (%s) has been opened for you.", cs.CaseNumber, cs.Title),
		RelatedTo: notify.RelatedCase,
		RelatedID: &cs.ID,
	})

	cs.Client = client
	return c.Status(fiber.StatusCreated).JSON(cs)
}

// insertWithLead stores the case and the creator's lead assignment.
// The case number is regenerated on a unique-key collision.
func (h *Handler) insertWithLead(ctx context.Context, cs *models.Case, advocateID uuid.UUID) error {
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		cs.ID = uuid.Nil
		cs.CaseNumber = NewCaseNumber(time.Now())
		lastErr = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Omit("Client", "Assignments", "Activities").Create(cs).Error; err != nil {
				return err
			}
			return tx.Omit("Advocate").Create(&models.CaseAssignment{
				CaseID:     cs.ID,
				AdvocateID: advocateID,
				Role:       models.AssignLead,
				AssignedAt: time.Now(),
			}).Error
		})
		if lastErr == nil {
			return nil
		}
		if !h.caseNumberTaken(ctx, cs.CaseNumber) {
			break
		}
	}
	return fmt.Errorf("create case: %w", lastErr)
}

func (h *Handler) caseNumberTaken(ctx context.Context, number string) bool {
	var n int64
	h.db.WithContext(ctx).Model(&models.Case{}).Where("case_number = ?", number).Count(&n)
	return n > 0
}

/* ================================ List ================================== */

// List Cases godoc
// @Summary      List cases
// @Description  Cases visible to the caller (advocate: assigned, client: own, staff: all)
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        status    query string false "status"
// @Param        priority  query string false "priority"
// @Param        client_id query string false "client id"
// @Param        q         query string false "search title or case number"
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Success      200  {object}  models.Page[models.Case]
// @Failure      401  {object}  models.ErrorResponse
// @Router       /cases [get]
func (h *Handler) List(c *fiber.Ctx) error {
	uid, role := auth.MustUserID(c), auth.MustRole(c)
	page, size := utils.ParsePage(c)

	q := Scope(h.db.WithContext(c.UserContext()).Model(&models.Case{}), uid, role)
	if s := c.Query("status"); s != "" {
		q = q.Where("cases.status = ?", s)
	}
	if p := c.Query("priority"); p != "" {
		q = q.Where("cases.priority = ?", p)
	}
	if cid := c.Query("client_id"); cid != "" {
		id, err := uuid.Parse(cid)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid client_id")
		}
		q = q.Where("cases.client_id = ?", id)
	}
	if term := strings.TrimSpace(c.Query("q")); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("(LOWER(cases.title) LIKE ? OR LOWER(cases.case_number) LIKE ?)", like, like)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	var items []models.Case
	if err := q.Preload("Client").
		Order("cases.created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&items).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	return c.JSON(utils.NewPage(page, size, total, items))
}

/* =============================== Detail ================================= */

// Case Detail godoc
// @Summary      Case detail
// @Description  Case with client, assigned advocates and the latest activity
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "case id (uuid)"
// @Success      200  {object}  CaseDetail
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id} [get]
func (h *Handler) Detail(c *fiber.Ctx) error {
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	if _, err := Load(ctx, h.db, id, auth.MustUserID(c), auth.MustRole(c)); err != nil {
		return err
	}

	var out CaseDetail
	if err := h.db.WithContext(ctx).
		Preload("Client").
		Preload("Assignments", func(db *gorm.DB) *gorm.DB { return db.Order("assigned_at ASC") }).
		Preload("Assignments.Advocate").
		First(&out.Case, "id = ?", id).Error; err != nil {
		return fiber.ErrNotFound
	}
	if err := h.db.WithContext(ctx).
		Where("case_id = ?", id).
		Order("created_at DESC").Limit(10).
		Find(&out.RecentActivity).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	if out.Assignments == nil {
		out.Assignments = []models.CaseAssignment{}
	}
	if out.RecentActivity == nil {
		out.RecentActivity = []models.CaseActivity{}
	}
	return c.JSON(out)
}

/* =============================== Update ================================= */

// Update Case godoc
// @Summary      Update case
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path string            true "case id (uuid)"
// @Param        payload  body UpdateCaseRequest true "Case fields"
// @Success      200  {object}  models.Case
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id} [put]
func (h *Handler) Update(c *fiber.Ctx) error {
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var in UpdateCaseRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	ctx := c.UserContext()
	uid := auth.MustUserID(c)
	cs, err := LoadForWrite(ctx, h.db, id, uid, auth.MustRole(c))
	if err != nil {
		return err
	}

	filing, _ := utils.ParseDate(in.FilingDate)
	hearing, _ := utils.ParseDate(in.HearingDate)

	changed := map[string]any{}
	if t := strings.TrimSpace(in.Title); t != cs.Title {
		changed["title"] = t
	}
	if p := models.Priority(in.Priority); p != cs.Priority {
		changed["priority"] = p
	}
	if !sameDay(cs.HearingDate, hearing) {
		changed["hearing_date"] = in.HearingDate
	}

	if err := h.db.WithContext(ctx).Model(&cs).Select(
		"title", "description", "case_type", "court_name", "filing_date", "hearing_date", "priority",
	).Updates(models.Case{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		CaseType:    strings.TrimSpace(in.CaseType),
		CourtName:   strings.TrimSpace(in.CourtName),
		FilingDate:  filing,
		HearingDate: hearing,
		Priority:    models.Priority(in.Priority),
	}).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to update case")
	}

	utils.LogCaseActivity(ctx, h.db, cs.ID, uid, utils.ActionCaseUpdated, "Case details updated", changed)

	h.db.WithContext(ctx).First(&cs, "id = ?", cs.ID)
	return c.JSON(cs)
}

func sameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Format("2006-01-02") == b.Format("2006-01-02")
}

/* =============================== Status ================================= */

// Change Status godoc
// @Summary      Change case status
// @Description  Records the transition in the case history and notifies the client
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path string        true "case id (uuid)"
// @Param        payload  body StatusRequest true "New status"
// @Success      200  {object}  models.Case
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id}/status [patch]
func (h *Handler) ChangeStatus(c *fiber.Ctx) error {
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var in StatusRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	ctx := c.UserContext()
	uid := auth.MustUserID(c)
	cs, err := LoadForWrite(ctx, h.db, id, uid, auth.MustRole(c))
	if err != nil {
		return err
	}

	old := cs.Status
	next := models.CaseStatus(in.Status)
	if old == next {
		return c.JSON(cs)
	}
	if err := h.db.WithContext(ctx).Model(&cs).Update("status", next).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to update status")
	}

	desc := fmt.Sprintf("Status changed from %s to %s", old, next)
	if note := strings.TrimSpace(in.Note); note != "" {
		desc += ": " + note
	}
	utils.LogCaseActivity(ctx, h.db, cs.ID, uid, utils.ActionStatusChanged, desc,
		map[string]any{"old": old, "new": next})

	h.notifier.Notify(ctx, uid, notify.Notice{
		UserID:    cs.ClientID,
		Title:     "Case status updated",
		Message:   fmt.Sprintf("Case %s is now %s.", cs.CaseNumber, next),
		RelatedTo: notify.RelatedCase,
		RelatedID: &cs.ID,
		Data:      map[string]any{"old": old, "new": next},
	})

	cs.Status = next
	return c.JSON(cs)
}

/* ============================== Assignment ============================== */

// Assign Advocate godoc
// @Summary      Assign advocate
// @Description  Adds another advocate to the case and notifies them
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path string        true "case id (uuid)"
// @Param        payload  body AssignRequest true "Advocate"
// @Success      201  {object}  models.CaseAssignment
// @Failure      409  {object}  models.ErrorResponse  "already assigned"
// @Failure      422  {object}  models.ErrorResponse  "advocate not found"
// @Router       /cases/{id}/assignments [post]
func (h *Handler) Assign(c *fiber.Ctx) error {
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var in AssignRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	ctx := c.UserContext()
	uid := auth.MustUserID(c)
	cs, err := LoadForWrite(ctx, h.db, id, uid, auth.MustRole(c))
	if err != nil {
		return err
	}

	advID := uuid.MustParse(in.AdvocateID)
	var adv models.User
	if err := h.db.WithContext(ctx).Where("id = ? AND role = ?", advID, models.RoleAdvocate).First(&adv).Error; err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "advocate not found")
	}
	if IsAssigned(ctx, h.db, cs.ID, advID) {
		return fiber.NewError(fiber.StatusConflict, "advocate already assigned")
	}

	role := models.AssignAssociate
	if in.Role != "" {
		role = models.AssignmentRole(in.Role)
	}
	a := models.CaseAssignment{CaseID: cs.ID, AdvocateID: advID, Role: role, AssignedAt: time.Now()}
	if err := h.db.WithContext(ctx).Omit("Advocate").Create(&a).Error; err != nil {
		return fiber.NewError(fiber.StatusConflict, "advocate already assigned")
	}

	utils.LogCaseActivity(ctx, h.db, cs.ID, uid, utils.ActionAdvocateAssigned,
		fmt.Sprintf("%s assigned as %s", adv.Name, role),
		map[string]any{"advocate_id": advID, "role": role})

	h.notifier.Notify(ctx, uid, notify.Notice{
		UserID:    advID,
		Title:     "Assigned to case",
		Message:   fmt.Sprintf("You were assigned to case %s (%s) as %s.", cs.CaseNumber, cs.Title, role),
		RelatedTo: notify.RelatedCase,
		RelatedID: &cs.ID,
	})

	a.Advocate = adv
	return c.Status(fiber.StatusCreated).JSON(a)
}

/* =============================== History ================================ */

// Case Activities godoc
// @Summary      Case history
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id        path  string true  "case id (uuid)"
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Success      200  {object}  models.Page[models.CaseActivity]
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id}/activities [get]
func (h *Handler) Activities(c *fiber.Ctx) error {
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	if _, err := Load(ctx, h.db, id, auth.MustUserID(c), auth.MustRole(c)); err != nil {
		return err
	}

	page, size := utils.ParsePage(c)
	q := h.db.WithContext(ctx).Model(&models.CaseActivity{}).Where("case_id = ?", id).Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	var items []models.CaseActivity
	if err := q.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&items).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(utils.NewPage(page, size, total, items))
}

// Add Note godoc
// @Summary      Add a note to the case history
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path string      true "case id (uuid)"
// @Param        payload  body NoteRequest true "Note"
// @Success      201  {object}  map[string]bool
// @Failure      403  {object}  models.ErrorResponse
// @Router       /cases/{id}/notes [post]
func (h *Handler) AddNote(c *fiber.Ctx) error {
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var in NoteRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	ctx := c.UserContext()
	uid := auth.MustUserID(c)
	cs, err := LoadForWrite(ctx, h.db, id, uid, auth.MustRole(c))
	if err != nil {
		return err
	}

	// Unlike automatic history entries, a failed note is reported.
	if err := h.db.WithContext(ctx).Create(&models.CaseActivity{
		CaseID:      cs.ID,
		ActionType:  utils.ActionNote,
		Description: strings.TrimSpace(in.Description),
		PerformedBy: uid,
		CreatedAt:   time.Now(),
	}).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to add note")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true})
}
