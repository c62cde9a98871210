package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-case-manager/internal/auth"
	"github.com/aldoetobex/legal-case-manager/internal/cases"
	"github.com/aldoetobex/legal-case-manager/internal/notify"
	"github.com/aldoetobex/legal-case-manager/pkg/models"
	"github.com/aldoetobex/legal-case-manager/pkg/utils"
	"github.com/aldoetobex/legal-case-manager/pkg/validation"
)

/* ================================ DTOs ================================= */

type TaskRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=4000"`
	DueDate     string `json:"due_date" validate:"omitempty,ymd"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Status      string `json:"status" validate:"omitempty,oneof=Pending 'In Progress' Completed"`
	AssignedTo  string `json:"assigned_to" validate:"omitempty,uuid"`
	CaseID      string `json:"case_id" validate:"omitempty,uuid"`
	ClientID    string `json:"client_id" validate:"omitempty,uuid"`
}

/* ============================== Handler ================================= */

type Handler struct {
	db       *gorm.DB
	notifier *notify.Notifier
}

func NewHandler(db *gorm.DB, notifier *notify.Notifier) *Handler {
	return &Handler{db: db, notifier: notifier}
}

// loadVisible returns a task the caller created or is assigned to.
func (h *Handler) loadVisible(c *fiber.Ctx) (models.Task, error) {
	var t models.Task
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return t, err
	}
	uid := auth.MustUserID(c)
	err = h.db.WithContext(c.UserContext()).
		Where("id = ? AND (created_by = ? OR assigned_to = ?)", id, uid, uid).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return t, fiber.ErrNotFound
	}
	if err != nil {
		return t, fiber.ErrInternalServerError
	}
	return t, nil
}

// bind validates the body into t. The assignee must be an advocate or staff;
// a linked case must be writable by the caller.
func (h *Handler) bind(c *fiber.Ctx, t *models.Task) (bool, error) {
	var in TaskRequest
	if err := c.BodyParser(&in); err != nil {
		return false, fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return false, validation.Respond(c, errs)
	}

	ctx := c.UserContext()
	uid := auth.MustUserID(c)

	due, _ := utils.ParseDate(in.DueDate)
	caseID, _ := utils.ParseOptionalUUID(in.CaseID)
	clientID, _ := utils.ParseOptionalUUID(in.ClientID)

	assignee := t.AssignedTo
	if in.AssignedTo != "" {
		assignee = uuid.MustParse(in.AssignedTo)
	}
	if assignee == uuid.Nil {
		assignee = uid
	}
	if assignee != uid {
		var n int64
		h.db.WithContext(ctx).Model(&models.User{}).
			Where("id = ? AND role IN ?", assignee, []models.Role{models.RoleAdvocate, models.RoleStaff}).
			Count(&n)
		if n == 0 {
			return false, fiber.NewError(fiber.StatusUnprocessableEntity, "assignee not found")
		}
	}

	if caseID != nil && (t.CaseID == nil || *t.CaseID != *caseID) {
		cs, err := cases.LoadForWrite(ctx, h.db, *caseID, uid, auth.MustRole(c))
		if err != nil {
			return false, fiber.NewError(fiber.StatusUnprocessableEntity, "case not found")
		}
		if clientID == nil {
			clientID = &cs.ClientID
		}
	}

	t.Title = strings.TrimSpace(in.Title)
	t.Description = strings.TrimSpace(in.Description)
	t.DueDate = due
	t.AssignedTo = assignee
	t.CaseID = caseID
	t.ClientID = clientID
	if in.Priority != "" {
		t.Priority = models.Priority(in.Priority)
	}
	if t.Priority == "" {
		t.Priority = models.PriorityMedium
	}
	if in.Status != "" {
		t.Status = models.TaskStatus(in.Status)
	}
	if t.Status == "" {
		t.Status = models.TaskPending
	}
	return true, nil
}

/* ================================ CRUD ================================== */

// Create Task godoc
// @Summary      Create task
// @Description  Assigning to someone else notifies them
// @Tags         tasks
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  TaskRequest  true  "Task"
// @Success      201  {object}  models.Task
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      422  {object}  models.ErrorResponse
// @Router       /tasks [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	uid := auth.MustUserID(c)
	t := models.Task{CreatedBy: uid}
	if ok, err := h.bind(c, &t); !ok {
		return err
	}
	completing := t.Status == models.TaskCompleted
	if completing {
		now := time.Now()
		t.CompletedAt = &now
	}

	ctx := c.UserContext()
	if err := h.db.WithContext(ctx).Create(&t).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to create task")
	}
	h.notifyAssignee(ctx, uid, t)
	if completing {
		h.logCompleted(ctx, uid, t)
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

// List Tasks godoc
// @Summary      List my tasks
// @Tags         tasks
// @Security     BearerAuth
// @Produce      json
// @Param        status    query string false "Pending | In Progress | Completed"
// @Param        priority  query string false "priority"
// @Param        case_id   query string false "case id"
// @Param        overdue   query bool   false "only open tasks past due"
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Success      200  {object}  models.Page[models.Task]
// @Router       /tasks [get]
func (h *Handler) List(c *fiber.Ctx) error {
	uid := auth.MustUserID(c)
	page, size := utils.ParsePage(c)

	q := h.db.WithContext(c.UserContext()).Model(&models.Task{}).
		Where("(created_by = ? OR assigned_to = ?)", uid, uid)
	if s := c.Query("status"); s != "" {
		q = q.Where("status = ?", s)
	}
	if p := c.Query("priority"); p != "" {
		q = q.Where("priority = ?", p)
	}
	if cid := c.Query("case_id"); cid != "" {
		id, err := uuid.Parse(cid)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid case_id")
		}
		q = q.Where("case_id = ?", id)
	}
	if c.QueryBool("overdue") {
		q = q.Where("status <> ? AND due_date < ?", models.TaskCompleted, today())
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	var items []models.Task
	if err := q.Order("due_date ASC, created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&items).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(utils.NewPage(page, size, total, items))
}

func today() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
}

// Task Detail godoc
// @Summary      Task detail
// @Tags         tasks
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "task id (uuid)"
// @Success      200  {object}  models.Task
// @Failure      404  {object}  models.ErrorResponse
// @Router       /tasks/{id} [get]
func (h *Handler) Detail(c *fiber.Ctx) error {
	t, err := h.loadVisible(c)
	if err != nil {
		return err
	}
	return c.JSON(t)
}

// Update Task godoc
// @Summary      Update task
// @Tags         tasks
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path string      true "task id (uuid)"
// @Param        payload  body TaskRequest true "Task"
// @Success      200  {object}  models.Task
// @Failure      404  {object}  models.ErrorResponse
// @Router       /tasks/{id} [put]
func (h *Handler) Update(c *fiber.Ctx) error {
	t, err := h.loadVisible(c)
	if err != nil {
		return err
	}
	prevAssignee, prevStatus := t.AssignedTo, t.Status
	if ok, err := h.bind(c, &t); !ok {
		return err
	}

	completing := prevStatus != models.TaskCompleted && t.Status == models.TaskCompleted
	switch {
	case completing:
		now := time.Now()
		t.CompletedAt = &now
	case t.Status != models.TaskCompleted:
		t.CompletedAt = nil
	}

	ctx := c.UserContext()
	uid := auth.MustUserID(c)
	if err := h.db.WithContext(ctx).Save(&t).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to update task")
	}
	if t.AssignedTo != prevAssignee {
		h.notifyAssignee(ctx, uid, t)
	}
	if completing {
		h.logCompleted(ctx, uid, t)
	}
	return c.JSON(t)
}

// Complete Task godoc
// @Summary      Mark task completed
// @Description  Sets status Completed and, for case tasks, appends "Task completed" to the case history
// @Tags         tasks
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "task id (uuid)"
// @Success      200  {object}  models.Task
// @Failure      404  {object}  models.ErrorResponse
// @Router       /tasks/{id}/complete [patch]
func (h *Handler) Complete(c *fiber.Ctx) error {
	t, err := h.loadVisible(c)
	if err != nil {
		return err
	}
	if t.Status == models.TaskCompleted {
		return c.JSON(t)
	}

	ctx := c.UserContext()
	now := time.Now()
	if err := h.db.WithContext(ctx).Model(&t).Updates(map[string]any{
		"status":       models.TaskCompleted,
		"completed_at": now,
	}).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to complete task")
	}
	t.Status = models.TaskCompleted
	t.CompletedAt = &now

	h.logCompleted(ctx, auth.MustUserID(c), t)
	return c.JSON(t)
}

// Delete Task godoc
// @Summary      Delete task
// @Description  Only the creator can delete
// @Tags         tasks
// @Security     BearerAuth
// @Param        id   path string true "task id (uuid)"
// @Success      204
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /tasks/{id} [delete]
func (h *Handler) Delete(c *fiber.Ctx) error {
	t, err := h.loadVisible(c)
	if err != nil {
		return err
	}
	if t.CreatedBy != auth.MustUserID(c) {
		return fiber.ErrForbidden
	}
	if err := h.db.WithContext(c.UserContext()).Delete(&t).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to delete task")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

/* ============================= Side effects ============================= */

// logCompleted appends the history row for case tasks. It runs after the
// task row is saved and is not atomic with it.
func (h *Handler) logCompleted(ctx context.Context, actorID uuid.UUID, t models.Task) {
	if t.CaseID == nil {
		return
	}
	utils.LogCaseActivity(ctx, h.db, *t.CaseID, actorID, utils.ActionTaskCompleted, "Task completed",
		map[string]any{"task_id": t.ID, "title": t.Title})
}

func (h *Handler) notifyAssignee(ctx context.Context, actorID uuid.UUID, t models.Task) {
	msg := fmt.Sprintf("You have been assigned the task %q.", t.Title)
	if t.DueDate != nil {
		msg = fmt.Sprintf("You have been assigned the task %q, due %s.", t.Title, t.DueDate.Format("2006-01-02"))
	}
	h.notifier.Notify(ctx, actorID, notify.Notice{
		UserID:    t.AssignedTo,
		Title:     "New task assigned",
		Message:   msg,
		RelatedTo: notify.RelatedTask,
		RelatedID: &t.ID,
	})
}
