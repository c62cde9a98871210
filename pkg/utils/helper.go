package utils

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-case-manager/pkg/models"
)

// Activity action types written to case_activities.
const (
	ActionCaseCreated      = "case_created"
	ActionCaseUpdated      = "case_updated"
	ActionStatusChanged    = "status_changed"
	ActionAdvocateAssigned = "advocate_assigned"
	ActionNote             = "note"
	ActionDocumentUploaded = "document_uploaded"
	ActionDocumentDeleted  = "document_deleted"
	ActionTaskCompleted    = "task_completed"
	ActionIncomeRecorded   = "income_recorded"
	ActionExpenseRecorded  = "expense_recorded"
	ActionBillingIssued    = "billing_issued"
	ActionBillingPaid      = "billing_paid"
)

// LogCaseActivity appends an audit record to case_activities.
// Errors are logged and swallowed: the trail is advisory and is not written
// in the same transaction as the change it describes.
func LogCaseActivity(
	ctx context.Context,
	db *gorm.DB,
	caseID, actorID uuid.UUID,
	action, description string,
	details map[string]any,
) {
	var raw datatypes.JSON
	if len(details) > 0 {
		if b, err := json.Marshal(details); err == nil {
			raw = b
		}
	}
	err := db.WithContext(ctx).Create(&models.CaseActivity{
		CaseID:      caseID,
		ActionType:  action,
		Description: description,
		PerformedBy: actorID,
		Details:     raw,
		CreatedAt:   time.Now(),
	}).Error
	if err != nil {
		slog.Warn("case activity not recorded", "case_id", caseID, "action", action, "error", err)
	}
}

// ParsePage reads page/pageSize query params with sane bounds.
func ParsePage(c *fiber.Ctx) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	size, _ = strconv.Atoi(c.Query("pageSize", "10"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 50 {
		size = 10
	}
	return
}

// NewPage builds the listing envelope, normalizing nil items to [].
func NewPage[T any](page, size int, total int64, items []T) models.Page[T] {
	if items == nil {
		items = []T{}
	}
	return models.Page[T]{
		Page:     page,
		PageSize: size,
		Total:    total,
		Pages:    int(math.Ceil(float64(total) / float64(size))),
		Items:    items,
	}
}

// ParseDate accepts YYYY-MM-DD and returns nil for empty input.
func ParseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ParseUUIDParam parses a route param as UUID or returns 400.
func ParseUUIDParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// ParseOptionalUUID parses an optional UUID string from a request body.
func ParseOptionalUUID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
