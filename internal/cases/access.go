package cases

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-case-manager/pkg/models"
)

// Row-level rules shared by every case-scoped resource:
//   - staff see every case
//   - advocates see cases they are assigned to
//   - clients see their own cases
//
// Anything else is reported as 404 so existence is not leaked.

// Scope restricts a query on cases to what userID may see.
func Scope(db *gorm.DB, userID uuid.UUID, role models.Role) *gorm.DB {
	switch role {
	case models.RoleStaff:
		return db
	case models.RoleAdvocate:
		return db.Where("cases.id IN (?)",
			db.Session(&gorm.Session{NewDB: true}).Model(&models.CaseAssignment{}).
				Select("case_id").Where("advocate_id = ?", userID))
	default:
		return db.Where("cases.client_id = ?", userID)
	}
}

// Load returns the case if userID may see it, or 404.
func Load(ctx context.Context, db *gorm.DB, caseID, userID uuid.UUID, role models.Role) (models.Case, error) {
	var cs models.Case
	err := Scope(db.WithContext(ctx).Model(&models.Case{}), userID, role).
		Where("cases.id = ?", caseID).
		First(&cs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cs, fiber.ErrNotFound
	}
	if err != nil {
		return cs, fiber.ErrInternalServerError
	}
	return cs, nil
}

// LoadForWrite is Load restricted to staff and assigned advocates.
// Clients get 403 on cases they can see, 404 otherwise.
func LoadForWrite(ctx context.Context, db *gorm.DB, caseID, userID uuid.UUID, role models.Role) (models.Case, error) {
	cs, err := Load(ctx, db, caseID, userID, role)
	if err != nil {
		return cs, err
	}
	if role == models.RoleClient {
		return cs, fiber.ErrForbidden
	}
	return cs, nil
}

// IsAssigned reports whether advocateID works on caseID.
func IsAssigned(ctx context.Context, db *gorm.DB, caseID, advocateID uuid.UUID) bool {
	var n int64
	db.WithContext(ctx).Model(&models.CaseAssignment{}).
		Where("case_id = ? AND advocate_id = ?", caseID, advocateID).
		Count(&n)
	return n > 0
}

// AdvocateIDs lists the advocates assigned to caseID.
func AdvocateIDs(ctx context.Context, db *gorm.DB, caseID uuid.UUID) []uuid.UUID {
	var ids []uuid.UUID
	db.WithContext(ctx).Model(&models.CaseAssignment{}).
		Where("case_id = ?", caseID).
		Pluck("advocate_id", &ids)
	return ids
}
