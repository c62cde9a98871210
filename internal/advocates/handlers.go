package advocates

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-case-manager/internal/auth"
	"github.com/aldoetobex/legal-case-manager/pkg/models"
	"github.com/aldoetobex/legal-case-manager/pkg/utils"
	"github.com/aldoetobex/legal-case-manager/pkg/validation"
)

type UpdateProfileRequest struct {
	LicenseNumber   string `json:"license_number" validate:"omitempty,license"`
	Specialization  string `json:"specialization" validate:"omitempty,max=80"`
	ExperienceYears int    `json:"experience_years" validate:"gte=0,lte=80"`
	HourlyRateCents int64  `json:"hourly_rate_cents" validate:"gte=0"`
	Bio             string `json:"bio" validate:"omitempty,max=4000"`
}

type Handler struct{ db *gorm.DB }

func NewHandler(db *gorm.DB) *Handler { return &Handler{db: db} }

// List Advocates godoc
// @Summary      List advocates
// @Description  Directory of advocates (for assignment and messaging)
// @Tags         advocates
// @Security     BearerAuth
// @Produce      json
// @Param        q               query string false "search name"
// @Param        specialization  query string false "specialization"
// @Param        page            query int    false "page"
// @Param        pageSize        query int    false "pageSize"
// @Success      200  {object}  models.Page[models.AdvocateProfile]
// @Router       /advocates [get]
func (h *Handler) List(c *fiber.Ctx) error {
	page, size := utils.ParsePage(c)

	q := h.db.WithContext(c.UserContext()).Model(&models.AdvocateProfile{}).
		Joins("JOIN users ON users.id = advocate_profiles.user_id")
	if term := strings.TrimSpace(c.Query("q")); term != "" {
		q = q.Where("LOWER(users.name) LIKE ?", "%"+strings.ToLower(term)+"%")
	}
	if s := strings.TrimSpace(c.Query("specialization")); s != "" {
		q = q.Where("advocate_profiles.specialization = ?", s)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	var items []models.AdvocateProfile
	if err := q.Preload("User").Order("users.name ASC").
		Offset((page - 1) * size).Limit(size).
		Find(&items).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(utils.NewPage(page, size, total, items))
}

// Advocate Detail godoc
// @Summary      Advocate profile
// @Tags         advocates
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "advocate user id (uuid)"
// @Success      200  {object}  models.AdvocateProfile
// @Failure      404  {object}  models.ErrorResponse
// @Router       /advocates/{id} [get]
func (h *Handler) Detail(c *fiber.Ctx) error {
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var p models.AdvocateProfile
	err = h.db.WithContext(c.UserContext()).Preload("User").Where("user_id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.ErrNotFound
	}
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(p)
}

// Update Own Profile godoc
// @Summary      Update my advocate profile
// @Tags         advocates
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  UpdateProfileRequest  true  "Profile"
// @Success      200  {object}  models.AdvocateProfile
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /advocates/me [put]
func (h *Handler) UpdateMine(c *fiber.Ctx) error {
	var in UpdateProfileRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	uid := auth.MustUserID(c)
	db := h.db.WithContext(c.UserContext())

	var p models.AdvocateProfile
	if err := db.Where("user_id = ?", uid).First(&p).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrInternalServerError
		}
		p = models.AdvocateProfile{UserID: uid}
	}
	p.LicenseNumber = strings.TrimSpace(in.LicenseNumber)
	p.Specialization = strings.TrimSpace(in.Specialization)
	p.ExperienceYears = in.ExperienceYears
	p.HourlyRateCents = in.HourlyRateCents
	p.Bio = in.Bio

	if err := db.Omit("User").Save(&p).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to save profile")
	}
	db.Preload("User").First(&p, "id = ?", p.ID)
	return c.JSON(p)
}
