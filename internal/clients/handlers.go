package clients

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-case-manager/internal/auth"
	"github.com/aldoetobex/legal-case-manager/internal/cases"
	"github.com/aldoetobex/legal-case-manager/pkg/models"
	"github.com/aldoetobex/legal-case-manager/pkg/utils"
	"github.com/aldoetobex/legal-case-manager/pkg/validation"
)

/* ================================ DTOs ================================= */

type CreateClientRequest struct {
	Name            string `json:"name" validate:"required,min=2,max=80"`
	Email           string `json:"email" validate:"required,email,max=120"`
	Password        string `json:"password" validate:"omitempty,min=6,max=72"`
	Phone           string `json:"phone" validate:"omitempty,max=30"`
	Address         string `json:"address" validate:"omitempty,max=255"`
	Occupation      string `json:"occupation" validate:"omitempty,max=80"`
	Company         string `json:"company" validate:"omitempty,max=120"`
	ReferenceSource string `json:"reference_source" validate:"omitempty,max=80"`
	Notes           string `json:"notes" validate:"omitempty,max=2000"`
}

type UpdateClientRequest struct {
	Name            string `json:"name" validate:"required,min=2,max=80"`
	Phone           string `json:"phone" validate:"omitempty,max=30"`
	Address         string `json:"address" validate:"omitempty,max=255"`
	Occupation      string `json:"occupation" validate:"omitempty,max=80"`
	Company         string `json:"company" validate:"omitempty,max=120"`
	ReferenceSource string `json:"reference_source" validate:"omitempty,max=80"`
	Notes           string `json:"notes" validate:"omitempty,max=2000"`
}

// ClientDetail is a client profile with the cases the caller can see.
type ClientDetail struct {
	models.ClientProfile
	Cases []models.Case `json:"cases"`
}

/* ============================== Handler ================================= */

type Handler struct{ db *gorm.DB }

func NewHandler(db *gorm.DB) *Handler { return &Handler{db: db} }

// scope limits client profiles to those the caller may see: staff see all,
// advocates see clients they registered or work for.
func scope(db *gorm.DB, uid uuid.UUID, role models.Role) *gorm.DB {
	if role == models.RoleStaff {
		return db
	}
	viaCases := cases.Scope(db.Session(&gorm.Session{NewDB: true}).Model(&models.Case{}), uid, role).
		Select("cases.client_id")
	return db.Where("(client_profiles.created_by = ? OR client_profiles.user_id IN (?))", uid, viaCases)
}

/* =============================== Create ================================= */

// Create Client godoc
// @Summary      Register client
// @Description  Advocate or staff registers a client account and profile
// @Tags         clients
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateClientRequest  true  "Client"
// @Success      201  {object}  models.ClientProfile
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      409  {object}  models.ErrorResponse  "email already exists"
// @Router       /clients [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreateClientRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	ctx := c.UserContext()
	uid := auth.MustUserID(c)

	var n int64
	h.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", in.Email).Count(&n)
	if n > 0 {
		return fiber.NewError(fiber.StatusConflict, "email already exists")
	}

	password := in.Password
	if password == "" {
		// The client sets a real password later through the change-password flow.
		password = randomPassword()
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	u := models.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         models.RoleClient,
		Phone:        in.Phone,
		Address:      in.Address,
	}
	p := models.ClientProfile{
		Occupation:      in.Occupation,
		Company:         in.Company,
		ReferenceSource: in.ReferenceSource,
		Notes:           in.Notes,
		CreatedBy:       &uid,
	}
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&u).Error; err != nil {
			return err
		}
		p.UserID = u.ID
		return tx.Omit("User").Create(&p).Error
	})
	if err != nil {
		return fiber.NewError(fiber.StatusConflict, "email already exists")
	}

	p.User = u
	return c.Status(fiber.StatusCreated).JSON(p)
}

func randomPassword() string {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

/* ================================ List ================================== */

// List Clients godoc
// @Summary      List clients
// @Tags         clients
// @Security     BearerAuth
// @Produce      json
// @Param        q         query string false "search name or email"
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Success      200  {object}  models.Page[models.ClientProfile]
// @Router       /clients [get]
func (h *Handler) List(c *fiber.Ctx) error {
	uid, role := auth.MustUserID(c), auth.MustRole(c)
	page, size := utils.ParsePage(c)

	q := scope(h.db.WithContext(c.UserContext()).Model(&models.ClientProfile{}), uid, role).
		Joins("JOIN users ON users.id = client_profiles.user_id")
	if term := strings.TrimSpace(c.Query("q")); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("(LOWER(users.name) LIKE ? OR LOWER(users.email) LIKE ?)", like, like)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	var items []models.ClientProfile
	if err := q.Preload("User").
		Order("users.name ASC").
		Offset((page - 1) * size).Limit(size).
		Find(&items).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(utils.NewPage(page, size, total, items))
}

/* =============================== Detail ================================= */

func (h *Handler) load(c *fiber.Ctx) (models.ClientProfile, error) {
	var p models.ClientProfile
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return p, err
	}
	err = scope(h.db.WithContext(c.UserContext()).Model(&models.ClientProfile{}), auth.MustUserID(c), auth.MustRole(c)).
		Preload("User").
		Where("client_profiles.user_id = ?", id).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return p, fiber.ErrNotFound
	}
	if err != nil {
		return p, fiber.ErrInternalServerError
	}
	return p, nil
}

// Client Detail godoc
// @Summary      Client detail
// @Tags         clients
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "client user id (uuid)"
// @Success      200  {object}  ClientDetail
// @Failure      404  {object}  models.ErrorResponse
// @Router       /clients/{id} [get]
func (h *Handler) Detail(c *fiber.Ctx) error {
	p, err := h.load(c)
	if err != nil {
		return err
	}
	out := ClientDetail{ClientProfile: p}
	if err := cases.Scope(h.db.WithContext(c.UserContext()).Model(&models.Case{}), auth.MustUserID(c), auth.MustRole(c)).
		Where("cases.client_id = ?", p.UserID).
		Order("cases.created_at DESC").
		Find(&out.Cases).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if out.Cases == nil {
		out.Cases = []models.Case{}
	}
	return c.JSON(out)
}

// Update Client godoc
// @Summary      Update client
// @Tags         clients
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path string              true "client user id (uuid)"
// @Param        payload  body UpdateClientRequest true "Client fields"
// @Success      200  {object}  models.ClientProfile
// @Failure      404  {object}  models.ErrorResponse
// @Router       /clients/{id} [put]
func (h *Handler) Update(c *fiber.Ctx) error {
	var in UpdateClientRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	p, err := h.load(c)
	if err != nil {
		return err
	}

	db := h.db.WithContext(c.UserContext())
	if err := db.Model(&models.User{}).Where("id = ?", p.UserID).Updates(map[string]any{
		"name":    strings.TrimSpace(in.Name),
		"phone":   in.Phone,
		"address": in.Address,
	}).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to update client")
	}
	if err := db.Model(&models.ClientProfile{}).Where("id = ?", p.ID).Updates(map[string]any{
		"occupation":       in.Occupation,
		"company":          in.Company,
		"reference_source": in.ReferenceSource,
		"notes":            in.Notes,
	}).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to update client")
	}

	p, err = h.load(c)
	if err != nil {
		return err
	}
	return c.JSON(p)
}
