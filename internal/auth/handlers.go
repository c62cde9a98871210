package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-case-manager/internal/storage"
	"github.com/aldoetobex/legal-case-manager/pkg/models"
	"github.com/aldoetobex/legal-case-manager/pkg/validation"
)

/* ================================ DTOs ================================= */

// Request body for /signup
type SignupRequest struct {
	Role     string `json:"role" validate:"required,oneof=advocate client"`
	Name     string `json:"name" validate:"required,min=2,max=80"`
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Phone    string `json:"phone" validate:"omitempty,max=30"`
	// Optional for advocates
	LicenseNumber  string `json:"license_number" validate:"omitempty,license"`
	Specialization string `json:"specialization" validate:"omitempty,max=80"`
}

// Request body for /login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required"`
}

// Request body for PUT /me
type UpdateMeRequest struct {
	Name    string `json:"name" validate:"required,min=2,max=80"`
	Phone   string `json:"phone" validate:"omitempty,max=30"`
	Address string `json:"address" validate:"omitempty,max=255"`
}

// Request body for PUT /me/password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6,max=72,nefield=CurrentPassword"`
}

// Request body for POST /staff
type CreateStaffRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=80"`
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// Standard auth response
type AuthResponse struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Profile response for /me
type UserProfileResponse struct {
	models.User
	AdvocateProfile *models.AdvocateProfile `json:"advocate_profile,omitempty"`
	ClientProfile   *models.ClientProfile   `json:"client_profile,omitempty"`
}

/* ============================== Handler ================================= */

type Handler struct {
	db        *gorm.DB
	sessions  *Sessions
	store     storage.Storage
	maxUpload int64
}

func NewHandler(db *gorm.DB, sessions *Sessions, store storage.Storage, maxUpload int64) *Handler {
	return &Handler{db: db, sessions: sessions, store: store, maxUpload: maxUpload}
}

/* =============================== Signup ================================= */

// @Summary      Sign up
// @Description  Register a new advocate or client account
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  SignupRequest  true  "Signup payload"
// @Success      201      {object}  AuthResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      409      {object}  models.ErrorResponse  "email already exists"
// @Router       /signup [post]
func (h *Handler) Signup(c *fiber.Ctx) error {
	var in SignupRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}

	// Normalize email
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	// Validate request (Laravel-like error shape)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	if h.emailTaken(c.UserContext(), in.Email) {
		return fiber.NewError(fiber.StatusConflict, "email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	u := models.User{
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         models.Role(in.Role),
		Name:         strings.TrimSpace(in.Name),
		Phone:        in.Phone,
	}

	// User and profile are created together
	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&u).Error; err != nil {
			return err
		}
		if u.Role == models.RoleAdvocate {
			return tx.Omit("User").Create(&models.AdvocateProfile{
				UserID:         u.ID,
				LicenseNumber:  in.LicenseNumber,
				Specialization: in.Specialization,
			}).Error
		}
		return tx.Omit("User").Create(&models.ClientProfile{UserID: u.ID, ReferenceSource: "self-registered"}).Error
	})
	if err != nil {
		return fiber.NewError(fiber.StatusConflict, "email already exists")
	}

	return h.respondWithSession(c, fiber.StatusCreated, u)
}

func (h *Handler) emailTaken(ctx context.Context, email string) bool {
	var n int64
	h.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&n)
	return n > 0
}

func (h *Handler) respondWithSession(c *fiber.Ctx, status int, u models.User) error {
	token, exp, err := h.sessions.IssueToken(u.ID, u.Role)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	h.sessions.SetCookie(c, token, exp)
	return c.Status(status).JSON(AuthResponse{Token: token, Role: string(u.Role), ExpiresAt: exp})
}

/* ================================ Login ================================= */

// @Summary      Login
// @Description  Authenticate and receive a session token (also set as cookie)
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  LoginRequest  true  "Login payload"
// @Success      200      {object}  AuthResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      401      {object}  models.ErrorResponse
// @Router       /login [post]
func (h *Handler) Login(c *fiber.Ctx) error {
	var in LoginRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var u models.User
	if err := h.db.WithContext(c.UserContext()).Where("email = ?", in.Email).First(&u).Error; err != nil {
		return fiber.ErrUnauthorized
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		return fiber.ErrUnauthorized
	}

	return h.respondWithSession(c, fiber.StatusOK, u)
}

// @Summary      Logout
// @Description  Clear the session cookie
// @Tags         auth
// @Produce      json
// @Success      200  {object}  map[string]bool
// @Router       /logout [post]
func (h *Handler) Logout(c *fiber.Ctx) error {
	h.sessions.ClearCookie(c)
	return c.JSON(fiber.Map{"success": true})
}

/* ================================= Me =================================== */

// @Summary      Get current user profile
// @Description  Return the authenticated user with the role-specific profile
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  UserProfileResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /me [get]
func (h *Handler) Me(c *fiber.Ctx) error {
	uid := MustUserID(c)
	db := h.db.WithContext(c.UserContext())

	var u models.User
	if err := db.First(&u, "id = ?", uid).Error; err != nil {
		return fiber.ErrUnauthorized
	}

	resp := UserProfileResponse{User: u}
	switch u.Role {
	case models.RoleAdvocate:
		var p models.AdvocateProfile
		if db.Where("user_id = ?", uid).First(&p).Error == nil {
			resp.AdvocateProfile = &p
		}
	case models.RoleClient:
		var p models.ClientProfile
		if db.Where("user_id = ?", uid).First(&p).Error == nil {
			resp.ClientProfile = &p
		}
	}
	return c.JSON(resp)
}

// @Summary      Update current user
// @Tags         auth
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  UpdateMeRequest  true  "Contact fields"
// @Success      200  {object}  models.User
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /me [put]
func (h *Handler) UpdateMe(c *fiber.Ctx) error {
	var in UpdateMeRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	uid := MustUserID(c)
	db := h.db.WithContext(c.UserContext())
	if err := db.Model(&models.User{}).Where("id = ?", uid).Updates(map[string]any{
		"name":    strings.TrimSpace(in.Name),
		"phone":   in.Phone,
		"address": in.Address,
	}).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to update profile")
	}

	var u models.User
	if err := db.First(&u, "id = ?", uid).Error; err != nil {
		return fiber.ErrNotFound
	}
	return c.JSON(u)
}

// @Summary      Change password
// @Tags         auth
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  ChangePasswordRequest  true  "Passwords"
// @Success      200  {object}  map[string]bool
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      401  {object}  models.ErrorResponse  "current password is wrong"
// @Router       /me/password [put]
func (h *Handler) ChangePassword(c *fiber.Ctx) error {
	var in ChangePasswordRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	uid := MustUserID(c)
	db := h.db.WithContext(c.UserContext())

	var u models.User
	if err := db.First(&u, "id = ?", uid).Error; err != nil {
		return fiber.ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.CurrentPassword)) != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "current password is wrong")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := db.Model(&u).Update("password_hash", string(hash)).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to change password")
	}
	return c.JSON(fiber.Map{"success": true})
}

/* ============================ Profile image ============================= */

// @Summary      Upload profile image
// @Tags         auth
// @Security     BearerAuth
// @Accept       mpfd
// @Produce      json
// @Param        file  formData  file  true  "jpg or png"
// @Success      200  {object}  models.User
// @Failure      400  {object}  models.ErrorResponse
// @Router       /me/avatar [post]
func (h *Handler) UploadAvatar(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "file is required")
	}
	ext, err := storage.CheckFile(fh.Filename, fh.Size, h.maxUpload, storage.ImageExtensions)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	f, err := fh.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "cannot read file")
	}
	defer f.Close()

	ctx := c.UserContext()
	key := storage.NewKey(storage.CategoryProfiles, ext)
	if err := h.store.Save(ctx, key, f, storage.ContentType(ext)); err != nil {
		return fmt.Errorf("save avatar: %w", err)
	}

	uid := MustUserID(c)
	var u models.User
	if err := h.db.WithContext(ctx).First(&u, "id = ?", uid).Error; err != nil {
		_ = h.store.Delete(ctx, key)
		return fiber.ErrUnauthorized
	}
	old := u.ProfileImage
	if err := h.db.WithContext(ctx).Model(&u).Update("profile_image", key).Error; err != nil {
		_ = h.store.Delete(ctx, key)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to save profile image")
	}
	if old != "" {
		if err := h.store.Delete(ctx, old); err != nil {
			slog.Warn("old profile image not removed", "key", old, "error", err)
		}
	}
	return c.JSON(u)
}

// @Summary      Download a user's profile image
// @Tags         auth
// @Security     BearerAuth
// @Produce      octet-stream
// @Param        id  path  string  true  "User ID"
// @Success      200  {file}  binary
// @Failure      404  {object}  models.ErrorResponse
// @Router       /users/{id}/avatar [get]
func (h *Handler) Avatar(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.ErrBadRequest
	}
	var u models.User
	if err := h.db.WithContext(c.UserContext()).Select("id", "profile_image").First(&u, "id = ?", id).Error; err != nil || u.ProfileImage == "" {
		return fiber.ErrNotFound
	}
	rc, err := h.store.Open(c.UserContext(), u.ProfileImage)
	if errors.Is(err, storage.ErrNotFound) {
		return fiber.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("open avatar: %w", err)
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read avatar: %w", err)
	}
	c.Set(fiber.HeaderContentType, storage.ContentType(extOf(u.ProfileImage)))
	return c.Send(b)
}

func extOf(key string) string {
	if i := strings.LastIndex(key, "."); i >= 0 {
		return key[i:]
	}
	return ""
}

/* ================================ Staff ================================= */

// @Summary      Create staff account
// @Description  Staff members can add other staff
// @Tags         auth
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateStaffRequest  true  "Staff account"
// @Success      201  {object}  models.User
// @Failure      409  {object}  models.ErrorResponse
// @Router       /staff [post]
func (h *Handler) CreateStaff(c *fiber.Ctx) error {
	var in CreateStaffRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	u, err := createStaff(c.UserContext(), h.db, in.Name, in.Email, in.Password)
	if err != nil {
		return fiber.NewError(fiber.StatusConflict, "email already exists")
	}
	return c.Status(fiber.StatusCreated).JSON(u)
}

func createStaff(ctx context.Context, db *gorm.DB, name, email, password string) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}
	u := models.User{Name: name, Email: email, PasswordHash: string(hash), Role: models.RoleStaff}
	return u, db.WithContext(ctx).Create(&u).Error
}

// EnsureStaff creates the first staff account when none exists yet.
func EnsureStaff(ctx context.Context, db *gorm.DB, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	var n int64
	if err := db.WithContext(ctx).Model(&models.User{}).Where("role = ?", models.RoleStaff).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := createStaff(ctx, db, "Administrator", strings.ToLower(email), password); err != nil {
		return fmt.Errorf("bootstrap staff: %w", err)
	}
	slog.Info("bootstrap staff account created", "email", email)
	return nil
}
