package notifications

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-case-manager/internal/auth"
	"github.com/aldoetobex/legal-case-manager/pkg/models"
	"github.com/aldoetobex/legal-case-manager/pkg/utils"
)

// ListResponse is a page of notifications plus the unread total.
type ListResponse struct {
	models.Page[models.Notification]
	Unread int64 `json:"unread"`
}

type Handler struct{ db *gorm.DB }

func NewHandler(db *gorm.DB) *Handler { return &Handler{db: db} }

// List Notifications godoc
// @Summary      List my notifications
// @Description  Unread first, newest first
// @Tags         notifications
// @Security     BearerAuth
// @Produce      json
// @Param        unread    query bool false "only unread"
// @Param        page      query int  false "page"
// @Param        pageSize  query int  false "pageSize"
// @Success      200  {object}  ListResponse
// @Router       /notifications [get]
func (h *Handler) List(c *fiber.Ctx) error {
	uid := auth.MustUserID(c)
	page, size := utils.ParsePage(c)
	db := h.db.WithContext(c.UserContext())

	q := db.Model(&models.Notification{}).Where("user_id = ?", uid)
	if c.QueryBool("unread") {
		q = q.Where("is_read = ?", false)
	}
	q = q.Session(&gorm.Session{})

	var total, unread int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if err := db.Model(&models.Notification{}).Where("user_id = ? AND is_read = ?", uid, false).
		Count(&unread).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	var items []models.Notification
	if err := q.Order("is_read ASC, created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&items).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(ListResponse{Page: utils.NewPage(page, size, total, items), Unread: unread})
}

// Mark Read godoc
// @Summary      Mark a notification read
// @Tags         notifications
// @Security     BearerAuth
// @Param        id   path string true "notification id (uuid)"
// @Success      204
// @Failure      404  {object}  models.ErrorResponse
// @Router       /notifications/{id}/read [patch]
func (h *Handler) MarkRead(c *fiber.Ctx) error {
	n, err := h.load(c)
	if err != nil {
		return err
	}
	if err := h.db.WithContext(c.UserContext()).Model(&n).Update("is_read", true).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Mark All Read godoc
// @Summary      Mark all my notifications read
// @Tags         notifications
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  map[string]int64 "updated"
// @Router       /notifications/read-all [patch]
func (h *Handler) MarkAllRead(c *fiber.Ctx) error {
	res := h.db.WithContext(c.UserContext()).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", auth.MustUserID(c), false).
		Update("is_read", true)
	if res.Error != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"updated": res.RowsAffected})
}

// Delete Notification godoc
// @Summary      Delete a notification
// @Tags         notifications
// @Security     BearerAuth
// @Param        id   path string true "notification id (uuid)"
// @Success      204
// @Failure      404  {object}  models.ErrorResponse
// @Router       /notifications/{id} [delete]
func (h *Handler) Delete(c *fiber.Ctx) error {
	n, err := h.load(c)
	if err != nil {
		return err
	}
	if err := h.db.WithContext(c.UserContext()).Delete(&n).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) load(c *fiber.Ctx) (models.Notification, error) {
	var n models.Notification
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return n, err
	}
	err = h.db.WithContext(c.UserContext()).
		First(&n, "id = ? AND user_id = ?", id, auth.MustUserID(c)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return n, fiber.ErrNotFound
	}
	if err != nil {
		return n, fiber.ErrInternalServerError
	}
	return n, nil
}
