package messages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-case-manager/internal/auth"
	"github.com/aldoetobex/legal-case-manager/internal/notify"
	"github.com/aldoetobex/legal-case-manager/internal/storage"
	"github.com/aldoetobex/legal-case-manager/pkg/models"
	"github.com/aldoetobex/legal-case-manager/pkg/sanitize"
	"github.com/aldoetobex/legal-case-manager/pkg/utils"
	"github.com/aldoetobex/legal-case-manager/pkg/validation"
)

/* ================================ DTOs ================================= */

// SendRequest is accepted as JSON or multipart (with an optional "attachment" file).
type SendRequest struct {
	RecipientID string `json:"recipient_id" form:"recipient_id" validate:"required,uuid"`
	Subject     string `json:"subject" form:"subject" validate:"required,max=200"`
	Body        string `json:"body" form:"body" validate:"required,max=20000"`
}

type ReplyRequest struct {
	Body string `json:"body" form:"body" validate:"required,max=20000"`
}

// MessageView is a message with its rendered body.
type MessageView struct {
	models.Message
	BodyHTML string `json:"body_html"`
}

// ActionResult is returned by star/trash/restore/purge.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Starred *bool  `json:"is_starred,omitempty"`
	Purged  *bool  `json:"purged,omitempty"`
}

// Folders.
const (
	FolderInbox   = "inbox"
	FolderSent    = "sent"
	FolderStarred = "starred"
	FolderTrash   = "trash"
)

/* ============================== Handler ================================= */

type Handler struct {
	db        *gorm.DB
	store     storage.Storage
	notifier  *notify.Notifier
	maxUpload int64
}

func NewHandler(db *gorm.DB, store storage.Storage, notifier *notify.Notifier, maxUpload int64) *Handler {
	return &Handler{db: db, store: store, notifier: notifier, maxUpload: maxUpload}
}

// load returns the message and the caller's side of it. Non-parties get 404.
func (h *Handler) load(c *fiber.Ctx) (models.Message, Party, error) {
	var m models.Message
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return m, 0, err
	}
	err = h.db.WithContext(c.UserContext()).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return m, 0, fiber.ErrNotFound
	}
	if err != nil {
		return m, 0, fiber.ErrInternalServerError
	}
	p, ok := PartyOf(&m, auth.MustUserID(c))
	if !ok {
		return m, 0, fiber.ErrNotFound
	}
	return m, p, nil
}

// folderScope restricts a message query to one folder of userID.
func folderScope(q *gorm.DB, folder string, userID uuid.UUID) (*gorm.DB, error) {
	switch folder {
	case "", FolderInbox:
		return q.Where("recipient_id = ? AND is_deleted_by_recipient = ?", userID, false), nil
	case FolderSent:
		return q.Where("sender_id = ? AND is_deleted_by_sender = ?", userID, false), nil
	case FolderStarred:
		return q.Where("is_starred = ? AND ((recipient_id = ? AND is_deleted_by_recipient = ?) OR (sender_id = ? AND is_deleted_by_sender = ?))",
			true, userID, false, userID, false), nil
	case FolderTrash:
		return q.Where("((recipient_id = ? AND is_deleted_by_recipient = ?) OR (sender_id = ? AND is_deleted_by_sender = ?))",
			userID, true, userID, true), nil
	default:
		return q, fiber.NewError(fiber.StatusBadRequest, "folder must be one of inbox, sent, starred, trash")
	}
}

/* =============================== Listing ================================ */

// List Messages godoc
// @Summary      List a mailbox folder
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        folder    query string false "inbox (default) | sent | starred | trash"
// @Param        q         query string false "search subject or body"
// @Param        unread    query bool   false "only unread (inbox)"
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Success      200  {object}  models.Page[models.Message]
// @Failure      400  {object}  models.ErrorResponse
// @Router       /messages [get]
func (h *Handler) List(c *fiber.Ctx) error {
	uid := auth.MustUserID(c)
	page, size := utils.ParsePage(c)

	q, err := folderScope(h.db.WithContext(c.UserContext()).Model(&models.Message{}), c.Query("folder"), uid)
	if err != nil {
		return err
	}
	if s := strings.TrimSpace(c.Query("q")); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("(LOWER(subject) LIKE ? OR LOWER(body) LIKE ?)", like, like)
	}
	if c.QueryBool("unread") {
		q = q.Where("recipient_id = ? AND is_read = ?", uid, false)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	var items []models.Message
	if err := q.Preload("Sender").Preload("Recipient").
		Order("created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&items).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(utils.NewPage(page, size, total, items))
}

// Unread Count godoc
// @Summary      Unread inbox count
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  map[string]int64
// @Router       /messages/unread-count [get]
func (h *Handler) UnreadCount(c *fiber.Ctx) error {
	var n int64
	if err := h.db.WithContext(c.UserContext()).Model(&models.Message{}).
		Where("recipient_id = ? AND is_read = ? AND is_deleted_by_recipient = ?", auth.MustUserID(c), false, false).
		Count(&n).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"count": n})
}

// Read Message godoc
// @Summary      Read a message
// @Description  Opening a message as its recipient marks it read
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "message id (uuid)"
// @Success      200  {object}  MessageView
// @Failure      404  {object}  models.ErrorResponse
// @Router       /messages/{id} [get]
func (h *Handler) Detail(c *fiber.Ctx) error {
	m, p, err := h.load(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	if p == Recipient && !m.IsRead {
		if err := h.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", m.ID).
			Update("is_read", true).Error; err != nil {
			slog.Warn("message not marked read", "message_id", m.ID, "error", err)
		} else {
			m.IsRead = true
		}
	}
	h.db.WithContext(ctx).Select("id", "name", "email", "role").First(&m.Sender, "id = ?", m.SenderID)
	h.db.WithContext(ctx).Select("id", "name", "email", "role").First(&m.Recipient, "id = ?", m.RecipientID)
	return c.JSON(MessageView{Message: m, BodyHTML: RenderBody(m.Body)})
}

// Thread godoc
// @Summary      Replies to a message
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "message id (uuid)"
// @Success      200  {array}   models.Message
// @Failure      404  {object}  models.ErrorResponse
// @Router       /messages/{id}/replies [get]
func (h *Handler) Replies(c *fiber.Ctx) error {
	m, _, err := h.load(c)
	if err != nil {
		return err
	}
	uid := auth.MustUserID(c)
	items := []models.Message{}
	if err := h.db.WithContext(c.UserContext()).
		Where("parent_id = ? AND ((sender_id = ? AND is_deleted_by_sender = ?) OR (recipient_id = ? AND is_deleted_by_recipient = ?))",
			m.ID, uid, false, uid, false).
		Order("created_at ASC").Find(&items).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(items)
}

/* ================================ Send ================================== */

// Send Message godoc
// @Summary      Send a message
// @Description  JSON or multipart; multipart may carry one "attachment" file
// @Tags         messages
// @Security     BearerAuth
// @Accept       json,mpfd
// @Produce      json
// @Param        payload     body      SendRequest  true   "Message"
// @Param        attachment  formData  file         false  "attachment"
// @Success      201  {object}  models.Message
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      422  {object}  models.ErrorResponse
// @Router       /messages [post]
func (h *Handler) Send(c *fiber.Ctx) error {
	var in SendRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	uid := auth.MustUserID(c)
	recipient := uuid.MustParse(in.RecipientID)
	if recipient == uid {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "cannot send a message to yourself")
	}
	if !h.userExists(c.UserContext(), recipient) {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "recipient not found")
	}

	m := models.Message{
		SenderID:    uid,
		RecipientID: recipient,
		Subject:     strings.TrimSpace(in.Subject),
		Body:        in.Body,
	}
	return h.deliver(c, m)
}

// Reply godoc
// @Summary      Reply to a message
// @Description  Goes to the other party with a "Re: " subject and parent_id set
// @Tags         messages
// @Security     BearerAuth
// @Accept       json,mpfd
// @Produce      json
// @Param        id       path string       true "message id (uuid)"
// @Param        payload  body ReplyRequest true "Reply"
// @Success      201  {object}  models.Message
// @Failure      404  {object}  models.ErrorResponse
// @Failure      422  {object}  models.ErrorResponse
// @Router       /messages/{id}/reply [post]
func (h *Handler) Reply(c *fiber.Ctx) error {
	orig, p, err := h.load(c)
	if err != nil {
		return err
	}
	var in ReplyRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	to := Counterpart(&orig, p)
	if !h.userExists(c.UserContext(), to) {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "the other party no longer exists")
	}

	m := models.Message{
		SenderID:    auth.MustUserID(c),
		RecipientID: to,
		Subject:     replySubject(orig.Subject),
		Body:        in.Body,
		ParentID:    &orig.ID,
	}
	return h.deliver(c, m)
}

func replySubject(s string) string {
	if strings.HasPrefix(strings.ToLower(s), "re:") {
		return s
	}
	return "Re: " + s
}

// deliver stores an optional attachment, inserts m and notifies the recipient.
func (h *Handler) deliver(c *fiber.Ctx, m models.Message) error {
	ctx := c.UserContext()

	if fh, err := c.FormFile("attachment"); err == nil {
		ext, err := storage.CheckFile(fh.Filename, fh.Size, h.maxUpload, storage.AllowedExtensions)
		if err != nil {
			return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
		}
		f, err := fh.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "cannot read attachment")
		}
		defer f.Close()

		key := storage.NewKey(storage.CategoryMessages, ext)
		if err := h.store.Save(ctx, key, f, storage.ContentType(ext)); err != nil {
			return fmt.Errorf("save attachment: %w", err)
		}
		m.Attachment = key
		m.AttachmentName = sanitize.Filename(fh.Filename)
	}

	m.CreatedAt = time.Now()
	if err := h.db.WithContext(ctx).Omit("Sender", "Recipient").Create(&m).Error; err != nil {
		h.removeAttachment(ctx, m.Attachment)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to send message")
	}

	var sender models.User
	h.db.WithContext(ctx).Select("id", "name").First(&sender, "id = ?", m.SenderID)
	h.notifier.Notify(ctx, m.SenderID, notify.Notice{
		UserID:    m.RecipientID,
		Title:     "New message from " + sender.Name,
		Message:   sanitize.Summary(m.Subject, 120),
		RelatedTo: notify.RelatedMessage,
		RelatedID: &m.ID,
	})
	return c.Status(fiber.StatusCreated).JSON(m)
}

func (h *Handler) userExists(ctx context.Context, id uuid.UUID) bool {
	var n int64
	h.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Count(&n)
	return n > 0
}

/* ================================ Flags ================================= */

// Toggle Star godoc
// @Summary      Toggle the star flag
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "message id (uuid)"
// @Success      200  {object}  ActionResult
// @Failure      404  {object}  models.ErrorResponse
// @Router       /messages/{id}/star [post]
func (h *Handler) ToggleStar(c *fiber.Ctx) error {
	m, _, err := h.load(c)
	if err != nil {
		return err
	}
	starred := !m.IsStarred
	if err := h.db.WithContext(c.UserContext()).Model(&models.Message{}).Where("id = ?", m.ID).
		Update("is_starred", starred).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ActionResult{Success: false, Message: "Failed to update star"})
	}
	msg := "Message unstarred"
	if starred {
		msg = "Message starred"
	}
	return c.JSON(ActionResult{Success: true, Message: msg, Starred: &starred})
}

// Trash godoc
// @Summary      Move a message to my trash
// @Description  The row is removed once both parties have trashed it
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "message id (uuid)"
// @Success      200  {object}  ActionResult
// @Failure      404  {object}  models.ErrorResponse
// @Router       /messages/{id} [delete]
func (h *Handler) Trash(c *fiber.Ctx) error {
	m, p, err := h.load(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	if err := h.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", m.ID).
		Update(p.column(), true).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to delete message")
	}

	// The other party may have trashed it since we loaded it; the row decides.
	purged, err := h.purge(ctx, m, "is_deleted_by_sender = ? AND is_deleted_by_recipient = ?", true, true)
	if err != nil {
		return err
	}
	if purged {
		return c.JSON(ActionResult{Success: true, Message: "Message deleted", Purged: &purged})
	}
	return c.JSON(ActionResult{Success: true, Message: "Message moved to trash", Purged: &purged})
}

// Restore godoc
// @Summary      Restore a message from my trash
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "message id (uuid)"
// @Success      200  {object}  ActionResult
// @Failure      404  {object}  models.ErrorResponse
// @Router       /messages/{id}/restore [post]
func (h *Handler) Restore(c *fiber.Ctx) error {
	m, p, err := h.load(c)
	if err != nil {
		return err
	}
	if err := h.db.WithContext(c.UserContext()).Model(&models.Message{}).Where("id = ?", m.ID).
		Update(p.column(), false).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to restore message")
	}
	return c.JSON(ActionResult{Success: true, Message: "Message restored"})
}

// Permanent Delete godoc
// @Summary      Permanently delete a message from my trash
// @Description  Purges when the other party has trashed it too or no longer exists. Otherwise nothing changes and purged is false.
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "message id (uuid)"
// @Success      200  {object}  ActionResult
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /messages/{id}/permanent [delete]
func (h *Handler) PermanentDelete(c *fiber.Ctx) error {
	m, p, err := h.load(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	purge, err := PermanentDelete(&m, p, h.userExists(ctx, Counterpart(&m, p)))
	if errors.Is(err, ErrNotInTrash) {
		return fiber.NewError(fiber.StatusConflict, "move the message to trash first")
	}
	purged := false
	if purge {
		// Re-check the flags in the delete itself so a concurrent restore wins.
		where, args := "is_deleted_by_sender = ? AND is_deleted_by_recipient = ?", []any{true, true}
		if !BothTrashed(&m) {
			where, args = p.column()+" = ?", []any{true}
		}
		if purged, err = h.purge(ctx, m, where, args...); err != nil {
			return err
		}
	}
	if !purged {
		return c.JSON(ActionResult{
			Success: true,
			Message: "Message remains available to the other party; it stays in your trash until they delete it too",
			Purged:  &purged,
		})
	}
	return c.JSON(ActionResult{Success: true, Message: "Message permanently deleted", Purged: &purged})
}

// purge deletes m only while cond still holds on the stored row. On success
// replies are detached and the attachment removed.
func (h *Handler) purge(ctx context.Context, m models.Message, cond string, args ...any) (bool, error) {
	db := h.db.WithContext(ctx)
	res := db.Where("id = ?", m.ID).Where(cond, args...).Delete(&models.Message{})
	if res.Error != nil {
		return false, fiber.NewError(fiber.StatusInternalServerError, "failed to delete message")
	}
	if res.RowsAffected != 1 {
		return false, nil
	}
	if err := db.Model(&models.Message{}).Where("parent_id = ?", m.ID).
		Update("parent_id", nil).Error; err != nil {
		slog.Warn("replies not detached from purged message", "message_id", m.ID, "error", err)
	}
	h.removeAttachment(ctx, m.Attachment)
	return true, nil
}

func (h *Handler) removeAttachment(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := h.store.Delete(ctx, key); err != nil {
		slog.Warn("attachment not removed", "key", key, "error", err)
	}
}

/* ============================== Attachment ============================== */

// Download Attachment godoc
// @Summary      Download a message attachment
// @Tags         messages
// @Security     BearerAuth
// @Produce      octet-stream
// @Param        id   path string true "message id (uuid)"
// @Success      200  {file}    binary
// @Success      302
// @Failure      404  {object}  models.ErrorResponse
// @Router       /messages/{id}/attachment [get]
func (h *Handler) Attachment(c *fiber.Ctx) error {
	m, _, err := h.load(c)
	if err != nil {
		return err
	}
	if m.Attachment == "" {
		return fiber.ErrNotFound
	}
	ctx := c.UserContext()

	url, err := h.store.URL(ctx, m.Attachment)
	if err != nil {
		return fmt.Errorf("sign attachment url: %w", err)
	}
	if url != "" {
		return c.Redirect(url, fiber.StatusFound)
	}
	rc, err := h.store.Open(ctx, m.Attachment)
	if errors.Is(err, storage.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "file missing from storage")
	}
	if err != nil {
		return fmt.Errorf("open attachment: %w", err)
	}
	c.Attachment(m.AttachmentName)
	c.Set(fiber.HeaderContentType, storage.ContentType(filepath.Ext(m.Attachment)))
	return c.SendStream(rc)
}
