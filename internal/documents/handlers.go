package documents

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-case-manager/internal/auth"
	"github.com/aldoetobex/legal-case-manager/internal/cases"
	"github.com/aldoetobex/legal-case-manager/internal/storage"
	"github.com/aldoetobex/legal-case-manager/pkg/models"
	"github.com/aldoetobex/legal-case-manager/pkg/sanitize"
	"github.com/aldoetobex/legal-case-manager/pkg/utils"
)

type Handler struct {
	db        *gorm.DB
	store     storage.Storage
	maxUpload int64
}

func NewHandler(db *gorm.DB, store storage.Storage, maxUpload int64) *Handler {
	return &Handler{db: db, store: store, maxUpload: maxUpload}
}

// loadVisible returns the document when its case is visible to the caller.
// write additionally requires a non-client role.
func (h *Handler) loadVisible(c *fiber.Ctx, write bool) (models.Document, error) {
	var doc models.Document
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return doc, err
	}
	ctx := c.UserContext()
	err = h.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return doc, fiber.ErrNotFound
	}
	if err != nil {
		return doc, fiber.ErrInternalServerError
	}

	load := cases.Load
	if write {
		load = cases.LoadForWrite
	}
	if _, err := load(ctx, h.db, doc.CaseID, auth.MustUserID(c), auth.MustRole(c)); err != nil {
		return doc, err
	}
	return doc, nil
}

/* =============================== Upload ================================= */

// Upload Document godoc
// @Summary      Upload a case document
// @Description  Allowed: pdf doc docx txt jpg jpeg png xls xlsx. Rejected files leave no row and no stored object.
// @Tags         documents
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        id     path      string  true   "case id (uuid)"
// @Param        file   formData  file    true   "document"
// @Param        title  formData  string  false  "title (defaults to the file name)"
// @Success      201    {object}  models.Document
// @Failure      400    {object}  models.ErrorResponse
// @Failure      403    {object}  models.ErrorResponse
// @Failure      404    {object}  models.ErrorResponse
// @Failure      422    {object}  models.ErrorResponse
// @Router       /cases/{id}/documents [post]
func (h *Handler) Upload(c *fiber.Ctx) error {
	caseID, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	uid := auth.MustUserID(c)
	if _, err := cases.LoadForWrite(ctx, h.db, caseID, uid, auth.MustRole(c)); err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "file is required")
	}
	ext, err := storage.CheckFile(fh.Filename, fh.Size, h.maxUpload, storage.AllowedExtensions)
	if err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}

	title := strings.TrimSpace(c.FormValue("title"))
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(fh.Filename), filepath.Ext(fh.Filename))
	}
	if len(title) > 200 {
		return fiber.NewError(fiber.StatusBadRequest, "title is too long")
	}

	f, err := fh.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "cannot read file")
	}
	defer f.Close()

	key := storage.NewKey(storage.CategoryDocuments, ext)
	if err := h.store.Save(ctx, key, f, storage.ContentType(ext)); err != nil {
		return fmt.Errorf("save document: %w", err)
	}

	doc := models.Document{
		CaseID:     caseID,
		Title:      title,
		FilePath:   key,
		FileName:   sanitize.Filename(fh.Filename),
		FileType:   strings.TrimPrefix(ext, "."),
		FileSize:   fh.Size,
		UploadedBy: uid,
		UploadDate: time.Now(),
	}
	if err := h.db.WithContext(ctx).Omit("Case").Create(&doc).Error; err != nil {
		if derr := h.store.Delete(ctx, key); derr != nil {
			slog.Warn("orphaned document object", "key", key, "error", derr)
		}
		return fiber.NewError(fiber.StatusInternalServerError, "failed to save document")
	}

	utils.LogCaseActivity(ctx, h.db, caseID, uid, utils.ActionDocumentUploaded, "Document uploaded",
		map[string]any{"document_id": doc.ID, "title": doc.Title, "file_type": doc.FileType})
	return c.Status(fiber.StatusCreated).JSON(doc)
}

/* ================================ Reads ================================= */

// List Case Documents godoc
// @Summary      List documents of a case
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "case id (uuid)"
// @Success      200  {array}  models.Document
// @Failure      404  {object} models.ErrorResponse
// @Router       /cases/{id}/documents [get]
func (h *Handler) ListByCase(c *fiber.Ctx) error {
	caseID, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	if _, err := cases.Load(ctx, h.db, caseID, auth.MustUserID(c), auth.MustRole(c)); err != nil {
		return err
	}
	items := []models.Document{}
	if err := h.db.WithContext(ctx).Where("case_id = ?", caseID).
		Order("upload_date DESC").Find(&items).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(items)
}

// List Documents godoc
// @Summary      List documents across visible cases
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        q         query string false "search title or file name"
// @Param        type      query string false "file type (pdf, docx, ...)"
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Success      200  {object}  models.Page[models.Document]
// @Router       /documents [get]
func (h *Handler) List(c *fiber.Ctx) error {
	page, size := utils.ParsePage(c)
	ctx := c.UserContext()

	visible := cases.Scope(h.db.Session(&gorm.Session{NewDB: true}).Model(&models.Case{}),
		auth.MustUserID(c), auth.MustRole(c)).Select("cases.id")

	q := h.db.WithContext(ctx).Model(&models.Document{}).Where("case_id IN (?)", visible)
	if s := strings.TrimSpace(c.Query("q")); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("(LOWER(title) LIKE ? OR LOWER(file_name) LIKE ?)", like, like)
	}
	if t := c.Query("type"); t != "" {
		q = q.Where("file_type = ?", strings.ToLower(strings.TrimPrefix(t, ".")))
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	var items []models.Document
	if err := q.Order("upload_date DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&items).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(utils.NewPage(page, size, total, items))
}

// Download Document godoc
// @Summary      Download a document
// @Description  Redirects to a signed URL when the storage driver issues one, otherwise streams the file
// @Tags         documents
// @Security     BearerAuth
// @Produce      octet-stream
// @Param        id   path string true "document id (uuid)"
// @Success      200  {file}    binary
// @Success      302
// @Failure      404  {object}  models.ErrorResponse
// @Router       /documents/{id}/download [get]
func (h *Handler) Download(c *fiber.Ctx) error {
	doc, err := h.loadVisible(c, false)
	if err != nil {
		return err
	}
	ctx := c.UserContext()

	url, err := h.store.URL(ctx, doc.FilePath)
	if err != nil {
		return fmt.Errorf("sign document url: %w", err)
	}
	if url != "" {
		return c.Redirect(url, fiber.StatusFound)
	}

	rc, err := h.store.Open(ctx, doc.FilePath)
	if errors.Is(err, storage.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "file missing from storage")
	}
	if err != nil {
		return fmt.Errorf("open document: %w", err)
	}
	c.Attachment(doc.FileName)
	c.Set(fiber.HeaderContentType, storage.ContentType(filepath.Ext(doc.FilePath)))
	// fasthttp closes rc once the body is written.
	return c.SendStream(rc, int(doc.FileSize))
}

/* =============================== Delete ================================= */

// Delete Document godoc
// @Summary      Delete a document
// @Description  Removes the row first; the stored object is removed best-effort afterwards
// @Tags         documents
// @Security     BearerAuth
// @Param        id   path string true "document id (uuid)"
// @Success      204
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /documents/{id} [delete]
func (h *Handler) Delete(c *fiber.Ctx) error {
	doc, err := h.loadVisible(c, true)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	if err := h.db.WithContext(ctx).Delete(&models.Document{}, "id = ?", doc.ID).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to delete document")
	}
	if err := h.store.Delete(ctx, doc.FilePath); err != nil {
		slog.Warn("document object not removed", "key", doc.FilePath, "error", err)
	}

	utils.LogCaseActivity(ctx, h.db, doc.CaseID, auth.MustUserID(c), utils.ActionDocumentDeleted, "Document deleted",
		map[string]any{"document_id": doc.ID, "title": doc.Title})
	return c.SendStatus(fiber.StatusNoContent)
}
