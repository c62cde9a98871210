package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/aldoetobex/legal-case-manager/internal/config"
)

// Storage is where uploaded files live. Keys look like "<category>/<uuid><ext>".
type Storage interface {
	// Save stores r under key.
	Save(ctx context.Context, key string, r io.Reader, contentType string) error

	// Open returns a reader for key. ErrNotFound when missing.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// URL returns a direct (usually signed) link, or "" when the file
	// must be streamed through the API.
	URL(ctx context.Context, key string) (string, error)
}

var ErrNotFound = errors.New("storage: object not found")

// Upload categories.
const (
	CategoryDocuments = "documents"
	CategoryMessages  = "messages"
	CategoryProfiles  = "profiles"
)

// New picks the driver from config.
func New(ctx context.Context, c *config.Config) (Storage, error) {
	switch c.StorageDriver {
	case "", "local":
		slog.Info("initializing local storage", "dir", c.UploadDir)
		return NewLocal(c.UploadDir)
	case "s3":
		slog.Info("initializing S3 storage", "bucket", c.S3Bucket, "region", c.S3Region, "endpoint", c.S3Endpoint)
		return NewS3Storage(ctx, S3Config{
			Region:        c.S3Region,
			Bucket:        c.S3Bucket,
			AccessKey:     c.S3AccessKey,
			SecretKey:     c.S3SecretKey,
			Endpoint:      c.S3Endpoint,
			PresignExpiry: c.S3PresignExpiry,
		})
	case "supabase":
		slog.Info("initializing supabase storage", "bucket", c.SupabaseBucket)
		return NewSupabase(c.SupabaseURL, c.SupabaseServiceKey, c.SupabaseBucket), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", c.StorageDriver)
	}
}

/* ============================ File constraints ============================ */

// AllowedExtensions is the upload whitelist for documents and attachments.
var AllowedExtensions = []string{".pdf", ".doc", ".docx", ".txt", ".jpg", ".jpeg", ".png", ".xls", ".xlsx"}

// ImageExtensions is the whitelist for profile images.
var ImageExtensions = []string{".jpg", ".jpeg", ".png"}

// UploadError is a rejected upload. Nothing has been written when it is returned.
type UploadError struct{ Reason string }

func (e *UploadError) Error() string { return e.Reason }

// CheckFile validates name and size against an extension whitelist and a byte limit.
func CheckFile(name string, size, maxBytes int64, allowed []string) (ext string, err error) {
	ext = strings.ToLower(filepath.Ext(name))
	if ext == "" || !slices.Contains(allowed, ext) {
		return "", &UploadError{Reason: fmt.Sprintf("file type not allowed; allowed: %s", strings.Join(allowed, ", "))}
	}
	if size <= 0 {
		return "", &UploadError{Reason: "file is empty"}
	}
	if maxBytes > 0 && size > maxBytes {
		return "", &UploadError{Reason: fmt.Sprintf("file exceeds the %d MB limit", maxBytes>>20)}
	}
	return ext, nil
}

// NewKey builds a randomized object key under category.
func NewKey(category, ext string) string {
	return path.Join(category, uuid.NewString()+ext)
}

// Office and text types missing from Go's built-in table; system tables may
// already carry them.
var extraTypes = map[string]string{
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".txt":  "text/plain; charset=utf-8",
}

func init() {
	for ext, typ := range extraTypes {
		if mime.TypeByExtension(ext) == "" {
			_ = mime.AddExtensionType(ext, typ)
		}
	}
}

// ContentType guesses a MIME type from the extension.
func ContentType(ext string) string {
	if ct := mime.TypeByExtension(strings.ToLower(ext)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// validKey rejects keys that could escape the storage root.
func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.Contains(key, "\\") {
		return fmt.Errorf("storage: invalid key %q", key)
	}
	return nil
}
