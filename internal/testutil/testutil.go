// Package testutil holds shared helpers for handler tests: an in-memory
// database, auth injection, seeders and an in-memory file store.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aldoetobex/legal-case-manager/internal/storage"
	"github.com/aldoetobex/legal-case-manager/pkg/database"
	"github.com/aldoetobex/legal-case-manager/pkg/models"
)

/* ================================ DB ==================================== */

// OpenDB returns a migrated, private in-memory SQLite database.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

/* =============================== Auth ================================== */

// InjectAuth puts userID and role into Locals the way RequireAuth does.
func InjectAuth(userID uuid.UUID, role models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("userID", userID)
		c.Locals("role", role)
		return c.Next()
	}
}

/* ============================== Seeders ================================ */

// SeedUser creates a user with password "secret123".
func SeedUser(t *testing.T, db *gorm.DB, role models.Role, name string) models.User {
	t.Helper()
	hash, _ := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	u := models.User{
		Name:         name,
		Email:        strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "." + uuid.NewString()[:8] + "@example.com",
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	switch role {
	case models.RoleAdvocate:
		db.Create(&models.AdvocateProfile{UserID: u.ID, LicenseNumber: "LIC-" + u.ID.String()[:6]})
	case models.RoleClient:
		db.Create(&models.ClientProfile{UserID: u.ID})
	}
	return u
}

// SeedCase creates a case for clientID with advocateID as lead.
func SeedCase(t *testing.T, db *gorm.DB, advocateID, clientID uuid.UUID, status models.CaseStatus) models.Case {
	t.Helper()
	cs := models.Case{
		CaseNumber: "CASE-" + strings.ToUpper(uuid.NewString()[:8]),
		Title:      "Seeded case",
		CaseType:   "civil",
		Status:     status,
		Priority:   models.PriorityMedium,
		ClientID:   clientID,
		CreatedBy:  advocateID,
	}
	if err := db.Omit("Client", "Assignments", "Activities").Create(&cs).Error; err != nil {
		t.Fatalf("seed case: %v", err)
	}
	if err := db.Omit("Advocate").Create(&models.CaseAssignment{
		CaseID: cs.ID, AdvocateID: advocateID, Role: models.AssignLead, AssignedAt: time.Now(),
	}).Error; err != nil {
		t.Fatalf("seed assignment: %v", err)
	}
	return cs
}

/* ============================== Requests =============================== */

// JSON sends a request with an optional JSON body and decodes the response
// body into out when out is non-nil.
func JSON(t *testing.T, app *fiber.App, method, path string, body any, out any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	if out != nil {
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp
}

// Multipart builds a multipart body with fields and one file part.
func Multipart(t *testing.T, fields map[string]string, fileField, fileName string, content []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = w.WriteField(k, v)
	}
	if fileField != "" {
		fw, err := w.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write(content)
	}
	_ = w.Close()
	return &buf, w.FormDataContentType()
}

// Upload posts a multipart body built by Multipart.
func Upload(t *testing.T, app *fiber.App, path string, body io.Reader, contentType string, out any) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	if out != nil {
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("POST %s: decode: %v", path, err)
		}
	}
	return resp
}

/* ============================== Storage ================================ */

// MemStore is an in-memory storage.Storage.
type MemStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func NewMemStore() *MemStore { return &MemStore{files: map[string][]byte{}} }

func (m *MemStore) Save(_ context.Context, key string, r io.Reader, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key] = b
	return nil
}

func (m *MemStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *MemStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, key)
	return nil
}

func (m *MemStore) URL(context.Context, string) (string, error) { return "", nil }

// Has reports whether key is stored.
func (m *MemStore) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[key]
	return ok
}

// Len is the number of stored objects.
func (m *MemStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}
