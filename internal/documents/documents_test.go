package documents

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-case-manager/internal/auth"
	"github.com/aldoetobex/legal-case-manager/internal/testutil"
	"github.com/aldoetobex/legal-case-manager/pkg/models"
	"github.com/aldoetobex/legal-case-manager/pkg/utils"
)

func appAs(db *gorm.DB, store *testutil.MemStore, uid uuid.UUID, role models.Role) *fiber.App {
	h := NewHandler(db, store, 1<<20)
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Use(testutil.InjectAuth(uid, role))
	app.Post("/cases/:id/documents", h.Upload)
	app.Get("/cases/:id/documents", h.ListByCase)
	app.Get("/documents", h.List)
	app.Get("/documents/:id/download", h.Download)
	app.Delete("/documents/:id", h.Delete)
	return app
}

func Test_Upload_Download_Delete(t *testing.T) {
	db := testutil.OpenDB(t)
	store := testutil.NewMemStore()
	adv := testutil.SeedUser(t, db, models.RoleAdvocate, "Ada Advocate")
	cli := testutil.SeedUser(t, db, models.RoleClient, "Carl Client")
	cs := testutil.SeedCase(t, db, adv.ID, cli.ID, models.CaseActive)
	app := appAs(db, store, adv.ID, models.RoleAdvocate)

	body, ct := testutil.Multipart(t, map[string]string{"title": "Petition"}, "file", "petition.pdf", []byte("%PDF-1.4 test"))
	var doc models.Document
	resp := testutil.Upload(t, app, "/cases/"+cs.ID.String()+"/documents", body, ct, &doc)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("upload expected 201, got %d", resp.StatusCode)
	}
	if doc.Title != "Petition" || doc.FileType != "pdf" || doc.FileSize != int64(len("%PDF-1.4 test")) {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 stored object, got %d", store.Len())
	}

	// The client can read documents on their own case.
	var list []models.Document
	testutil.JSON(t, appAs(db, store, cli.ID, models.RoleClient), http.MethodGet, "/cases/"+cs.ID.String()+"/documents", nil, &list)
	if len(list) != 1 {
		t.Fatalf("client should see 1 document, got %d", len(list))
	}

	req := httptest.NewRequest(http.MethodGet, "/documents/"+doc.ID.String()+"/download", nil)
	dl, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := io.ReadAll(dl.Body)
	if dl.StatusCode != fiber.StatusOK || string(got) != "%PDF-1.4 test" {
		t.Fatalf("download failed: %d %q", dl.StatusCode, got)
	}

	// Clients cannot delete.
	resp = testutil.JSON(t, appAs(db, store, cli.ID, models.RoleClient), http.MethodDelete, "/documents/"+doc.ID.String(), nil, nil)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("client delete expected 403, got %d", resp.StatusCode)
	}

	resp = testutil.JSON(t, app, http.MethodDelete, "/documents/"+doc.ID.String(), nil, nil)
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("delete expected 204, got %d", resp.StatusCode)
	}
	if store.Len() != 0 {
		t.Fatalf("stored object should be removed")
	}

	var actions []string
	db.Model(&models.CaseActivity{}).Where("case_id = ?", cs.ID).Order("created_at ASC").Pluck("action_type", &actions)
	if len(actions) != 2 || actions[0] != utils.ActionDocumentUploaded || actions[1] != utils.ActionDocumentDeleted {
		t.Fatalf("unexpected history: %v", actions)
	}
}

// A disallowed extension leaves no row and no stored object.
func Test_Upload_DisallowedExtension(t *testing.T) {
	db := testutil.OpenDB(t)
	store := testutil.NewMemStore()
	adv := testutil.SeedUser(t, db, models.RoleAdvocate, "Ada Advocate")
	cli := testutil.SeedUser(t, db, models.RoleClient, "Carl Client")
	cs := testutil.SeedCase(t, db, adv.ID, cli.ID, models.CaseActive)

	body, ct := testutil.Multipart(t, map[string]string{"title": "Payload"}, "file", "run.exe", []byte("MZ"))
	var errResp models.ErrorResponse
	resp := testutil.Upload(t, appAs(db, store, adv.ID, models.RoleAdvocate), "/cases/"+cs.ID.String()+"/documents", body, ct, &errResp)
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	if errResp.Message == "" {
		t.Fatalf("expected an error message")
	}

	var n int64
	db.Model(&models.Document{}).Count(&n)
	if n != 0 || store.Len() != 0 {
		t.Fatalf("rejected upload left state behind: rows=%d objects=%d", n, store.Len())
	}
}

func Test_Upload_UnassignedAdvocate_404(t *testing.T) {
	db := testutil.OpenDB(t)
	store := testutil.NewMemStore()
	adv := testutil.SeedUser(t, db, models.RoleAdvocate, "Ada Advocate")
	other := testutil.SeedUser(t, db, models.RoleAdvocate, "Otto Other")
	cli := testutil.SeedUser(t, db, models.RoleClient, "Carl Client")
	cs := testutil.SeedCase(t, db, adv.ID, cli.ID, models.CaseActive)

	body, ct := testutil.Multipart(t, nil, "file", "notes.txt", []byte("hello"))
	resp := testutil.Upload(t, appAs(db, store, other.ID, models.RoleAdvocate), "/cases/"+cs.ID.String()+"/documents", body, ct, nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	var page struct {
		Total int64 `json:"total"`
	}
	testutil.JSON(t, appAs(db, store, other.ID, models.RoleAdvocate), http.MethodGet, "/documents", nil, &page)
	if page.Total != 0 {
		t.Fatalf("unassigned advocate should list nothing, got %d", page.Total)
	}
}
