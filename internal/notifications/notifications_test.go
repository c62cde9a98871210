package notifications

import (
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-case-manager/internal/auth"
	"github.com/aldoetobex/legal-case-manager/internal/testutil"
	"github.com/aldoetobex/legal-case-manager/pkg/models"
)

func appAs(db *gorm.DB, uid uuid.UUID) *fiber.App {
	h := NewHandler(db)
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Use(testutil.InjectAuth(uid, models.RoleClient))
	app.Get("/notifications", h.List)
	app.Patch("/notifications/read-all", h.MarkAllRead)
	app.Patch("/notifications/:id/read", h.MarkRead)
	app.Delete("/notifications/:id", h.Delete)
	return app
}

func seed(db *gorm.DB, uid uuid.UUID, title string, read bool, at time.Time) models.Notification {
	n := models.Notification{UserID: uid, Title: title, IsRead: read, CreatedAt: at}
	db.Create(&n)
	return n
}

func Test_List_UnreadFirst_AndMarkRead(t *testing.T) {
	db := testutil.OpenDB(t)
	u := testutil.SeedUser(t, db, models.RoleClient, "Carl Client")
	other := testutil.SeedUser(t, db, models.RoleClient, "Olga Other")
	now := time.Now()

	seed(db, u.ID, "old read", true, now)
	unread := seed(db, u.ID, "older unread", false, now.Add(-time.Hour))
	seed(db, u.ID, "newest unread", false, now.Add(time.Minute))
	foreign := seed(db, other.ID, "not mine", false, now)
	app := appAs(db, u.ID)

	var out ListResponse
	testutil.JSON(t, app, http.MethodGet, "/notifications", nil, &out)
	if out.Total != 3 || out.Unread != 2 {
		t.Fatalf("unexpected counts: total=%d unread=%d", out.Total, out.Unread)
	}
	if out.Items[0].Title != "newest unread" || out.Items[2].Title != "old read" {
		t.Fatalf("unexpected order: %s, %s, %s", out.Items[0].Title, out.Items[1].Title, out.Items[2].Title)
	}

	resp := testutil.JSON(t, app, http.MethodPatch, "/notifications/"+unread.ID.String()+"/read", nil, nil)
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("mark read expected 204, got %d", resp.StatusCode)
	}
	out = ListResponse{}
	testutil.JSON(t, app, http.MethodGet, "/notifications?unread=true", nil, &out)
	if out.Total != 1 || out.Unread != 1 {
		t.Fatalf("expected one unread left: %+v", out)
	}

	resp = testutil.JSON(t, app, http.MethodPatch, "/notifications/"+foreign.ID.String()+"/read", nil, nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("foreign notification expected 404, got %d", resp.StatusCode)
	}
}

func Test_MarkAllRead_AndDelete(t *testing.T) {
	db := testutil.OpenDB(t)
	u := testutil.SeedUser(t, db, models.RoleClient, "Carl Client")
	now := time.Now()
	n1 := seed(db, u.ID, "a", false, now)
	seed(db, u.ID, "b", false, now)
	app := appAs(db, u.ID)

	var res struct{ Updated int64 }
	testutil.JSON(t, app, http.MethodPatch, "/notifications/read-all", nil, &res)
	if res.Updated != 2 {
		t.Fatalf("expected 2 updated, got %d", res.Updated)
	}

	resp := testutil.JSON(t, app, http.MethodDelete, "/notifications/"+n1.ID.String(), nil, nil)
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("delete expected 204, got %d", resp.StatusCode)
	}
	var left int64
	db.Model(&models.Notification{}).Where("user_id = ?", u.ID).Count(&left)
	if left != 1 {
		t.Fatalf("expected 1 notification left, got %d", left)
	}
}
