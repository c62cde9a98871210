package messages

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-case-manager/internal/auth"
	"github.com/aldoetobex/legal-case-manager/internal/notify"
	"github.com/aldoetobex/legal-case-manager/internal/testutil"
	"github.com/aldoetobex/legal-case-manager/pkg/models"
)

/* ============================================================================
   Helpers
   ============================================================================ */

func appAs(db *gorm.DB, store *testutil.MemStore, uid uuid.UUID) *fiber.App {
	h := NewHandler(db, store, notify.New(db, nil, ""), 1<<20)
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Use(testutil.InjectAuth(uid, models.RoleAdvocate))
	app.Get("/messages", h.List)
	app.Get("/messages/unread-count", h.UnreadCount)
	app.Post("/messages", h.Send)
	app.Get("/messages/:id", h.Detail)
	app.Get("/messages/:id/replies", h.Replies)
	app.Post("/messages/:id/reply", h.Reply)
	app.Post("/messages/:id/star", h.ToggleStar)
	app.Post("/messages/:id/restore", h.Restore)
	app.Delete("/messages/:id/permanent", h.PermanentDelete)
	app.Delete("/messages/:id", h.Trash)
	app.Get("/messages/:id/attachment", h.Attachment)
	return app
}

type msgPage struct {
	Total int64            `json:"total"`
	Items []models.Message `json:"items"`
}

func folder(t *testing.T, app *fiber.App, name string) msgPage {
	t.Helper()
	var p msgPage
	testutil.JSON(t, app, http.MethodGet, "/messages?folder="+name, nil, &p)
	return p
}

// sendWithAttachment posts a multipart message carrying one attachment.
func sendWithAttachment(t *testing.T, app *fiber.App, to uuid.UUID) models.Message {
	t.Helper()
	body, ct := testutil.Multipart(t, map[string]string{
		"recipient_id": to.String(), "subject": "Draft contract", "body": "See **attached**.",
	}, "attachment", "contract.pdf", []byte("%PDF contract"))
	var m models.Message
	resp := testutil.Upload(t, app, "/messages", body, ct, &m)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("send expected 201, got %d", resp.StatusCode)
	}
	return m
}

/* ============================================================================
   Tests
   ============================================================================ */

func Test_Send_Read_Reply(t *testing.T) {
	db := testutil.OpenDB(t)
	store := testutil.NewMemStore()
	alice := testutil.SeedUser(t, db, models.RoleAdvocate, "Alice Advocate")
	carl := testutil.SeedUser(t, db, models.RoleClient, "Carl Client")
	aApp, cApp := appAs(db, store, alice.ID), appAs(db, store, carl.ID)

	var m models.Message
	resp := testutil.JSON(t, aApp, http.MethodPost, "/messages", fiber.Map{
		"recipient_id": carl.ID.String(), "subject": "Hearing", "body": "Hearing is on *Monday*.",
	}, &m)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("send expected 201, got %d", resp.StatusCode)
	}

	var unread struct{ Count int64 }
	testutil.JSON(t, cApp, http.MethodGet, "/messages/unread-count", nil, &unread)
	if unread.Count != 1 {
		t.Fatalf("expected 1 unread, got %d", unread.Count)
	}
	var n int64
	db.Model(&models.Notification{}).Where("user_id = ? AND related_to = ?", carl.ID, notify.RelatedMessage).Count(&n)
	if n != 1 {
		t.Fatalf("recipient should be notified, got %d", n)
	}

	// Sender opening it does not mark it read.
	testutil.JSON(t, aApp, http.MethodGet, "/messages/"+m.ID.String(), nil, nil)
	testutil.JSON(t, cApp, http.MethodGet, "/messages/unread-count", nil, &unread)
	if unread.Count != 1 {
		t.Fatalf("sender view must not mark read")
	}

	var view MessageView
	testutil.JSON(t, cApp, http.MethodGet, "/messages/"+m.ID.String(), nil, &view)
	if !view.IsRead || view.BodyHTML == "" || view.Sender.Name != "Alice Advocate" {
		t.Fatalf("unexpected view: %+v", view)
	}
	testutil.JSON(t, cApp, http.MethodGet, "/messages/unread-count", nil, &unread)
	if unread.Count != 0 {
		t.Fatalf("expected 0 unread after reading, got %d", unread.Count)
	}

	var reply models.Message
	resp = testutil.JSON(t, cApp, http.MethodPost, "/messages/"+m.ID.String()+"/reply", fiber.Map{"body": "Thanks"}, &reply)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("reply expected 201, got %d", resp.StatusCode)
	}
	if reply.Subject != "Re: Hearing" || reply.RecipientID != alice.ID || reply.ParentID == nil || *reply.ParentID != m.ID {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	var thread []models.Message
	testutil.JSON(t, aApp, http.MethodGet, "/messages/"+m.ID.String()+"/replies", nil, &thread)
	if len(thread) != 1 {
		t.Fatalf("expected 1 reply in thread, got %d", len(thread))
	}
}

func Test_Stranger_404(t *testing.T) {
	db := testutil.OpenDB(t)
	store := testutil.NewMemStore()
	alice := testutil.SeedUser(t, db, models.RoleAdvocate, "Alice Advocate")
	carl := testutil.SeedUser(t, db, models.RoleClient, "Carl Client")
	eve := testutil.SeedUser(t, db, models.RoleClient, "Eve Else")

	m := models.Message{SenderID: alice.ID, RecipientID: carl.ID, Subject: "Private", Body: "x"}
	db.Omit("Sender", "Recipient").Create(&m)

	eApp := appAs(db, store, eve.ID)
	for _, path := range []string{"/messages/" + m.ID.String(), "/messages/" + m.ID.String() + "/attachment"} {
		resp := testutil.JSON(t, eApp, http.MethodGet, path, nil, nil)
		if resp.StatusCode != fiber.StatusNotFound {
			t.Fatalf("GET %s expected 404, got %d", path, resp.StatusCode)
		}
	}
	resp := testutil.JSON(t, eApp, http.MethodDelete, "/messages/"+m.ID.String(), nil, nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("stranger delete expected 404, got %d", resp.StatusCode)
	}
}

func Test_ToggleStar(t *testing.T) {
	db := testutil.OpenDB(t)
	store := testutil.NewMemStore()
	alice := testutil.SeedUser(t, db, models.RoleAdvocate, "Alice Advocate")
	carl := testutil.SeedUser(t, db, models.RoleClient, "Carl Client")

	m := models.Message{SenderID: alice.ID, RecipientID: carl.ID, Subject: "Star me", Body: "x"}
	db.Omit("Sender", "Recipient").Create(&m)
	cApp := appAs(db, store, carl.ID)

	var res ActionResult
	testutil.JSON(t, cApp, http.MethodPost, "/messages/"+m.ID.String()+"/star", nil, &res)
	if !res.Success || res.Message != "Message starred" || res.Starred == nil || !*res.Starred {
		t.Fatalf("unexpected star result: %+v", res)
	}
	if p := folder(t, cApp, FolderStarred); p.Total != 1 {
		t.Fatalf("expected 1 starred, got %d", p.Total)
	}

	res = ActionResult{}
	testutil.JSON(t, cApp, http.MethodPost, "/messages/"+m.ID.String()+"/star", nil, &res)
	if res.Message != "Message unstarred" || *res.Starred {
		t.Fatalf("unexpected unstar result: %+v", res)
	}
}

// Sender deletes; recipient has not. The row stays and only the recipient sees it.
func Test_SenderDelete_RowPersistsForRecipient(t *testing.T) {
	db := testutil.OpenDB(t)
	store := testutil.NewMemStore()
	alice := testutil.SeedUser(t, db, models.RoleAdvocate, "Alice Advocate")
	carl := testutil.SeedUser(t, db, models.RoleClient, "Carl Client")
	aApp, cApp := appAs(db, store, alice.ID), appAs(db, store, carl.ID)

	m := sendWithAttachment(t, aApp, carl.ID)

	var res ActionResult
	testutil.JSON(t, aApp, http.MethodDelete, "/messages/"+m.ID.String(), nil, &res)
	if res.Purged == nil || *res.Purged {
		t.Fatalf("single-party delete must not purge: %+v", res)
	}

	var row models.Message
	if err := db.First(&row, "id = ?", m.ID).Error; err != nil {
		t.Fatalf("row should persist: %v", err)
	}
	if !row.IsDeletedBySender || row.IsDeletedByRecipient {
		t.Fatalf("unexpected flags: s=%v r=%v", row.IsDeletedBySender, row.IsDeletedByRecipient)
	}
	if p := folder(t, aApp, FolderSent); p.Total != 0 {
		t.Fatalf("sender's sent folder should be empty, got %d", p.Total)
	}
	if p := folder(t, aApp, FolderTrash); p.Total != 1 {
		t.Fatalf("sender's trash should hold it, got %d", p.Total)
	}
	if p := folder(t, cApp, FolderInbox); p.Total != 1 {
		t.Fatalf("recipient inbox should still hold it, got %d", p.Total)
	}
	if store.Len() != 1 {
		t.Fatalf("attachment should remain")
	}

	// Permanent delete from the sender's trash is a no-op while the recipient keeps it.
	res = ActionResult{}
	resp := testutil.JSON(t, aApp, http.MethodDelete, "/messages/"+m.ID.String()+"/permanent", nil, &res)
	if resp.StatusCode != fiber.StatusOK || res.Purged == nil || *res.Purged {
		t.Fatalf("expected no purge, got %d %+v", resp.StatusCode, res)
	}

	// Restore brings it back to the sender's sent folder.
	testutil.JSON(t, aApp, http.MethodPost, "/messages/"+m.ID.String()+"/restore", nil, nil)
	if p := folder(t, aApp, FolderSent); p.Total != 1 {
		t.Fatalf("restore should return it to sent, got %d", p.Total)
	}

	// Permanent delete outside the trash is rejected.
	resp = testutil.JSON(t, aApp, http.MethodDelete, "/messages/"+m.ID.String()+"/permanent", nil, nil)
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	// The recipient can still fetch the attachment.
	req := httptest.NewRequest(http.MethodGet, "/messages/"+m.ID.String()+"/attachment", nil)
	dl, err := cApp.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(dl.Body)
	if dl.StatusCode != fiber.StatusOK || string(b) != "%PDF contract" {
		t.Fatalf("attachment download failed: %d %q", dl.StatusCode, b)
	}
}

// Both parties delete: the row and the attachment are removed.
func Test_BothDelete_Purges(t *testing.T) {
	db := testutil.OpenDB(t)
	store := testutil.NewMemStore()
	alice := testutil.SeedUser(t, db, models.RoleAdvocate, "Alice Advocate")
	carl := testutil.SeedUser(t, db, models.RoleClient, "Carl Client")
	aApp, cApp := appAs(db, store, alice.ID), appAs(db, store, carl.ID)

	m := sendWithAttachment(t, aApp, carl.ID)
	var stored models.Message
	db.First(&stored, "id = ?", m.ID)
	if stored.Attachment == "" || !store.Has(stored.Attachment) {
		t.Fatalf("attachment should be stored")
	}

	testutil.JSON(t, aApp, http.MethodDelete, "/messages/"+m.ID.String(), nil, nil)

	var res ActionResult
	testutil.JSON(t, cApp, http.MethodDelete, "/messages/"+m.ID.String(), nil, &res)
	if res.Purged == nil || !*res.Purged {
		t.Fatalf("second delete should purge: %+v", res)
	}

	var n int64
	db.Model(&models.Message{}).Where("id = ?", m.ID).Count(&n)
	if n != 0 {
		t.Fatalf("row should be gone")
	}
	if store.Has(stored.Attachment) || store.Len() != 0 {
		t.Fatalf("attachment should be removed")
	}
}

// The recipient trashes the message while the sender's delete is in flight.
// The sender's write must not clear the recipient's flag, and the row goes.
func Test_Trash_ConcurrentTrashByOtherParty(t *testing.T) {
	db := testutil.OpenDB(t)
	store := testutil.NewMemStore()
	alice := testutil.SeedUser(t, db, models.RoleAdvocate, "Alice Advocate")
	carl := testutil.SeedUser(t, db, models.RoleClient, "Carl Client")
	aApp := appAs(db, store, alice.ID)

	m := sendWithAttachment(t, aApp, carl.ID)

	fired := false
	err := db.Callback().Update().Before("gorm:update").Register("test:recipient_trashes", func(tx *gorm.DB) {
		if fired || tx.Statement.Table != "messages" {
			return
		}
		fired = true
		tx.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE messages SET is_deleted_by_recipient = ? WHERE id = ?", true, m.ID)
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Callback().Update().Remove("test:recipient_trashes") })

	var res ActionResult
	resp := testutil.JSON(t, aApp, http.MethodDelete, "/messages/"+m.ID.String(), nil, &res)
	if !fired {
		t.Fatal("concurrent trash was not injected")
	}
	if resp.StatusCode != fiber.StatusOK || res.Purged == nil || !*res.Purged {
		t.Fatalf("both flags set, expected purge: %d %+v", resp.StatusCode, res)
	}
	var n int64
	db.Model(&models.Message{}).Where("id = ?", m.ID).Count(&n)
	if n != 0 || store.Len() != 0 {
		t.Fatalf("row and attachment should be gone: rows=%d files=%d", n, store.Len())
	}
}

// Purging a parent detaches its replies instead of leaving a dangling parent_id.
func Test_Purge_DetachesReplies(t *testing.T) {
	db := testutil.OpenDB(t)
	store := testutil.NewMemStore()
	alice := testutil.SeedUser(t, db, models.RoleAdvocate, "Alice Advocate")
	carl := testutil.SeedUser(t, db, models.RoleClient, "Carl Client")
	aApp, cApp := appAs(db, store, alice.ID), appAs(db, store, carl.ID)

	var m models.Message
	testutil.JSON(t, aApp, http.MethodPost, "/messages", fiber.Map{
		"recipient_id": carl.ID.String(), "subject": "Hearing", "body": "Monday",
	}, &m)
	var reply models.Message
	resp := testutil.JSON(t, cApp, http.MethodPost, "/messages/"+m.ID.String()+"/reply", fiber.Map{"body": "Thanks"}, &reply)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("reply expected 201, got %d", resp.StatusCode)
	}

	testutil.JSON(t, aApp, http.MethodDelete, "/messages/"+m.ID.String(), nil, nil)
	var res ActionResult
	testutil.JSON(t, cApp, http.MethodDelete, "/messages/"+m.ID.String(), nil, &res)
	if res.Purged == nil || !*res.Purged {
		t.Fatalf("expected purge: %+v", res)
	}

	var row models.Message
	if err := db.First(&row, "id = ?", reply.ID).Error; err != nil {
		t.Fatalf("reply should survive: %v", err)
	}
	if row.ParentID != nil {
		t.Fatalf("reply still points at purged parent %s", row.ParentID)
	}
}

// Permanent delete purges once the other party's account is gone.
func Test_PermanentDelete_CounterpartGone(t *testing.T) {
	db := testutil.OpenDB(t)
	store := testutil.NewMemStore()
	alice := testutil.SeedUser(t, db, models.RoleAdvocate, "Alice Advocate")
	carl := testutil.SeedUser(t, db, models.RoleClient, "Carl Client")

	m := models.Message{SenderID: alice.ID, RecipientID: carl.ID, Subject: "Bye", Body: "x", IsDeletedByRecipient: true}
	db.Omit("Sender", "Recipient").Create(&m)
	db.Delete(&models.User{}, "id = ?", alice.ID)

	var res ActionResult
	testutil.JSON(t, appAs(db, store, carl.ID), http.MethodDelete, "/messages/"+m.ID.String()+"/permanent", nil, &res)
	if res.Purged == nil || !*res.Purged {
		t.Fatalf("expected purge, got %+v", res)
	}
}

func Test_Send_Validation(t *testing.T) {
	db := testutil.OpenDB(t)
	store := testutil.NewMemStore()
	alice := testutil.SeedUser(t, db, models.RoleAdvocate, "Alice Advocate")
	app := appAs(db, store, alice.ID)

	resp := testutil.JSON(t, app, http.MethodPost, "/messages", fiber.Map{"subject": "No recipient", "body": "x"}, nil)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp = testutil.JSON(t, app, http.MethodPost, "/messages", fiber.Map{
		"recipient_id": alice.ID.String(), "subject": "Me", "body": "x",
	}, nil)
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("self-send expected 422, got %d", resp.StatusCode)
	}
	resp = testutil.JSON(t, app, http.MethodPost, "/messages", fiber.Map{
		"recipient_id": uuid.NewString(), "subject": "Ghost", "body": "x",
	}, nil)
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("unknown recipient expected 422, got %d", resp.StatusCode)
	}
}
