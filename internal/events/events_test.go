package events

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
	app.Use(testutil.InjectAuth(uid, models.RoleAdvocate))
	app.Post("/events", h.Create)
	app.Get("/events", h.List)
	app.Get("/events/calendar", h.Calendar)
	app.Get("/events/:id", h.Detail)
	app.Put("/events/:id", h.Update)
	app.Delete("/events/:id", h.Delete)
	return app
}

func Test_Create_OverlapAllowed_AndRange(t *testing.T) {
	db := testutil.OpenDB(t)
	adv := testutil.SeedUser(t, db, models.RoleAdvocate, "Ada Advocate")
	app := appAs(db, adv.ID)

	for _, title := range []string{"Hearing A", "Client call"} {
		resp := testutil.JSON(t, app, http.MethodPost, "/events", fiber.Map{
			"title": title, "date": "2026-05-12", "start_time": "09:00", "end_time": "10:30", "event_type": "hearing",
		}, nil)
		if resp.StatusCode != fiber.StatusCreated {
			t.Fatalf("create %q expected 201, got %d", title, resp.StatusCode)
		}
	}
	testutil.JSON(t, app, http.MethodPost, "/events", fiber.Map{"title": "Later", "date": "2026-06-01"}, nil)

	var got []models.Event
	testutil.JSON(t, app, http.MethodGet, "/events?from=2026-05-01&to=2026-05-31", nil, &got)
	if len(got) != 2 {
		t.Fatalf("expected 2 overlapping events in May, got %d", len(got))
	}

	var feed []CalendarItem
	testutil.JSON(t, app, http.MethodGet, "/events/calendar?start=2026-05-01T00:00:00&end=2026-06-30", nil, &feed)
	if len(feed) != 3 {
		t.Fatalf("expected 3 calendar items, got %d", len(feed))
	}
	if feed[0].Start != "2026-05-12T09:00:00" || feed[0].AllDay {
		t.Fatalf("unexpected calendar item: %+v", feed[0])
	}
	if !feed[2].AllDay || feed[2].Start != "2026-06-01" {
		t.Fatalf("expected all-day item: %+v", feed[2])
	}
}

func Test_Create_EndBeforeStart_400(t *testing.T) {
	db := testutil.OpenDB(t)
	adv := testutil.SeedUser(t, db, models.RoleAdvocate, "Ada Advocate")

	resp := testutil.JSON(t, appAs(db, adv.ID), http.MethodPost, "/events", fiber.Map{
		"title": "Backwards", "date": "2026-05-12", "start_time": "11:00", "end_time": "10:00",
	}, nil)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func Test_OtherAdvocate_404(t *testing.T) {
	db := testutil.OpenDB(t)
	adv := testutil.SeedUser(t, db, models.RoleAdvocate, "Ada Advocate")
	other := testutil.SeedUser(t, db, models.RoleAdvocate, "Otto Other")

	ev := models.Event{AdvocateID: adv.ID, Title: "Private", Date: time.Now(), EventType: models.EventMeeting}
	db.Create(&ev)

	resp := testutil.JSON(t, appAs(db, other.ID), http.MethodDelete, "/events/"+ev.ID.String(), nil, nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	resp = testutil.JSON(t, appAs(db, adv.ID), http.MethodDelete, "/events/"+ev.ID.String(), nil, nil)
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("owner delete expected 204, got %d", resp.StatusCode)
	}
}

func Test_Create_LinkedCase_FillsClient(t *testing.T) {
	db := testutil.OpenDB(t)
	adv := testutil.SeedUser(t, db, models.RoleAdvocate, "Ada Advocate")
	cli := testutil.SeedUser(t, db, models.RoleClient, "Carl Client")
	cs := testutil.SeedCase(t, db, adv.ID, cli.ID, models.CaseActive)

	var ev models.Event
	resp := testutil.JSON(t, appAs(db, adv.ID), http.MethodPost, "/events", fiber.Map{
		"title": "Hearing", "date": "2026-07-01", "case_id": cs.ID.String(),
	}, &ev)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if ev.ClientID == nil || *ev.ClientID != cli.ID {
		t.Fatalf("client should be taken from the case: %+v", ev.ClientID)
	}
}
