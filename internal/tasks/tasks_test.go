package tasks

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-case-manager/internal/auth"
	"github.com/aldoetobex/legal-case-manager/internal/notify"
	"github.com/aldoetobex/legal-case-manager/internal/testutil"
	"github.com/aldoetobex/legal-case-manager/pkg/models"
	"github.com/aldoetobex/legal-case-manager/pkg/utils"
)

func appAs(db *gorm.DB, uid uuid.UUID, role models.Role) *fiber.App {
	h := NewHandler(db, notify.New(db, nil, ""))
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Use(testutil.InjectAuth(uid, role))
	app.Post("/tasks", h.Create)
	app.Get("/tasks", h.List)
	app.Get("/tasks/:id", h.Detail)
	app.Put("/tasks/:id", h.Update)
	app.Patch("/tasks/:id/complete", h.Complete)
	app.Delete("/tasks/:id", h.Delete)
	return app
}

// Completing a case task stamps completed_at and appends "Task completed" to the case history.
func Test_Complete_AppendsCaseHistory(t *testing.T) {
	db := testutil.OpenDB(t)
	adv := testutil.SeedUser(t, db, models.RoleAdvocate, "Ada Advocate")
	cli := testutil.SeedUser(t, db, models.RoleClient, "Carl Client")
	cs := testutil.SeedCase(t, db, adv.ID, cli.ID, models.CaseActive)
	app := appAs(db, adv.ID, models.RoleAdvocate)

	var task models.Task
	resp := testutil.JSON(t, app, http.MethodPost, "/tasks", fiber.Map{
		"title": "File motion", "due_date": "2026-05-20", "case_id": cs.ID.String(),
	}, &task)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create expected 201, got %d", resp.StatusCode)
	}
	if task.Status != models.TaskPending || task.AssignedTo != adv.ID {
		t.Fatalf("unexpected defaults: %+v", task)
	}
	if task.ClientID == nil || *task.ClientID != cli.ID {
		t.Fatalf("client should come from the case: %+v", task.ClientID)
	}

	var done models.Task
	resp = testutil.JSON(t, app, http.MethodPatch, "/tasks/"+task.ID.String()+"/complete", nil, &done)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("complete expected 200, got %d", resp.StatusCode)
	}
	if done.Status != models.TaskCompleted || done.CompletedAt == nil {
		t.Fatalf("task not completed: %+v", done)
	}

	var acts []models.CaseActivity
	db.Where("case_id = ? AND action_type = ?", cs.ID, utils.ActionTaskCompleted).Find(&acts)
	if len(acts) != 1 || acts[0].Description != "Task completed" {
		t.Fatalf("expected one task_completed activity, got %+v", acts)
	}

	// Completing twice does not add another history row.
	testutil.JSON(t, app, http.MethodPatch, "/tasks/"+task.ID.String()+"/complete", nil, nil)
	var n int64
	db.Model(&models.CaseActivity{}).Where("case_id = ? AND action_type = ?", cs.ID, utils.ActionTaskCompleted).Count(&n)
	if n != 1 {
		t.Fatalf("expected 1 activity after repeat, got %d", n)
	}
}

func Test_AssignOther_NotifiesAndVisible(t *testing.T) {
	db := testutil.OpenDB(t)
	adv := testutil.SeedUser(t, db, models.RoleAdvocate, "Ada Advocate")
	staff := testutil.SeedUser(t, db, models.RoleStaff, "Sam Staff")
	stranger := testutil.SeedUser(t, db, models.RoleAdvocate, "Otto Other")

	var task models.Task
	resp := testutil.JSON(t, appAs(db, adv.ID, models.RoleAdvocate), http.MethodPost, "/tasks", fiber.Map{
		"title": "Collect exhibits", "assigned_to": staff.ID.String(), "priority": "high",
	}, &task)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create expected 201, got %d", resp.StatusCode)
	}

	var notes []models.Notification
	db.Where("user_id = ?", staff.ID).Find(&notes)
	if len(notes) != 1 || notes[0].RelatedTo != notify.RelatedTask {
		t.Fatalf("assignee should be notified once: %+v", notes)
	}

	var page struct {
		Total int64         `json:"total"`
		Items []models.Task `json:"items"`
	}
	testutil.JSON(t, appAs(db, staff.ID, models.RoleStaff), http.MethodGet, "/tasks?status=Pending", nil, &page)
	if page.Total != 1 {
		t.Fatalf("assignee should list the task, got %d", page.Total)
	}

	resp = testutil.JSON(t, appAs(db, stranger.ID, models.RoleAdvocate), http.MethodGet, "/tasks/"+task.ID.String(), nil, nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("stranger expected 404, got %d", resp.StatusCode)
	}

	resp = testutil.JSON(t, appAs(db, staff.ID, models.RoleStaff), http.MethodDelete, "/tasks/"+task.ID.String(), nil, nil)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("assignee delete expected 403, got %d", resp.StatusCode)
	}
	resp = testutil.JSON(t, appAs(db, adv.ID, models.RoleAdvocate), http.MethodDelete, "/tasks/"+task.ID.String(), nil, nil)
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("creator delete expected 204, got %d", resp.StatusCode)
	}
}

func Test_Create_ClientAssignee_422(t *testing.T) {
	db := testutil.OpenDB(t)
	adv := testutil.SeedUser(t, db, models.RoleAdvocate, "Ada Advocate")
	cli := testutil.SeedUser(t, db, models.RoleClient, "Carl Client")

	resp := testutil.JSON(t, appAs(db, adv.ID, models.RoleAdvocate), http.MethodPost, "/tasks", fiber.Map{
		"title": "Nope", "assigned_to": cli.ID.String(),
	}, nil)
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}

	resp = testutil.JSON(t, appAs(db, adv.ID, models.RoleAdvocate), http.MethodPost, "/tasks", fiber.Map{
		"title": "Bad status", "status": "Done",
	}, nil)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func Test_Update_ReopenClearsCompletedAt(t *testing.T) {
	db := testutil.OpenDB(t)
	adv := testutil.SeedUser(t, db, models.RoleAdvocate, "Ada Advocate")
	app := appAs(db, adv.ID, models.RoleAdvocate)

	var task models.Task
	testutil.JSON(t, app, http.MethodPost, "/tasks", fiber.Map{"title": "Draft", "status": "Completed"}, &task)
	if task.CompletedAt == nil {
		t.Fatalf("created-completed task should carry completed_at")
	}

	var out models.Task
	resp := testutil.JSON(t, app, http.MethodPut, "/tasks/"+task.ID.String(), fiber.Map{
		"title": "Draft v2", "status": "In Progress",
	}, &out)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if out.Status != models.TaskInProgress || out.CompletedAt != nil || out.Title != "Draft v2" {
		t.Fatalf("unexpected update result: %+v", out)
	}
}
