package clients

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-case-manager/internal/auth"
	"github.com/aldoetobex/legal-case-manager/internal/testutil"
	"github.com/aldoetobex/legal-case-manager/pkg/models"
)

func appAs(db *gorm.DB, uid uuid.UUID, role models.Role) *fiber.App {
	h := NewHandler(db)
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Use(testutil.InjectAuth(uid, role))
	app.Post("/clients", h.Create)
	app.Get("/clients", h.List)
	app.Get("/clients/:id", h.Detail)
	app.Put("/clients/:id", h.Update)
	return app
}

type clientPage struct {
	Total int64                  `json:"total"`
	Items []models.ClientProfile `json:"items"`
}

func Test_Create_ListedForCreator(t *testing.T) {
	db := testutil.OpenDB(t)
	adv := testutil.SeedUser(t, db, models.RoleAdvocate, "Ada Advocate")
	other := testutil.SeedUser(t, db, models.RoleAdvocate, "Otto Other")

	var created models.ClientProfile
	resp := testutil.JSON(t, appAs(db, adv.ID, models.RoleAdvocate), http.MethodPost, "/clients", fiber.Map{
		"name": "Carla Client", "email": "carla@example.com", "company": "Acme",
	}, &created)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create expected 201, got %d", resp.StatusCode)
	}
	if created.User.Role != models.RoleClient || created.CreatedBy == nil || *created.CreatedBy != adv.ID {
		t.Fatalf("unexpected profile: %+v", created)
	}

	var page clientPage
	testutil.JSON(t, appAs(db, adv.ID, models.RoleAdvocate), http.MethodGet, "/clients?q=carla", nil, &page)
	if page.Total != 1 || page.Items[0].User.Email != "carla@example.com" {
		t.Fatalf("creator should see the client: %+v", page)
	}

	page = clientPage{}
	testutil.JSON(t, appAs(db, other.ID, models.RoleAdvocate), http.MethodGet, "/clients", nil, &page)
	if page.Total != 0 {
		t.Fatalf("unrelated advocate should see no clients, got %d", page.Total)
	}

	resp = testutil.JSON(t, appAs(db, other.ID, models.RoleAdvocate), http.MethodGet, "/clients/"+created.UserID.String(), nil, nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("unrelated advocate detail expected 404, got %d", resp.StatusCode)
	}
}

func Test_List_VisibleThroughAssignment(t *testing.T) {
	db := testutil.OpenDB(t)
	adv := testutil.SeedUser(t, db, models.RoleAdvocate, "Ada Advocate")
	cli := testutil.SeedUser(t, db, models.RoleClient, "Carl Client")
	testutil.SeedCase(t, db, adv.ID, cli.ID, models.CaseActive)

	var detail ClientDetail
	resp := testutil.JSON(t, appAs(db, adv.ID, models.RoleAdvocate), http.MethodGet, "/clients/"+cli.ID.String(), nil, &detail)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(detail.Cases) != 1 {
		t.Fatalf("expected 1 case on client detail, got %d", len(detail.Cases))
	}
}

func Test_Create_DuplicateEmail_409(t *testing.T) {
	db := testutil.OpenDB(t)
	staff := testutil.SeedUser(t, db, models.RoleStaff, "Sam Staff")
	app := appAs(db, staff.ID, models.RoleStaff)

	body := fiber.Map{"name": "Dup", "email": "dup@example.com"}
	if r := testutil.JSON(t, app, http.MethodPost, "/clients", body, nil); r.StatusCode != fiber.StatusCreated {
		t.Fatalf("first create expected 201, got %d", r.StatusCode)
	}
	if r := testutil.JSON(t, app, http.MethodPost, "/clients", body, nil); r.StatusCode != fiber.StatusConflict {
		t.Fatalf("second create expected 409, got %d", r.StatusCode)
	}
}

func Test_Update(t *testing.T) {
	db := testutil.OpenDB(t)
	staff := testutil.SeedUser(t, db, models.RoleStaff, "Sam Staff")
	cli := testutil.SeedUser(t, db, models.RoleClient, "Carl Client")

	var out models.ClientProfile
	resp := testutil.JSON(t, appAs(db, staff.ID, models.RoleStaff), http.MethodPut, "/clients/"+cli.ID.String(), fiber.Map{
		"name": "Carl C. Client", "occupation": "Engineer",
	}, &out)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if out.User.Name != "Carl C. Client" || out.Occupation != "Engineer" {
		t.Fatalf("update not applied: %+v", out)
	}
}
