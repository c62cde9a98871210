package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/legal-case-manager/internal/testutil"
	"github.com/aldoetobex/legal-case-manager/pkg/models"
)

// newTestApp wires the auth routes the same way main does.
func newTestApp(t *testing.T) (*fiber.App, *Sessions) {
	t.Helper()
	db := testutil.OpenDB(t)
	sess := NewSessions("test-secret", time.Hour, "session", false)
	h := NewHandler(db, sess, testutil.NewMemStore(), 1<<20)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Post("/signup", h.Signup)
	app.Post("/login", h.Login)
	app.Post("/logout", h.Logout)

	api := app.Group("/", sess.RequireAuth())
	api.Get("/me", h.Me)
	api.Put("/me", h.UpdateMe)
	api.Put("/me/password", h.ChangePassword)
	api.Post("/me/avatar", h.UploadAvatar)
	api.Get("/users/:id/avatar", h.Avatar)
	api.Get("/staff-only", RequireRole(models.RoleStaff), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	return app, sess
}

func signup(t *testing.T, app *fiber.App, role, email string) AuthResponse {
	t.Helper()
	var out AuthResponse
	resp := testutil.JSON(t, app, http.MethodPost, "/signup", fiber.Map{
		"role": role, "name": "Test User", "email": email, "password": "secret123",
	}, &out)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("signup expected 201, got %d", resp.StatusCode)
	}
	return out
}

func withBearer(method, path, token string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func Test_Signup_Login_Me(t *testing.T) {
	app, _ := newTestApp(t)

	out := signup(t, app, "advocate", "Ada@Example.com")
	if out.Token == "" || out.Role != "advocate" {
		t.Fatalf("unexpected auth response: %+v", out)
	}

	// duplicate email (case-insensitive) is a conflict
	resp := testutil.JSON(t, app, http.MethodPost, "/signup", fiber.Map{
		"role": "client", "name": "Other", "email": "ada@example.com", "password": "secret123",
	}, nil)
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("expected 409 on duplicate email, got %d", resp.StatusCode)
	}

	var login AuthResponse
	resp = testutil.JSON(t, app, http.MethodPost, "/login", fiber.Map{"email": "ada@example.com", "password": "secret123"}, &login)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("login expected 200, got %d", resp.StatusCode)
	}

	resp, _ = app.Test(withBearer(http.MethodGet, "/me", login.Token), -1)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("me expected 200, got %d", resp.StatusCode)
	}
}

func Test_Login_WrongPassword_401(t *testing.T) {
	app, _ := newTestApp(t)
	signup(t, app, "client", "carl@example.com")

	resp := testutil.JSON(t, app, http.MethodPost, "/login", fiber.Map{"email": "carl@example.com", "password": "nope-nope"}, nil)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func Test_Signup_StaffRole_Rejected(t *testing.T) {
	app, _ := newTestApp(t)
	resp := testutil.JSON(t, app, http.MethodPost, "/signup", fiber.Map{
		"role": "staff", "name": "Sneaky", "email": "s@example.com", "password": "secret123",
	}, nil)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for staff self-signup, got %d", resp.StatusCode)
	}
}

func Test_RequireAuth_CookieAndMissing(t *testing.T) {
	app, sess := newTestApp(t)
	out := signup(t, app, "client", "cookie@example.com")

	// no credentials
	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/me", nil), -1)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	// session cookie instead of header
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: sess.cookie, Value: out.Token})
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 with cookie, got %d", resp.StatusCode)
	}

	// token signed with another secret
	other := NewSessions("other-secret", time.Hour, "session", false)
	forged, _, _ := other.IssueToken(uuid.New(), models.RoleStaff)
	resp, _ = app.Test(withBearer(http.MethodGet, "/me", forged), -1)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for forged token, got %d", resp.StatusCode)
	}
}

func Test_RequireRole_Forbidden(t *testing.T) {
	app, _ := newTestApp(t)
	out := signup(t, app, "advocate", "adv@example.com")

	resp, _ := app.Test(withBearer(http.MethodGet, "/staff-only", out.Token), -1)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func Test_ChangePassword(t *testing.T) {
	app, _ := newTestApp(t)
	out := signup(t, app, "client", "pw@example.com")

	req := func(body string) *http.Request {
		r := httptest.NewRequest(http.MethodPut, "/me/password", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("Authorization", "Bearer "+out.Token)
		return r
	}

	resp, _ := app.Test(req(`{"current_password":"wrong-one","new_password":"newsecret1"}`), -1)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong current password, got %d", resp.StatusCode)
	}

	resp, _ = app.Test(req(`{"current_password":"secret123","new_password":"newsecret1"}`), -1)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	r := testutil.JSON(t, app, http.MethodPost, "/login", fiber.Map{"email": "pw@example.com", "password": "newsecret1"}, nil)
	if r.StatusCode != fiber.StatusOK {
		t.Fatalf("login with new password expected 200, got %d", r.StatusCode)
	}
}

func Test_UploadAvatar_RejectsPDF(t *testing.T) {
	app, _ := newTestApp(t)
	out := signup(t, app, "client", "img@example.com")

	body, ct := testutil.Multipart(t, nil, "file", "cv.pdf", []byte("%PDF"))
	req := httptest.NewRequest(http.MethodPost, "/me/avatar", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer "+out.Token)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for pdf avatar, got %d", resp.StatusCode)
	}
}

func Test_RateLimitAuth_429(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Post("/login", RateLimitAuth(2, time.Minute), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	for i := 0; i < 2; i++ {
		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/login", nil), -1)
		if resp.StatusCode != fiber.StatusNoContent {
			t.Fatalf("attempt %d expected 204, got %d", i+1, resp.StatusCode)
		}
	}
	resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/login", nil), -1)
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("third attempt expected 429, got %d", resp.StatusCode)
	}
}
