package auth

import (
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aldoetobex/legal-case-manager/pkg/models"
)

/* ============================== JWT Claims ============================== */

// Claims represents the JWT payload we issue and expect.
type Claims struct {
	Sub  string `json:"sub"`  // user ID
	Role string `json:"role"` // "advocate" | "client" | "staff"
	jwt.RegisteredClaims
}

/* ============================== Sessions ================================ */

// Sessions signs and verifies session tokens. The same token is accepted
// from the Authorization header or from the session cookie.
type Sessions struct {
	secret []byte
	expiry time.Duration
	cookie string
	secure bool
}

func NewSessions(secret string, expiry time.Duration, cookieName string, secure bool) *Sessions {
	if expiry <= 0 {
		expiry = 7 * 24 * time.Hour
	}
	if cookieName == "" {
		cookieName = "session"
	}
	return &Sessions{secret: []byte(secret), expiry: expiry, cookie: cookieName, secure: secure}
}

// IssueToken signs a JWT for the given user and role.
func (s *Sessions) IssueToken(userID uuid.UUID, role models.Role) (string, time.Time, error) {
	exp := time.Now().Add(s.expiry)
	claims := &Claims{
		Sub:  userID.String(),
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.secret)
	return signed, exp, err
}

func (s *Sessions) parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}

// SetCookie stores the token in an HTTP-only cookie.
func (s *Sessions) SetCookie(c *fiber.Ctx, token string, exp time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     s.cookie,
		Value:    token,
		Expires:  exp,
		HTTPOnly: true,
		Secure:   s.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
	})
}

// ClearCookie expires the session cookie.
func (s *Sessions) ClearCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     s.cookie,
		Value:    "",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   s.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
	})
}

/* ============================== Middleware ============================== */

// RequireAuth validates the session token and injects userID and role into the context.
func (s *Sessions) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := ""
		if h := c.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			tokenStr = strings.TrimPrefix(h, "Bearer ")
		} else {
			tokenStr = c.Cookies(s.cookie)
		}
		if tokenStr == "" {
			return fiber.ErrUnauthorized
		}

		claims, err := s.parse(tokenStr)
		if err != nil {
			return fiber.ErrUnauthorized
		}
		id, err := uuid.Parse(claims.Sub)
		if err != nil {
			return fiber.ErrUnauthorized
		}

		c.Locals("userID", id)
		c.Locals("role", models.Role(claims.Role))
		return c.Next()
	}
}

// RateLimitAuth limits login and signup attempts per client IP.
func RateLimitAuth(max int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		LimitReached: func(c *fiber.Ctx) error {
			slog.Warn("rate limit exceeded", "ip", c.IP(), "path", c.Path())
			return fiber.NewError(fiber.StatusTooManyRequests, "Too many requests. Please try again later.")
		},
	})
}

// MustUserID reads the authenticated user ID from context or panics (programming error).
func MustUserID(c *fiber.Ctx) uuid.UUID {
	if v, ok := c.Locals("userID").(uuid.UUID); ok {
		return v
	}
	panic(errors.New("user not in context"))
}

// MustRole reads the authenticated user role from context or panics (programming error).
func MustRole(c *fiber.Ctx) models.Role {
	if v, ok := c.Locals("role").(models.Role); ok {
		return v
	}
	panic(errors.New("role not in context"))
}

// RequireRole ensures the authenticated user has one of the expected roles.
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !slices.Contains(roles, MustRole(c)) {
			return fiber.ErrForbidden
		}
		return c.Next()
	}
}

/* =========================== Error Formatting =========================== */

// httpCodeToString converts an HTTP status code to a short, stable string.
func httpCodeToString(code int) string {
	switch code {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusForbidden:
		return "FORBIDDEN"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusConflict:
		return "CONFLICT"
	case fiber.StatusUnprocessableEntity:
		return "UNPROCESSABLE_ENTITY"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case fiber.StatusTooManyRequests:
		return "TOO_MANY_REQUESTS"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

// ErrorHandler is a global Fiber error handler that returns a consistent JSON shape.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		if strings.TrimSpace(fe.Message) != "" {
			msg = fe.Message
		} else {
			msg = defaultMessage(code)
		}
	}

	if code >= fiber.StatusInternalServerError {
		slog.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}

	return c.Status(code).JSON(models.ErrorResponse{
		Code:    httpCodeToString(code),
		Error:   true,
		Message: msg,
	})
}

func defaultMessage(code int) string {
	switch code {
	case fiber.StatusBadRequest:
		return fiber.ErrBadRequest.Message
	case fiber.StatusUnauthorized:
		return fiber.ErrUnauthorized.Message
	case fiber.StatusForbidden:
		return fiber.ErrForbidden.Message
	case fiber.StatusNotFound:
		return fiber.ErrNotFound.Message
	case fiber.StatusConflict:
		return fiber.ErrConflict.Message
	default:
		return fiber.ErrInternalServerError.Message
	}
}
