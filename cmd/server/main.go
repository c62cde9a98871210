// @title           Legal Case Manager API
// @version         1.0
// @description     API for a legal practice: advocates manage clients, cases, calendar events, tasks, documents, internal messages, billing and reports.
// @contact.name    Aldo Rifki Putra
// @contact.email   aldoetobex@gmail.com
// @BasePath        /api
// @schemes         http https
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
// @description     Format: Bearer <token>. The session cookie is accepted too.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	fiberSwagger "github.com/gofiber/swagger"
	"gorm.io/gorm"

	_ "github.com/aldoetobex/legal-case-manager/docs"
	"github.com/aldoetobex/legal-case-manager/internal/advocates"
	"github.com/aldoetobex/legal-case-manager/internal/auth"
	"github.com/aldoetobex/legal-case-manager/internal/billing"
	"github.com/aldoetobex/legal-case-manager/internal/cases"
	"github.com/aldoetobex/legal-case-manager/internal/clients"
	"github.com/aldoetobex/legal-case-manager/internal/config"
	"github.com/aldoetobex/legal-case-manager/internal/documents"
	"github.com/aldoetobex/legal-case-manager/internal/events"
	"github.com/aldoetobex/legal-case-manager/internal/logger"
	"github.com/aldoetobex/legal-case-manager/internal/messages"
	"github.com/aldoetobex/legal-case-manager/internal/notifications"
	"github.com/aldoetobex/legal-case-manager/internal/notify"
	"github.com/aldoetobex/legal-case-manager/internal/reports"
	"github.com/aldoetobex/legal-case-manager/internal/storage"
	"github.com/aldoetobex/legal-case-manager/internal/tasks"
	"github.com/aldoetobex/legal-case-manager/pkg/database"
	"github.com/aldoetobex/legal-case-manager/pkg/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.Init(cfg.IsDevelopment(), cfg.SentryDSN)

	db, err := database.Connect(database.Options{
		Type:     cfg.DBType,
		DSN:      cfg.DatabaseURL,
		MaxConns: cfg.DBConnectionLimit,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if cfg.BootstrapStaffEmail != "" {
		if err := auth.EnsureStaff(ctx, db, cfg.BootstrapStaffEmail, cfg.BootstrapStaffPassword); err != nil {
			slog.Error("failed to create bootstrap staff account", "error", err)
		}
	}

	store, err := storage.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}

	var mailer notify.Mailer
	if cfg.ResendAPIKey != "" || cfg.IsDevelopment() {
		mailer = notify.NewResendMailer(cfg.ResendAPIKey, cfg.EmailFrom, cfg.IsDevelopment())
	}
	notifier := notify.New(db, mailer, cfg.AppURL)
	sessions := auth.NewSessions(cfg.JWTSecret, cfg.JWTExpiry, cfg.SessionCookie, cfg.SessionSecure)
	maxUpload := cfg.MaxUploadBytes()

	app := fiber.New(fiber.Config{
		ErrorHandler: auth.ErrorHandler,
		BodyLimit:    int(maxUpload) + 1<<20,
	})

	app.Use(recover.New())
	app.Use(logger.RequestLogging())
	app.Use(compress.New())

	prometheus := fiberprometheus.New("legal_case_manager")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	app.Get("/health", health(cfg, db))
	app.Get("/swagger/*", fiberSwagger.HandlerDefault)

	api := app.Group("/api")
	authed := sessions.RequireAuth()
	practice := auth.RequireRole(models.RoleAdvocate, models.RoleStaff)

	// Auth & profile
	authH := auth.NewHandler(db, sessions, store, maxUpload)
	limit := auth.RateLimitAuth(cfg.LoginRateLimit, time.Minute)
	api.Post("/signup", limit, authH.Signup)
	api.Post("/login", limit, authH.Login)
	api.Post("/logout", authH.Logout)
	api.Get("/me", authed, authH.Me)
	api.Put("/me", authed, authH.UpdateMe)
	api.Put("/me/password", authed, authH.ChangePassword)
	api.Post("/me/avatar", authed, authH.UploadAvatar)
	api.Get("/users/:id/avatar", authed, authH.Avatar)
	api.Post("/staff", authed, auth.RequireRole(models.RoleStaff), authH.CreateStaff)

	// Cases
	caseH := cases.NewHandler(db, notifier)
	api.Post("/cases", authed, practice, caseH.Create)
	api.Get("/cases", authed, caseH.List)
	api.Get("/cases/:id", authed, caseH.Detail)
	api.Put("/cases/:id", authed, practice, caseH.Update)
	api.Patch("/cases/:id/status", authed, practice, caseH.ChangeStatus)
	api.Post("/cases/:id/assignments", authed, practice, caseH.Assign)
	api.Get("/cases/:id/activities", authed, caseH.Activities)
	api.Post("/cases/:id/notes", authed, practice, caseH.AddNote)

	// Clients
	clientH := clients.NewHandler(db)
	api.Post("/clients", authed, practice, clientH.Create)
	api.Get("/clients", authed, practice, clientH.List)
	api.Get("/clients/:id", authed, practice, clientH.Detail)
	api.Put("/clients/:id", authed, practice, clientH.Update)

	// Advocates
	advH := advocates.NewHandler(db)
	api.Get("/advocates", authed, practice, advH.List)
	api.Put("/advocates/me", authed, auth.RequireRole(models.RoleAdvocate), advH.UpdateMine)
	api.Get("/advocates/:id", authed, advH.Detail)

	// Calendar
	eventH := events.NewHandler(db)
	ev := api.Group("/events", authed, auth.RequireRole(models.RoleAdvocate))
	ev.Post("/", eventH.Create)
	ev.Get("/", eventH.List)
	ev.Get("/calendar", eventH.Calendar)
	ev.Get("/:id", eventH.Detail)
	ev.Put("/:id", eventH.Update)
	ev.Delete("/:id", eventH.Delete)

	// Tasks
	taskH := tasks.NewHandler(db, notifier)
	tk := api.Group("/tasks", authed, practice)
	tk.Post("/", taskH.Create)
	tk.Get("/", taskH.List)
	tk.Get("/:id", taskH.Detail)
	tk.Put("/:id", taskH.Update)
	tk.Patch("/:id/complete", taskH.Complete)
	tk.Delete("/:id", taskH.Delete)

	// Documents (clients may read their own case files)
	docH := documents.NewHandler(db, store, maxUpload)
	api.Post("/cases/:id/documents", authed, practice, docH.Upload)
	api.Get("/cases/:id/documents", authed, docH.ListByCase)
	api.Get("/documents", authed, docH.List)
	api.Get("/documents/:id/download", authed, docH.Download)
	api.Delete("/documents/:id", authed, practice, docH.Delete)

	// Messages
	msgH := messages.NewHandler(db, store, notifier, maxUpload)
	msg := api.Group("/messages", authed)
	msg.Get("/", msgH.List)
	msg.Post("/", msgH.Send)
	msg.Get("/unread-count", msgH.UnreadCount)
	msg.Get("/:id", msgH.Detail)
	msg.Delete("/:id", msgH.Trash)
	msg.Get("/:id/replies", msgH.Replies)
	msg.Post("/:id/reply", msgH.Reply)
	msg.Post("/:id/star", msgH.ToggleStar)
	msg.Post("/:id/restore", msgH.Restore)
	msg.Delete("/:id/permanent", msgH.PermanentDelete)
	msg.Get("/:id/attachment", msgH.Attachment)

	// Notifications
	notifH := notifications.NewHandler(db)
	nt := api.Group("/notifications", authed)
	nt.Get("/", notifH.List)
	nt.Patch("/read-all", notifH.MarkAllRead)
	nt.Patch("/:id/read", notifH.MarkRead)
	nt.Delete("/:id", notifH.Delete)

	// Finance
	billH := billing.NewHandler(db, notifier)
	api.Post("/cases/:id/incomes", authed, practice, billH.CreateIncome)
	api.Post("/cases/:id/expenses", authed, practice, billH.CreateExpense)
	api.Get("/cases/:id/finance", authed, practice, billH.CaseFinance)
	api.Delete("/incomes/:id", authed, practice, billH.DeleteIncome)
	api.Delete("/expenses/:id", authed, practice, billH.DeleteExpense)
	api.Post("/billings", authed, practice, billH.Create)
	api.Get("/billings", authed, billH.List)
	api.Get("/billings/:id", authed, billH.Detail)
	api.Post("/billings/:id/pay", authed, billH.Pay)
	api.Post("/billings/:id/cancel", authed, practice, billH.Cancel)

	// Reports
	repH := reports.NewHandler(db)
	rp := api.Group("/reports", authed, practice)
	rp.Get("/dashboard", repH.Dashboard)
	rp.Get("/cases", repH.Cases)
	rp.Get("/financial", repH.Financial)
	rp.Get("/tasks", repH.Tasks)

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		slog.Info("gracefully shutting down")
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	slog.Info("server starting", "port", cfg.Port, "env", cfg.AppEnv)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// HealthResult is the /health payload.
type HealthResult struct {
	Status   string            `json:"status"`
	Database string            `json:"database"`
	Details  map[string]string `json:"details,omitempty"`
}

// health pings the database; 503 when it is unreachable.
func health(cfg *config.Config, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res := HealthResult{Status: "healthy", Database: "ok", Details: map[string]string{"database_type": cfg.DBType}}
		if err := database.Ping(db); err != nil {
			slog.Error("health check failed - database ping", "error", err)
			res.Status, res.Database = "unhealthy", "unreachable"
			res.Details["database_error"] = err.Error()
			return c.Status(fiber.StatusServiceUnavailable).JSON(res)
		}
		return c.JSON(res)
	}
}
