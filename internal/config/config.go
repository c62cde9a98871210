package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Application
	AppEnv string
	AppURL string
	Port   string

	// Database
	DBType            string // postgres, mysql, sqlite, sqlserver
	DatabaseURL       string
	DBConnectionLimit int

	// Sessions
	JWTSecret     string
	JWTExpiry     time.Duration
	SessionCookie string
	SessionSecure bool

	// Uploads
	StorageDriver string // local, s3, supabase
	UploadDir     string
	MaxUploadMB   int

	// S3-compatible storage
	S3Region        string
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	S3Endpoint      string
	S3PresignExpiry time.Duration

	// Supabase storage
	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string

	// Email
	ResendAPIKey string
	EmailFrom    string

	// Observability
	SentryDSN string

	// Abuse protection
	LoginRateLimit int

	// First staff account, created at startup when no staff exists
	BootstrapStaffEmail    string
	BootstrapStaffPassword string
}

// Load reads configuration from the environment, after loading .env if present
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "development"),
		AppURL: getEnv("APP_URL", "http://localhost:3000"),
		Port:   getEnv("PORT", "3000"),

		DBType:            strings.ToLower(getEnv("DB_TYPE", "postgres")),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		DBConnectionLimit: getEnvAsInt("DB_CONNECTION_LIMIT", 10),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		JWTExpiry:     getEnvAsDuration("JWT_EXPIRY", 7*24*time.Hour),
		SessionCookie: getEnv("SESSION_COOKIE", "session"),
		SessionSecure: getEnvAsBool("SESSION_SECURE", false),

		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", "local")),
		UploadDir:     getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadMB:   getEnvAsInt("MAX_UPLOAD_MB", 10),

		S3Region:        getEnv("S3_REGION", "us-east-1"),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3AccessKey:     getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:     getEnv("S3_SECRET_KEY", ""),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3PresignExpiry: getEnvAsDuration("S3_PRESIGN_EXPIRY", time.Hour),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseBucket:     getEnv("SUPABASE_BUCKET", ""),

		ResendAPIKey: getEnv("RESEND_API_KEY", ""),
		EmailFrom:    getEnv("EMAIL_FROM", "noreply@example.com"),

		SentryDSN: getEnv("SENTRY_DSN", ""),

		LoginRateLimit: getEnvAsInt("LOGIN_RATE_LIMIT", 10),

		BootstrapStaffEmail:    getEnv("BOOTSTRAP_STAFF_EMAIL", ""),
		BootstrapStaffPassword: getEnv("BOOTSTRAP_STAFF_PASSWORD", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.StorageDriver {
	case "local":
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for STORAGE_DRIVER=s3")
		}
	case "supabase":
		if c.SupabaseURL == "" || c.SupabaseBucket == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_BUCKET are required for STORAGE_DRIVER=supabase")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER: %s", c.StorageDriver)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// MaxUploadBytes is the per-file upload ceiling.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", valueStr, "default", defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(valueStr)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", valueStr, "default", defaultValue)
		return defaultValue
	}
	return d
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", valueStr, "default", defaultValue)
		return defaultValue
	}
	return value
}
