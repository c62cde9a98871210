package config

import (
	"testing"
	"time"
)

func setBase(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DATABASE_URL", "file:test.db")
	t.Setenv("STORAGE_DRIVER", "")
}

func Test_Load_Defaults(t *testing.T) {
	setBase(t)
	t.Setenv("DB_TYPE", "SQLite")
	t.Setenv("MAX_UPLOAD_MB", "not-a-number")
	t.Setenv("JWT_EXPIRY", "2h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBType != "sqlite" || cfg.StorageDriver != "local" || cfg.Port != "3000" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxUploadMB != 10 || cfg.MaxUploadBytes() != 10<<20 {
		t.Fatalf("invalid int should fall back to default, got %d", cfg.MaxUploadMB)
	}
	if cfg.JWTExpiry != 2*time.Hour {
		t.Fatalf("expected 2h expiry, got %s", cfg.JWTExpiry)
	}
}

func Test_Load_Validation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{"JWT_SECRET": ""}},
		{"missing dsn", map[string]string{"DATABASE_URL": ""}},
		{"s3 without bucket", map[string]string{"STORAGE_DRIVER": "s3", "S3_BUCKET": ""}},
		{"supabase without url", map[string]string{"STORAGE_DRIVER": "supabase", "SUPABASE_URL": ""}},
		{"unknown driver", map[string]string{"STORAGE_DRIVER": "ftp"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setBase(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
