package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_BASE_URL", "")
	t.Setenv("STORAGE_SIGNING_SECRET", "")
	t.Setenv("POLL_MAX_ATTEMPTS", "")
	t.Setenv("ALLOW_ANONYMOUS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StorageBaseURL != "http://localhost:8080/v1/files" {
		t.Fatalf("StorageBaseURL mismatch: got %q", cfg.StorageBaseURL)
	}
	if cfg.StorageSigningSecret != "test-secret" {
		t.Fatalf("signing secret should inherit JWT_SECRET, got %q", cfg.StorageSigningSecret)
	}
	if cfg.PollInterval != 2*time.Second || cfg.PollMaxAttempts != 60 {
		t.Fatalf("poll budget mismatch: %s x %d", cfg.PollInterval, cfg.PollMaxAttempts)
	}
	if cfg.AllowAnonymous {
		t.Fatalf("anonymous access should be disabled by default")
	}
	if cfg.ReferenceHijabURL != "http://localhost:8080/v1/files/references/model-female-hijab.jpg" {
		t.Fatalf("ReferenceHijabURL mismatch: %q", cfg.ReferenceHijabURL)
	}
}

func TestLoadConfigInheritsPortInStorageBaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "1919")
	t.Setenv("STORAGE_BASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "http://localhost:1919/v1/files"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
}

func TestLoadConfigHonorsExplicitValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("STORAGE_BASE_URL", "https://cdn.example.com/files/")
	t.Setenv("STORAGE_SIGNING_SECRET", "sign-me")
	t.Setenv("POLL_MAX_ATTEMPTS", "5")
	t.Setenv("ALLOW_ANONYMOUS", "true")
	t.Setenv("REFERENCE_MALE_URL", "https://cdn.example.com/male.jpg")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://app.example.com, ,https://admin.example.com")
	t.Setenv("GEOIP_DB_PATH", " /var/lib/geoip/GeoLite2-Country.mmdb ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StorageBaseURL != "https://cdn.example.com/files" {
		t.Fatalf("StorageBaseURL mismatch: %q", cfg.StorageBaseURL)
	}
	if cfg.StorageSigningSecret != "sign-me" {
		t.Fatalf("signing secret mismatch: %q", cfg.StorageSigningSecret)
	}
	if cfg.PollMaxAttempts != 5 {
		t.Fatalf("PollMaxAttempts = %d, want 5", cfg.PollMaxAttempts)
	}
	if !cfg.AllowAnonymous {
		t.Fatalf("ALLOW_ANONYMOUS=true not honoured")
	}
	if cfg.ReferenceMaleURL != "https://cdn.example.com/male.jpg" {
		t.Fatalf("ReferenceMaleURL mismatch: %q", cfg.ReferenceMaleURL)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://admin.example.com" {
		t.Fatalf("CORSAllowedOrigins mismatch: %v", cfg.CORSAllowedOrigins)
	}
	if cfg.GeoIPDBPath != "/var/lib/geoip/GeoLite2-Country.mmdb" {
		t.Fatalf("GeoIPDBPath mismatch: %q", cfg.GeoIPDBPath)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "test-secret")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}
