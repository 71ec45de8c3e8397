package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv               string
	Port                 string
	DatabaseURL          string
	JWTSecret            string
	AllowAnonymous       bool
	StoragePath          string
	StorageBaseURL       string
	StorageSigningSecret string
	SignedURLTTL         time.Duration
	KieAPIKey            string
	KieBaseURL           string
	KieModel             string
	KieHTTPTimeout       time.Duration
	PollInterval         time.Duration
	PollMaxAttempts      int
	DefaultMonthlyLimit  int
	ReferenceFemaleURL   string
	ReferenceHijabURL    string
	ReferenceMaleURL     string
	HTTPReadTimeout      time.Duration
	HTTPWriteTimeout     time.Duration
	HTTPIdleTimeout      time.Duration
	RateLimitPerMin      int
	CORSAllowedOrigins   []string
	GeoIPDBPath          string
	RecoveryInterval     time.Duration
	RecoveryLease        time.Duration
	RecoveryConcurrency  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	storageBaseURL := strings.TrimRight(getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/v1/files"), "/")

	cfg := &Config{
		AppEnv:               getEnv("APP_ENV", "development"),
		Port:                 port,
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		AllowAnonymous:       getEnvBool("ALLOW_ANONYMOUS", false),
		StoragePath:          getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:       storageBaseURL,
		StorageSigningSecret: os.Getenv("STORAGE_SIGNING_SECRET"),
		SignedURLTTL:         time.Second * time.Duration(getEnvInt("SIGNED_URL_TTL_SECONDS", 3600)),
		KieAPIKey:            strings.TrimSpace(os.Getenv("KIE_API_KEY")),
		KieBaseURL:           getEnv("KIE_BASE_URL", "https://api.kie.ai"),
		KieModel:             getEnv("KIE_MODEL", "google/nano-banana-edit"),
		KieHTTPTimeout:       time.Second * time.Duration(getEnvInt("KIE_HTTP_TIMEOUT_SECONDS", 60)),
		PollInterval:         time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 2)),
		PollMaxAttempts:      getEnvInt("POLL_MAX_ATTEMPTS", 60),
		DefaultMonthlyLimit:  getEnvInt("DEFAULT_MONTHLY_LIMIT", 10),
		ReferenceFemaleURL:   getEnv("REFERENCE_FEMALE_URL", storageBaseURL+"/references/model-female.jpg"),
		ReferenceHijabURL:    getEnv("REFERENCE_FEMALE_HIJAB_URL", storageBaseURL+"/references/model-female-hijab.jpg"),
		ReferenceMaleURL:     getEnv("REFERENCE_MALE_URL", storageBaseURL+"/references/model-male.jpg"),
		HTTPReadTimeout:      time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:     time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 180)),
		HTTPIdleTimeout:      time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:      getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins:   getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		GeoIPDBPath:          strings.TrimSpace(os.Getenv("GEOIP_DB_PATH")),
		RecoveryInterval:     time.Second * time.Duration(getEnvInt("RECOVERY_INTERVAL_SECONDS", 15)),
		RecoveryLease:        time.Second * time.Duration(getEnvInt("RECOVERY_LEASE_SECONDS", 180)),
		RecoveryConcurrency:  getEnvInt("RECOVERY_CONCURRENCY", 4),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.StorageSigningSecret == "" {
		cfg.StorageSigningSecret = cfg.JWTSecret
	}
	if cfg.PollMaxAttempts <= 0 {
		cfg.PollMaxAttempts = 60
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.RecoveryConcurrency < 1 {
		cfg.RecoveryConcurrency = 1
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
