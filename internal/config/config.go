// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported values for DATABASE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all configuration for the application.
type Config struct {
	// Port is the HTTP server port.
	Port int

	// Env is the deployment environment ("local", "production", ...). Local
	// environments log as text, everything else as JSON.
	Env string

	// DatabaseDriver selects the post repository: "sqlite" or "postgres".
	DatabaseDriver string

	// DatabaseURL is a SQLite file path or a Postgres connection string.
	DatabaseURL string

	// StorageDir is the root of the local image disk.
	StorageDir string

	// MaxUploadBytes caps a single image upload.
	MaxUploadBytes int64

	// JWTSecret verifies bearer tokens.
	JWTSecret string

	// LoginURL is where unauthenticated page actions are redirected.
	LoginURL string

	// AllowedOrigins lists CORS origins for the JSON API.
	AllowedOrigins []string

	// NatsURL enables publishing post events to NATS when set.
	NatsURL string

	// OTLPEndpoint enables trace export when set.
	OTLPEndpoint string

	// SweepInterval is how often orphaned images are swept. Zero disables it.
	SweepInterval time.Duration

	// SweepGrace is the minimum age of an unreferenced image before it is swept.
	SweepGrace time.Duration
}

// IsLocal reports whether the service runs in a local environment.
func (c *Config) IsLocal() bool {
	return c.Env == "" || c.Env == "local"
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is applied first when present; it
// never overrides variables already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	port := 8080
	if p := os.Getenv("PORT"); p != "" {
		var err error
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
	}

	driver := getEnv("DATABASE_DRIVER", DriverSQLite)
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("invalid DATABASE_DRIVER %q: must be %q or %q", driver, DriverSQLite, DriverPostgres)
	}

	maxUpload := int64(10 << 20)
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES: %w", err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES: must be positive")
		}
		maxUpload = parsed
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	sweepInterval, err := getDuration("SWEEP_INTERVAL", 0)
	if err != nil {
		return nil, err
	}
	sweepGrace, err := getDuration("SWEEP_GRACE", time.Hour)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:           port,
		Env:            getEnv("APP_ENV", "local"),
		DatabaseDriver: driver,
		DatabaseURL:    getEnv("DATABASE_URL", "postboard.db"),
		StorageDir:     getEnv("STORAGE_DIR", "storage"),
		MaxUploadBytes: maxUpload,
		JWTSecret:      secret,
		LoginURL:       getEnv("LOGIN_URL", "/login"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
		NatsURL:        os.Getenv("NATS_URL"),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SweepInterval:  sweepInterval,
		SweepGrace:     sweepGrace,
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
