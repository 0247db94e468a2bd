package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"PORT", "APP_ENV", "DATABASE_DRIVER", "DATABASE_URL", "STORAGE_DIR",
	"MAX_UPLOAD_BYTES", "JWT_SECRET", "LOGIN_URL", "ALLOWED_ORIGINS", "NATS_URL",
	"OTEL_EXPORTER_OTLP_ENDPOINT", "SWEEP_INTERVAL", "SWEEP_GRACE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "local", cfg.Env)
	assert.True(t, cfg.IsLocal())
	assert.Equal(t, DriverSQLite, cfg.DatabaseDriver)
	assert.Equal(t, "postboard.db", cfg.DatabaseURL)
	assert.Equal(t, "storage", cfg.StorageDir)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.Equal(t, "/login", cfg.LoginURL)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Empty(t, cfg.NatsURL)
	assert.Empty(t, cfg.OTLPEndpoint)
	assert.Zero(t, cfg.SweepInterval)
	assert.Equal(t, time.Hour, cfg.SweepGrace)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PORT", "9000")
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/posts")
	t.Setenv("MAX_UPLOAD_BYTES", "2048")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("SWEEP_INTERVAL", "10m")
	t.Setenv("SWEEP_GRACE", "30m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.False(t, cfg.IsLocal())
	assert.Equal(t, DriverPostgres, cfg.DatabaseDriver)
	assert.Equal(t, "postgres://localhost/posts", cfg.DatabaseURL)
	assert.Equal(t, int64(2048), cfg.MaxUploadBytes)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 10*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 30*time.Minute, cfg.SweepGrace)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing secret", env: map[string]string{}},
		{name: "bad port", env: map[string]string{"JWT_SECRET": "s", "PORT": "http"}},
		{name: "bad driver", env: map[string]string{"JWT_SECRET": "s", "DATABASE_DRIVER": "mysql"}},
		{name: "bad upload limit", env: map[string]string{"JWT_SECRET": "s", "MAX_UPLOAD_BYTES": "0"}},
		{name: "bad interval", env: map[string]string{"JWT_SECRET": "s", "SWEEP_INTERVAL": "often"}},
		{name: "negative grace", env: map[string]string{"JWT_SECRET": "s", "SWEEP_GRACE": "-1h"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
