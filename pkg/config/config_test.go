package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, EnvDevelopment, cfg.Env)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, 24*time.Hour, cfg.JWT.Expiration)
	require.Equal(t, 5*time.Minute, cfg.Redis.CacheTTL)
	require.False(t, cfg.Redis.Enabled)
	require.True(t, cfg.Ledger.TrackStockEdits)
	require.Equal(t, 8, cfg.Ledger.ReconcileConcurrency)
	require.Equal(t, 30, cfg.RateLimit.SubmissionsPerMinute)
	require.Equal(t, []string{"http://localhost:3000"}, cfg.CORS.AllowedOrigins)
	require.Empty(t, cfg.NATS.URL)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("JWT_EXPIRATION", "90m")
	t.Setenv("CACHE_TTL", "not-a-duration")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("LEDGER_TRACK_STOCK_EDITS", "false")
	t.Setenv("NATS_URL", "nats://localhost:4222")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, 90*time.Minute, cfg.JWT.Expiration)
	require.Equal(t, 5*time.Minute, cfg.Redis.CacheTTL)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	require.False(t, cfg.Ledger.TrackStockEdits)
	require.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
}

func TestLoadRefusesDevSecretInProduction(t *testing.T) {
	t.Setenv("ENV", EnvProduction)

	_, err := Load()
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "a-real-secret")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "a-real-secret", cfg.JWT.Secret)
}

func TestDSNEscapesCredentials(t *testing.T) {
	dsn := DatabaseConfig{
		Host:     "db",
		Port:     5432,
		User:     "store",
		Password: "p@ss:word/1",
		Name:     "storefront",
		SSLMode:  "disable",
	}.DSN()

	require.Equal(t, "postgres://store:p%40ss%3Aword%2F1@db:5432/storefront?sslmode=disable", dsn)
}
