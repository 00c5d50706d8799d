package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", testSecret)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadRequiresLongJWTSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/auth")
	t.Setenv("JWT_SECRET", "too-short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/auth")
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, 5, cfg.LoginMaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.LoginLockout)
	assert.Equal(t, 30, cfg.LoginRateLimitPerMinute)
	assert.Equal(t, 2, cfg.JanitorHour)
	assert.Empty(t, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.RunMigrationsOnStartup)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/auth")
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "15")
	t.Setenv("REFRESH_TOKEN_TTL_DAYS", "7")
	t.Setenv("JANITOR_HOUR", "0")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com ,")
	t.Setenv("RUN_MIGRATIONS_ON_STARTUP", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, 0, cfg.JanitorHour)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.RunMigrationsOnStartup)
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/auth")
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("LOGIN_MAX_ATTEMPTS", "-3")
	t.Setenv("JANITOR_HOUR", "24")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.LoginMaxAttempts)
	assert.Equal(t, 2, cfg.JanitorHour)
}
