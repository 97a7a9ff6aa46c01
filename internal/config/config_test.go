package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.False(t, cfg.Production())
	assert.Equal(t, "http://localhost:8000", cfg.Upstream.BaseURL)
	assert.Equal(t, "access_token", cfg.Session.CookieName)
	assert.Equal(t, 24*time.Hour, cfg.Session.LoginTTL)
	assert.Equal(t, time.Hour, cfg.Session.SignupTTL)
	assert.Equal(t, time.Hour, cfg.Session.RefreshTTL)
	assert.Equal(t, "auth:logout-retry", cfg.Queue.Stream)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Empty(t, cfg.Postgres.DSN)
	assert.Equal(t, "@every 30s", cfg.Jobs.HealthProbe)
	assert.Equal(t, 30*24*time.Hour, cfg.Jobs.AuditRetention)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	yaml := []byte(`
environment: production
upstream:
  baseurl: http://backend:9000/
session:
  loginttl: 2h
allowcorsorigins: https://a.example,https://b.example
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("DOCCHAT_SESSION_REFRESHTTL", "15m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Production())
	assert.Equal(t, "http://backend:9000", cfg.Upstream.BaseURL)
	assert.Equal(t, 2*time.Hour, cfg.Session.LoginTTL)
	assert.Equal(t, 15*time.Minute, cfg.Session.RefreshTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowCORSOrigins)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	env := []byte("DOCCHAT_UPSTREAM_TIMEOUT=5s\nDOCCHAT_ENVIRONMENT=staging\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), env, 0o600))
	t.Setenv("DOCCHAT_ENVIRONMENT", "production")
	t.Cleanup(func() { _ = os.Unsetenv("DOCCHAT_UPSTREAM_TIMEOUT") })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, "production", cfg.Environment, "real environment wins over .env")
}

func TestLoadRejectsBadRateLimit(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DOCCHAT_RATELIMIT_ENABLED", "true")

	t.Setenv("DOCCHAT_RATELIMIT_WINDOW", "0s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ratelimit.window")

	t.Setenv("DOCCHAT_RATELIMIT_WINDOW", "1m")
	t.Setenv("DOCCHAT_RATELIMIT_REQUESTS", "0")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ratelimit.requests")

	t.Setenv("DOCCHAT_RATELIMIT_REQUESTS", "5")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
}

func TestLoadIgnoresZeroWindowWhenLimiterOff(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DOCCHAT_RATELIMIT_WINDOW", "0s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.RateLimit.Enabled)
}
