package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresCoreSettingsOutsideTest(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, 24, cfg.DefaultLookbackHours)
	assert.Equal(t, "https://api.resend.com", cfg.ResendBaseURL)
	assert.Equal(t, 30*time.Second, cfg.GetHTTPTimeout())
	assert.False(t, cfg.NATSEnabled())
	assert.False(t, cfg.SnapshotArchiveEnabled())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DATABASE_URL", "postgres://localhost:5432")
	t.Setenv("DATABASE_NAME", "digest")
	t.Setenv("EVENT_BUS_URL", "https://bus.example.test")
	t.Setenv("RESEND_API_KEY", "re_test")
	t.Setenv("EMAIL_FROM", "digest@example.test")
	t.Setenv("NATS_SERVERS", "nats://nats:4222")
	t.Setenv("DEFAULT_LOOKBACK_HOURS", "48")
	t.Setenv("HTTP_TIMEOUT", "10s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost:5432/digest?sslmode=disable", cfg.GetDatabaseURL())
	assert.Equal(t, 48*time.Hour, cfg.GetLookback())
	assert.Equal(t, 10*time.Second, cfg.GetHTTPTimeout())
	assert.True(t, cfg.NATSEnabled())
}

func TestGet_ReturnsTestConfigOverride(t *testing.T) {
	ResetConfig()
	t.Cleanup(ResetConfig)

	testCfg := NewTestConfig()
	testCfg.AdminAddr = "127.0.0.1:0"
	SetTestConfig(testCfg)

	assert.Same(t, testCfg, Get())
}

func TestGetLookback_FallsBackToOneDay(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, 24*time.Hour, cfg.GetLookback())
}
