package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "telegram-jira-bot", cfg.App.Name)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())

	assert.Equal(t, time.Minute, cfg.Reconciler.PollInterval())
	assert.Equal(t, 5*time.Minute, cfg.Reconciler.LookbackWindow())
	assert.Equal(t, time.Minute, cfg.Reconciler.MatchTolerance())
	assert.Equal(t, 24*time.Hour, cfg.Reconciler.RetryHorizon())

	assert.Equal(t, "cf[10152]", cfg.Jira.UsernameField)
	assert.Equal(t, "cf[10153]", cfg.Jira.FullNameField)
	assert.Equal(t, 20, cfg.Jira.MaxResults)
	assert.Equal(t, 30*time.Second, cfg.Jira.CacheTTL())

	assert.Equal(t, ":9091", cfg.Metrics.Addr)
	assert.True(t, cfg.Postgres.RunMigrations)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9000")
	t.Setenv("NOTIFY_POLL_INTERVAL_SECONDS", "30")
	t.Setenv("NOTIFY_LOOKBACK_WINDOW_SECONDS", "600")
	t.Setenv("NOTIFY_RETRY_HORIZON_HOURS", "48")
	t.Setenv("POSTGRES_RUN_MIGRATIONS", "false")
	t.Setenv("JIRA_CF_TELEGRAM_USERNAME", "cf[20000]")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.App.Addr())
	assert.Equal(t, 30*time.Second, cfg.Reconciler.PollInterval())
	assert.Equal(t, 10*time.Minute, cfg.Reconciler.LookbackWindow())
	assert.Equal(t, 48*time.Hour, cfg.Reconciler.RetryHorizon())
	assert.False(t, cfg.Postgres.RunMigrations)
	assert.Equal(t, "cf[20000]", cfg.Jira.UsernameField)
}

func TestLoadIgnoresMalformedInts(t *testing.T) {
	t.Setenv("NOTIFY_POLL_INTERVAL_SECONDS", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.Reconciler.PollInterval())
}

func TestLoadRejectsBadRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")

	_, err := Load()
	assert.Error(t, err)
}
