package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DISCORD_BOT_TOKEN", "token")
	t.Setenv("DISCORD_APPLICATION_ID", "12345")
	t.Setenv("TWITCH_CLIENT_ID", "client-id")
	t.Setenv("TWITCH_CLIENT_SECRET", "client-secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./data/bot.db", cfg.DatabasePath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 600, cfg.TwitchRequestsPerMinute)
	assert.Equal(t, 50, cfg.ScanBatchSize)
	assert.Equal(t, 5*time.Second, cfg.ScanBatchDelay)
	assert.Equal(t, 168*time.Hour, cfg.CacheGeneralTTL)
	assert.Equal(t, 24*time.Hour, cfg.CacheStatsTTL)
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_PATH", "/tmp/test.db")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TWITCH_REQUESTS_PER_MINUTE", "100")
	t.Setenv("SCAN_BATCH_SIZE", "25")
	t.Setenv("SCAN_BATCH_DELAY_SECONDS", "10")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test.db", cfg.DatabasePath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 100, cfg.TwitchRequestsPerMinute)
	assert.Equal(t, 25, cfg.ScanBatchSize)
	assert.Equal(t, 10*time.Second, cfg.ScanBatchDelay)
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DISCORD_BOT_TOKEN", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidInteger(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SCAN_BATCH_SIZE", "not-a-number")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsOutOfRangeValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TWITCH_REQUESTS_PER_MINUTE", "5000")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsUnknownLogLevel(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOG_LEVEL", "verbose")

	_, err := Load()
	assert.Error(t, err)
}
