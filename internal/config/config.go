// Package config loads bot configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration values for the bot
type Config struct {
	// Discord
	DiscordToken         string `validate:"required"`
	DiscordApplicationID string `validate:"required"`

	// Twitch API
	TwitchClientID     string `validate:"required"`
	TwitchClientSecret string `validate:"required"`

	// Database
	DatabasePath string `validate:"required"`

	// Twitch rate budget
	TwitchRequestsPerMinute int `validate:"min=1,max=800"`

	// Batch scanning
	ScanBatchSize  int           `validate:"min=1,max=1000"`
	ScanBatchDelay time.Duration `validate:"min=0"`

	// Identity cache TTLs
	CacheGeneralTTL time.Duration `validate:"min=1h"`
	CacheStatsTTL   time.Duration `validate:"min=1h"`

	// Logging
	LogLevel string `validate:"oneof=debug info warn error"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken:         os.Getenv("DISCORD_BOT_TOKEN"),
		DiscordApplicationID: os.Getenv("DISCORD_APPLICATION_ID"),
		TwitchClientID:       os.Getenv("TWITCH_CLIENT_ID"),
		TwitchClientSecret:   os.Getenv("TWITCH_CLIENT_SECRET"),
		DatabasePath:         getEnvOrDefault("DATABASE_PATH", "./data/bot.db"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.TwitchRequestsPerMinute, err = getEnvInt("TWITCH_REQUESTS_PER_MINUTE", 600); err != nil {
		return nil, err
	}
	if cfg.ScanBatchSize, err = getEnvInt("SCAN_BATCH_SIZE", 50); err != nil {
		return nil, err
	}

	batchDelaySeconds, err := getEnvInt("SCAN_BATCH_DELAY_SECONDS", 5)
	if err != nil {
		return nil, err
	}
	cfg.ScanBatchDelay = time.Duration(batchDelaySeconds) * time.Second

	cacheGeneralHours, err := getEnvInt("CACHE_GENERAL_TTL_HOURS", 168)
	if err != nil {
		return nil, err
	}
	cfg.CacheGeneralTTL = time.Duration(cacheGeneralHours) * time.Hour

	cacheStatsHours, err := getEnvInt("CACHE_STATS_TTL_HOURS", 24)
	if err != nil {
		return nil, err
	}
	cfg.CacheStatsTTL = time.Duration(cacheStatsHours) * time.Hour

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
