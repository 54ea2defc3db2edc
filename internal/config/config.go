// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
// Values come from environment variables (optionally via a .env file);
// every knob has a usable default so the server starts with no env at all.
type Config struct {
	DataDir  string // Base directory for the database files (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	MOEXBaseURL string // MOEX ISS API base URL
	FeedTimeout time.Duration

	// Cache time-to-live windows. Value computations expire faster than
	// quantity computations because prices move faster than holdings.
	PriceTTL          time.Duration // per-instrument last price
	PreloadTTL        time.Duration // batch preload completion marker
	BoughtQuantityTTL time.Duration // held quantity per target line
	BoughtValueTTL    time.Duration // held value per target line
	TotalWeightTTL    time.Duration // portfolio corrected-weight sum
	TotalValueTTL     time.Duration // portfolio bought-value sum
	InstrumentMaxAge  time.Duration // catalog record freshness window

	// Cron schedules for the background jobs. Empty disables the job.
	PreloadSchedule string
	CleanupSchedule string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("TARGETEER_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("TARGETEER_PORT", 8010),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		MOEXBaseURL: getEnv("MOEX_BASE_URL", "https://iss.moex.com"),
		FeedTimeout: getEnvAsDuration("FEED_TIMEOUT", 10*time.Second),

		PriceTTL:          getEnvAsDuration("PRICE_TTL", time.Minute),
		PreloadTTL:        getEnvAsDuration("PRELOAD_TTL", 30*time.Second),
		BoughtQuantityTTL: getEnvAsDuration("BOUGHT_QUANTITY_TTL", 5*time.Minute),
		BoughtValueTTL:    getEnvAsDuration("BOUGHT_VALUE_TTL", time.Minute),
		TotalWeightTTL:    getEnvAsDuration("TOTAL_WEIGHT_TTL", 5*time.Second),
		TotalValueTTL:     getEnvAsDuration("TOTAL_VALUE_TTL", 10*time.Second),
		InstrumentMaxAge:  getEnvAsDuration("INSTRUMENT_MAX_AGE", 24*time.Hour),

		PreloadSchedule: getEnv("PRELOAD_SCHEDULE", "@every 5m"),
		CleanupSchedule: getEnv("CLEANUP_SCHEDULE", "@every 1h"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.FeedTimeout <= 0 {
		return fmt.Errorf("feed timeout must be positive, got %s", c.FeedTimeout)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
