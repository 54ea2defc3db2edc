package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TARGETEER_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8010, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, "https://iss.moex.com", cfg.MOEXBaseURL)
	assert.Equal(t, time.Minute, cfg.PriceTTL)
	assert.Equal(t, 5*time.Second, cfg.TotalWeightTTL)
	assert.Equal(t, 5*time.Minute, cfg.BoughtQuantityTTL)
	assert.Equal(t, "@every 5m", cfg.PreloadSchedule)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TARGETEER_DATA_DIR", t.TempDir())
	t.Setenv("TARGETEER_PORT", "9000")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("PRICE_TTL", "45s")
	t.Setenv("PRELOAD_SCHEDULE", "@every 1m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, 45*time.Second, cfg.PriceTTL)
	assert.Equal(t, "@every 1m", cfg.PreloadSchedule)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("TARGETEER_DATA_DIR", t.TempDir())
	t.Setenv("TARGETEER_PORT", "not a port")
	t.Setenv("PRICE_TTL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8010, cfg.Port)
	assert.Equal(t, time.Minute, cfg.PriceTTL)
}

func TestValidate(t *testing.T) {
	cfg := &Config{Port: 8010, FeedTimeout: time.Second}
	assert.NoError(t, cfg.Validate())

	cfg.Port = 0
	assert.Error(t, cfg.Validate())

	cfg.Port = 8010
	cfg.FeedTimeout = 0
	assert.Error(t, cfg.Validate())
}
