package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []string{"SPY", "QQQ"}, cfg.Symbols)
	assert.Equal(t, "https://api.polygon.io", cfg.Provider.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Provider.Timeout)

	// missing backends are supported degraded modes, not errors
	assert.Empty(t, cfg.MetricsAddr)
	assert.Empty(t, cfg.Provider.APIKey)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MARKETPULSE_LOG_LEVEL", "debug")
	t.Setenv("MARKETPULSE_REDIS_ADDR", "localhost:6379")
	t.Setenv("MARKETPULSE_PROVIDER_API_KEY", "k123")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "k123", cfg.Provider.APIKey)
}
