package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ProviderConfig holds upstream market data provider settings. An empty
// APIKey is a supported degraded mode: the client is constructed disabled
// and every call returns nil/empty.
type ProviderConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit caps outbound requests per minute. Zero disables throttling.
	RateLimit int `mapstructure:"rate_limit"`
}

// RedisConfig holds the shared cache/pub-sub backend settings. An empty Addr
// is a supported degraded mode: the tiered cache falls back to in-process
// storage and the redistributor stays disconnected.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig holds the optional tick mirror settings. Mirroring is off when
// Brokers is empty.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Config is the process configuration.
type Config struct {
	LogLevel string `mapstructure:"log_level"`
	// MetricsAddr is the Prometheus exposition listen address. Empty
	// disables the endpoint.
	MetricsAddr string         `mapstructure:"metrics_addr"`
	Symbols     []string       `mapstructure:"symbols"`
	Provider    ProviderConfig `mapstructure:"provider"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Kafka       KafkaConfig    `mapstructure:"kafka"`
}

// Load reads configuration from the environment, with an optional local
// .env file. Missing backends are not errors; components degrade per their
// own contracts.
func Load() (*Config, error) {
	// .env is a local convenience only
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("MARKETPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("symbols", []string{"SPY", "QQQ"})
	v.SetDefault("provider.base_url", "https://api.polygon.io")
	v.SetDefault("provider.timeout", 10*time.Second)
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.rate_limit", 0)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "market.ticks")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
