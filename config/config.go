package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	API    APIConfig     `mapstructure:"api"`
	Stream StreamConfig  `mapstructure:"stream"`
	Feed   FeedConfig    `mapstructure:"feed"`
	Redis  RedisConfig   `mapstructure:"redis"`
	Log    LogConfig     `mapstructure:"log"`
	Assets []AssetConfig `mapstructure:"assets"`
}

// APIConfig configures the HTTP snapshot server.
type APIConfig struct {
	Port int    `mapstructure:"port"`
	Path string `mapstructure:"path"` // snapshot endpoint path
}

// StreamConfig configures the WebSocket broadcast server.
type StreamConfig struct {
	Port         int           `mapstructure:"port"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // per-subscriber send deadline
}

// FeedConfig configures tick generation and historical backfill.
type FeedConfig struct {
	Interval     time.Duration `mapstructure:"interval"`       // delay between broadcast cycles
	HistorySize  int           `mapstructure:"history_size"`   // historical ticks per asset in a snapshot
	OnStoreError string        `mapstructure:"on_store_error"` // "skip" or "abort"
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// AssetConfig is one tracked symbol and its first-run baseline price.
type AssetConfig struct {
	ID           string  `mapstructure:"id"`
	InitialPrice float64 `mapstructure:"initial_price"`
}

// Load loads application configuration using Viper.
// It reads from config.yaml when present and overrides with environment
// variables (dot notation maps to underscores, e.g. STREAM_PORT).
// Every option has a default, so a missing config file is not an error.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("api.port", 8000)
	v.SetDefault("api.path", "/api/initial_data")
	v.SetDefault("stream.port", 8001)
	v.SetDefault("stream.write_timeout", 5*time.Second)
	v.SetDefault("feed.interval", 500*time.Millisecond)
	v.SetDefault("feed.history_size", 50)
	v.SetDefault("feed.on_store_error", "skip")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.environment", "dev")

	// Support environment variables with dot notation (e.g., REDIS_HOST)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.Assets) == 0 {
		cfg.Assets = DefaultAssets()
	}

	return &cfg, nil
}

// DefaultAssets is the tracked set used when the config defines none.
// The order here is the enumeration order used everywhere else.
func DefaultAssets() []AssetConfig {
	return []AssetConfig{
		{ID: "BTC", InitialPrice: 60000.00},
		{ID: "ETH", InitialPrice: 3500.00},
		{ID: "SOL", InitialPrice: 150.00},
		{ID: "DOGE", InitialPrice: 0.15},
	}
}
