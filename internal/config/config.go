// Package config loads dashboard configuration from defaults, an optional
// YAML file and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvConfigPath      = "DASHBOARD_CONFIG"
	EnvAddr            = "DASHBOARD_ADDR"
	EnvBaseURL         = "COINGECKO_BASE_URL"
	EnvAPIKey          = "COINGECKO_API_KEY"
	EnvAPIKeyHeader    = "COINGECKO_API_KEY_HEADER"
	EnvCacheTTL        = "CACHE_TTL"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogDevelopment  = "LOG_DEVELOPMENT"
	DefaultConfigPath  = "config.yaml"
	DefaultEnvFilePath = ".env"
)

// Config holds all application settings.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	CoinGecko CoinGeckoConfig `yaml:"coingecko"`
	Cache     CacheConfig     `yaml:"cache"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CORSOrigins  []string      `yaml:"cors_origins"`
}

// CoinGeckoConfig configures the market data client.
type CoinGeckoConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	APIKeyHeader string        `yaml:"api_key_header"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// CacheConfig configures response caching.
type CacheConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DashboardConfig configures the selectable options of the page.
type DashboardConfig struct {
	Coins        []string `yaml:"coins"`
	DefaultCoins []string `yaml:"default_coins"`
	Currencies   []string `yaml:"currencies"`
	LookbackDays int      `yaml:"lookback_days"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8501",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		CoinGecko: CoinGeckoConfig{
			BaseURL:      "https://api.coingecko.com/api/v3",
			APIKeyHeader: "x-cg-demo-api-key",
			Timeout:      10 * time.Second,
			MaxRetries:   1,
			RetryDelay:   1 * time.Second,
			MaxDelay:     10 * time.Second,
		},
		Cache: CacheConfig{
			TTL:             5 * time.Minute,
			CleanupInterval: 10 * time.Minute,
		},
		Dashboard: DashboardConfig{
			Coins:        []string{"bitcoin", "ethereum", "ripple", "litecoin", "cardano", "solana", "dogecoin"},
			DefaultCoins: []string{"bitcoin", "ethereum"},
			Currencies:   []string{"usd", "inr", "eur"},
			LookbackDays: 30,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration. A missing file at path is not an error.
// An empty path falls back to $DASHBOARD_CONFIG, then config.yaml.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	explicit := path != ""
	if path == "" {
		path = DefaultConfigPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// defaults only
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides settings from environment variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.CoinGecko.BaseURL = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.CoinGecko.APIKey = v
	}
	if v := os.Getenv(EnvAPIKeyHeader); v != "" {
		c.CoinGecko.APIKeyHeader = v
	}
	if v := os.Getenv(EnvCacheTTL); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvCacheTTL, err)
		}
		c.Cache.TTL = d
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvLogDevelopment); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvLogDevelopment, err)
		}
		c.Log.Development = b
	}
	return nil
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("config: server.addr is required")
	}
	if strings.TrimSpace(c.CoinGecko.BaseURL) == "" {
		return errors.New("config: coingecko.base_url is required")
	}
	if c.CoinGecko.MaxRetries < 0 {
		return fmt.Errorf("config: coingecko.max_retries must be >= 0, got %d", c.CoinGecko.MaxRetries)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("config: cache.ttl must be positive, got %s", c.Cache.TTL)
	}
	if len(c.Dashboard.Coins) == 0 {
		return errors.New("config: dashboard.coins must not be empty")
	}
	if len(c.Dashboard.Currencies) == 0 {
		return errors.New("config: dashboard.currencies must not be empty")
	}
	if c.Dashboard.LookbackDays <= 0 {
		return fmt.Errorf("config: dashboard.lookback_days must be positive, got %d", c.Dashboard.LookbackDays)
	}
	for _, id := range c.Dashboard.DefaultCoins {
		if !contains(c.Dashboard.Coins, id) {
			return fmt.Errorf("config: default coin %q is not in dashboard.coins", id)
		}
	}
	return nil
}

// LoadEnvFile loads KEY=VALUE lines from path into the environment.
// Existing variables are not overridden; a missing file is ignored.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
