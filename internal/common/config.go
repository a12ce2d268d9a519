// Package common provides shared utilities for Tickwatch
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for Tickwatch
type Config struct {
	Environment string         `toml:"environment"`
	Server      ServerConfig   `toml:"server"`
	Storage     StorageConfig  `toml:"storage"`
	Cache       CacheConfig    `toml:"cache"`
	Provider    ProviderConfig `toml:"provider"`
	Alerts      AlertsConfig   `toml:"alerts"`
	Logging     LoggingConfig  `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds BadgerHold storage configuration
type StorageConfig struct {
	Path string `toml:"path"`
}

// CacheConfig holds Redis cache configuration. Leave Addr empty to run
// without a cache tier.
type CacheConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	QuoteTTL   string `toml:"quote_ttl"`
	HistoryTTL string `toml:"history_ttl"`
	SignalTTL  string `toml:"signal_ttl"`
}

// GetQuoteTTL parses and returns the quote cache TTL
func (c *CacheConfig) GetQuoteTTL() time.Duration {
	return parseDuration(c.QuoteTTL, 15*time.Second)
}

// GetHistoryTTL parses and returns the daily-bar cache TTL
func (c *CacheConfig) GetHistoryTTL() time.Duration {
	return parseDuration(c.HistoryTTL, 10*time.Minute)
}

// GetSignalTTL parses and returns the indicator snapshot cache TTL
func (c *CacheConfig) GetSignalTTL() time.Duration {
	return parseDuration(c.SignalTTL, 60*time.Second)
}

// ProviderConfig holds market data provider configuration
type ProviderConfig struct {
	QuoteBaseURL   string `toml:"quote_base_url"`
	HistoryBaseURL string `toml:"history_base_url"`
	RateLimit      int    `toml:"rate_limit"`
	Timeout        string `toml:"timeout"`
	Retries        int    `toml:"retries"`
}

// GetTimeout parses and returns the timeout duration
func (c *ProviderConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 10*time.Second)
}

// AlertsConfig holds the background alert scan loop configuration.
// Disabled by default: a background scan consumes the edge transitions a
// polling client would otherwise see on /api/portfolio/alerts. Enable it
// only when alerts are consumed from the server log.
type AlertsConfig struct {
	Enabled      bool   `toml:"enabled"`
	ScanInterval string `toml:"scan_interval"`
}

// GetScanInterval parses and returns the alert scan interval
func (c *AlertsConfig) GetScanInterval() time.Duration {
	return parseDuration(c.ScanInterval, time.Minute)
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Path: "data/tickwatch",
		},
		Cache: CacheConfig{
			QuoteTTL:   "15s",
			HistoryTTL: "10m",
			SignalTTL:  "60s",
		},
		Provider: ProviderConfig{
			QuoteBaseURL:   "https://qt.gtimg.cn",
			HistoryBaseURL: "https://web.ifzq.gtimg.cn",
			RateLimit:      10,
			Timeout:        "10s",
			Retries:        2,
		},
		Alerts: AlertsConfig{
			Enabled:      false,
			ScanInterval: "60s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("TICKWATCH_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("TICKWATCH_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("TICKWATCH_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("TICKWATCH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if path := os.Getenv("TICKWATCH_DATA_PATH"); path != "" {
		config.Storage.Path = path
	}

	if addr := os.Getenv("TICKWATCH_REDIS_ADDR"); addr != "" {
		config.Cache.Addr = addr
	}

	if pw := os.Getenv("TICKWATCH_REDIS_PASSWORD"); pw != "" {
		config.Cache.Password = pw
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
