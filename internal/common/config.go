// Package common provides shared utilities for Varlık
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for Varlık
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Clients     ClientsConfig `toml:"clients"`
	Sync        SyncConfig    `toml:"sync"`
	Auth        AuthConfig    `toml:"auth"`
	Logging     LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds the two storage areas: the on-device store and the
// remote sync backend.
type StorageConfig struct {
	Local  LocalStorageConfig  `toml:"local"`
	Remote RemoteStorageConfig `toml:"remote"`
}

// LocalStorageConfig holds the BadgerHold on-device store configuration.
type LocalStorageConfig struct {
	Path string `toml:"path"`
}

// RemoteStorageConfig holds the SurrealDB sync backend configuration.
type RemoteStorageConfig struct {
	Address   string `toml:"address"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
}

// ClientsConfig holds market data client configurations
type ClientsConfig struct {
	Tefas   TefasConfig   `toml:"tefas"`
	Markets MarketsConfig `toml:"markets"`
}

// TefasConfig holds the TEFAS fund price client configuration
type TefasConfig struct {
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *TefasConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// MarketsConfig holds the market quote client configuration
type MarketsConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *MarketsConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// SyncConfig tunes the synchronization coordinator and the price scheduler.
type SyncConfig struct {
	Debounce        string `toml:"debounce"`         // delay before a remote push, default "1500ms"
	RetryDelays     string `toml:"retry_delays"`     // comma-separated backoff delays, default "3s,6s"
	RefreshInterval string `toml:"refresh_interval"` // price refresh interval, default "60s"
}

// GetDebounce parses and returns the push debounce duration.
func (c *SyncConfig) GetDebounce() time.Duration {
	d, err := time.ParseDuration(c.Debounce)
	if err != nil {
		return 1500 * time.Millisecond
	}
	return d
}

// GetRetryDelays parses and returns the push retry backoff schedule.
func (c *SyncConfig) GetRetryDelays() []time.Duration {
	parts := strings.Split(c.RetryDelays, ",")
	delays := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		d, err := time.ParseDuration(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		delays = append(delays, d)
	}
	if len(delays) == 0 {
		return []time.Duration{3 * time.Second, 6 * time.Second}
	}
	return delays
}

// GetRefreshInterval parses and returns the price refresh interval.
func (c *SyncConfig) GetRefreshInterval() time.Duration {
	d, err := time.ParseDuration(c.RefreshInterval)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	JWTSecret   string `toml:"jwt_secret"`
	TokenExpiry string `toml:"token_expiry"` // duration string, default "24h"
}

// GetTokenExpiry parses and returns the token expiry duration.
func (c *AuthConfig) GetTokenExpiry() time.Duration {
	d, err := time.ParseDuration(c.TokenExpiry)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `toml:"level"`
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
			Local: LocalStorageConfig{Path: "data/local"},
			Remote: RemoteStorageConfig{
				Address:   "ws://localhost:8000",
				Username:  "root",
				Password:  "root",
				Namespace: "varlik",
				Database:  "varlik",
			},
		},
		Clients: ClientsConfig{
			Tefas: TefasConfig{
				BaseURL:   "https://www.tefas.gov.tr",
				RateLimit: 5,
				Timeout:   "30s",
			},
			Markets: MarketsConfig{
				BaseURL:   "https://api.varlik.app/markets",
				RateLimit: 10,
				Timeout:   "30s",
			},
		},
		Sync: SyncConfig{
			Debounce:        "1500ms",
			RetryDelays:     "3s,6s",
			RefreshInterval: "60s",
		},
		Auth: AuthConfig{
			JWTSecret:   "dev-jwt-secret-change-in-production",
			TokenExpiry: "24h",
		},
		Logging: LoggingConfig{
			Level: "info",
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
	if env := os.Getenv("VARLIK_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("VARLIK_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("VARLIK_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("VARLIK_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if path := os.Getenv("VARLIK_DATA_PATH"); path != "" {
		config.Storage.Local.Path = filepath.Join(path, "local")
	}

	if addr := os.Getenv("VARLIK_REMOTE_ADDRESS"); addr != "" {
		config.Storage.Remote.Address = addr
	}
	if user := os.Getenv("VARLIK_REMOTE_USERNAME"); user != "" {
		config.Storage.Remote.Username = user
	}
	if pass := os.Getenv("VARLIK_REMOTE_PASSWORD"); pass != "" {
		config.Storage.Remote.Password = pass
	}

	if v := os.Getenv("VARLIK_AUTH_JWT_SECRET"); v != "" {
		config.Auth.JWTSecret = v
	}
	if v := os.Getenv("VARLIK_AUTH_TOKEN_EXPIRY"); v != "" {
		config.Auth.TokenExpiry = v
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
