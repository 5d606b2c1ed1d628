// Package config loads and validates the netsight gateway configuration.
// Settings come from a single netsight.yaml overlaid onto built-in defaults;
// secrets stay out of the file and are named by environment variable instead.
package config

import (
	"log/slog"
	"time"
)

// Config is the fully resolved gateway configuration.
type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	Stream    StreamConfig
	Cache     CacheConfig
	Analytics AnalyticsConfig
	Log       LogConfig
}

// ServerConfig controls the gateway's own HTTP listener.
type ServerConfig struct {
	ListenAddr string

	// APIKeyEnv names the environment variable holding the key callers must
	// present; empty disables the guard.
	APIKeyEnv string

	// AllowedWSOrigins are extra origin patterns accepted on the stream
	// bridge, on top of the listener's own host.
	AllowedWSOrigins []string
}

// BackendConfig points at the query backend.
type BackendConfig struct {
	BaseURL       string
	APIKeyEnv     string
	Timeout       time.Duration
	RetryAttempts int
	RetryBase     time.Duration
}

// StreamConfig tunes the reconnecting stream subscriber.
type StreamConfig struct {
	BaseDelay            time.Duration
	MaxReconnectAttempts int
	MaxDelay             time.Duration
}

// CacheConfig tunes the query and performance caches.
type CacheConfig struct {
	QueryTTL      time.Duration
	PerfTTL       time.Duration
	SweepInterval time.Duration
}

// AnalyticsConfig tunes the summary service.
type AnalyticsConfig struct {
	TTL           time.Duration
	DetailTimeout time.Duration
	SlowSpanLimit int
	SlowSpanMinMs int
}

// LogConfig selects the slog level for the process.
type LogConfig struct {
	Level string
}

// SlogLevel maps the configured level onto slog. Unknown values fall back to
// Info; validation rejects them before this is consulted.
func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default returns the built-in configuration. Every field carries a usable
// value so a missing netsight.yaml still yields a runnable gateway.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8090",
			APIKeyEnv:  "NETSIGHT_API_KEY",
		},
		Backend: BackendConfig{
			BaseURL:       "http://localhost:8080",
			APIKeyEnv:     "BACKEND_API_KEY",
			Timeout:       30 * time.Second,
			RetryAttempts: 3,
			RetryBase:     250 * time.Millisecond,
		},
		Stream: StreamConfig{
			BaseDelay:            1 * time.Second,
			MaxReconnectAttempts: 5,
			MaxDelay:             30 * time.Second,
		},
		Cache: CacheConfig{
			QueryTTL:      30 * time.Second,
			PerfTTL:       1 * time.Minute,
			SweepInterval: 1 * time.Minute,
		},
		Analytics: AnalyticsConfig{
			TTL:           30 * time.Second,
			DetailTimeout: 10 * time.Second,
			SlowSpanLimit: 10,
			SlowSpanMinMs: 1000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
