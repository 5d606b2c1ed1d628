package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where netsight.yaml is looked up when no --config flag is
// given.
const DefaultPath = "netsight.yaml"

// fileConfig mirrors the netsight.yaml structure. Durations are strings
// ("30s", "5m") parsed with time.ParseDuration during resolution.
type fileConfig struct {
	Server    *serverYAML    `yaml:"server"`
	Backend   *backendYAML   `yaml:"backend"`
	Stream    *streamYAML    `yaml:"stream"`
	Cache     *cacheYAML     `yaml:"cache"`
	Analytics *analyticsYAML `yaml:"analytics"`
	Log       *logYAML       `yaml:"log"`
}

type serverYAML struct {
	ListenAddr       string   `yaml:"listen_addr,omitempty"`
	APIKeyEnv        string   `yaml:"api_key_env,omitempty"`
	AllowedWSOrigins []string `yaml:"allowed_ws_origins,omitempty"`
}

type backendYAML struct {
	BaseURL       string `yaml:"base_url,omitempty"`
	APIKeyEnv     string `yaml:"api_key_env,omitempty"`
	Timeout       string `yaml:"timeout,omitempty"`
	RetryAttempts int    `yaml:"retry_attempts,omitempty"`
	RetryBase     string `yaml:"retry_base,omitempty"`
}

type streamYAML struct {
	BaseDelay            string `yaml:"base_delay,omitempty"`
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts,omitempty"`
	MaxDelay             string `yaml:"max_delay,omitempty"`
}

type cacheYAML struct {
	QueryTTL      string `yaml:"query_ttl,omitempty"`
	PerfTTL       string `yaml:"perf_ttl,omitempty"`
	SweepInterval string `yaml:"sweep_interval,omitempty"`
}

type analyticsYAML struct {
	TTL           string `yaml:"ttl,omitempty"`
	DetailTimeout string `yaml:"detail_timeout,omitempty"`
	SlowSpanLimit int    `yaml:"slow_span_limit,omitempty"`
	SlowSpanMinMs int    `yaml:"slow_span_min_ms,omitempty"`
}

type logYAML struct {
	Level string `yaml:"level,omitempty"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Read the YAML file (an empty path falls back to ./netsight.yaml and
//     tolerates the file being absent; an explicit path must exist)
//  2. Expand environment variables
//  3. Parse YAML and resolve duration strings
//  4. Overlay file values onto built-in defaults
//  5. Validate the result
func Initialize(ctx context.Context, path string) (*Config, error) {
	cfg, err := load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	slog.Info("Configuration initialized",
		"listen_addr", cfg.Server.ListenAddr,
		"backend", cfg.Backend.BaseURL,
		"log_level", cfg.Log.Level)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, path string) (*Config, error) {
	required := path != ""
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if required {
				return nil, NewLoadError(path, ErrConfigNotFound)
			}
			slog.Info("No configuration file, using defaults", "path", path)
			return Default(), nil
		}
		return nil, NewLoadError(path, err)
	}

	// Expand environment variables using {{.VAR}} template syntax
	data = ExpandEnv(data)

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	// Overlay the resolved file values onto defaults: non-zero file fields
	// override, everything else keeps its built-in value.
	cfg := Default()
	if err := mergo.Merge(cfg, resolve(&file), mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge configuration: %w", err)
	}

	return cfg, nil
}

// resolve converts the YAML shape into a Config overlay. Fields the file does
// not set stay zero so the merge keeps their defaults.
func resolve(f *fileConfig) Config {
	var cfg Config

	if f.Server != nil {
		cfg.Server.ListenAddr = f.Server.ListenAddr
		cfg.Server.APIKeyEnv = f.Server.APIKeyEnv
		cfg.Server.AllowedWSOrigins = f.Server.AllowedWSOrigins
	}
	if f.Backend != nil {
		cfg.Backend.BaseURL = f.Backend.BaseURL
		cfg.Backend.APIKeyEnv = f.Backend.APIKeyEnv
		cfg.Backend.Timeout = parseDuration("backend.timeout", f.Backend.Timeout)
		cfg.Backend.RetryAttempts = f.Backend.RetryAttempts
		cfg.Backend.RetryBase = parseDuration("backend.retry_base", f.Backend.RetryBase)
	}
	if f.Stream != nil {
		cfg.Stream.BaseDelay = parseDuration("stream.base_delay", f.Stream.BaseDelay)
		cfg.Stream.MaxReconnectAttempts = f.Stream.MaxReconnectAttempts
		cfg.Stream.MaxDelay = parseDuration("stream.max_delay", f.Stream.MaxDelay)
	}
	if f.Cache != nil {
		cfg.Cache.QueryTTL = parseDuration("cache.query_ttl", f.Cache.QueryTTL)
		cfg.Cache.PerfTTL = parseDuration("cache.perf_ttl", f.Cache.PerfTTL)
		cfg.Cache.SweepInterval = parseDuration("cache.sweep_interval", f.Cache.SweepInterval)
	}
	if f.Analytics != nil {
		cfg.Analytics.TTL = parseDuration("analytics.ttl", f.Analytics.TTL)
		cfg.Analytics.DetailTimeout = parseDuration("analytics.detail_timeout", f.Analytics.DetailTimeout)
		cfg.Analytics.SlowSpanLimit = f.Analytics.SlowSpanLimit
		cfg.Analytics.SlowSpanMinMs = f.Analytics.SlowSpanMinMs
	}
	if f.Log != nil {
		cfg.Log.Level = f.Log.Level
	}

	return cfg
}

// parseDuration parses a duration string from YAML. An empty value yields
// zero so the overlay keeps the default; an invalid one does the same but
// logs a warning.
func parseDuration(field, value string) time.Duration {
	if value == "" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("Invalid duration in configuration, using default",
			"field", field, "value", value, "error", err)
		return 0
	}
	return d
}
