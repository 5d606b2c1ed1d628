package config

import (
	"fmt"
	"net/url"
	"time"
)

// validate rejects configurations the gateway cannot run with. It reports the
// first problem found.
func validate(cfg *Config) error {
	if cfg.Server.ListenAddr == "" {
		return NewValidationError("server", "listen_addr", ErrMissingRequiredField)
	}

	if cfg.Backend.BaseURL == "" {
		return NewValidationError("backend", "base_url", ErrMissingRequiredField)
	}
	u, err := url.Parse(cfg.Backend.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return NewValidationError("backend", "base_url",
			fmt.Errorf("%w: %q is not an http(s) URL", ErrInvalidValue, cfg.Backend.BaseURL))
	}

	durations := []struct {
		component string
		field     string
		value     time.Duration
	}{
		{"backend", "timeout", cfg.Backend.Timeout},
		{"backend", "retry_base", cfg.Backend.RetryBase},
		{"stream", "base_delay", cfg.Stream.BaseDelay},
		{"stream", "max_delay", cfg.Stream.MaxDelay},
		{"cache", "query_ttl", cfg.Cache.QueryTTL},
		{"cache", "perf_ttl", cfg.Cache.PerfTTL},
		{"cache", "sweep_interval", cfg.Cache.SweepInterval},
		{"analytics", "ttl", cfg.Analytics.TTL},
		{"analytics", "detail_timeout", cfg.Analytics.DetailTimeout},
	}
	for _, d := range durations {
		if d.value < 0 {
			return NewValidationError(d.component, d.field,
				fmt.Errorf("%w: must not be negative", ErrInvalidValue))
		}
	}

	if cfg.Backend.RetryAttempts < 0 {
		return NewValidationError("backend", "retry_attempts",
			fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	if cfg.Stream.MaxReconnectAttempts < 0 {
		return NewValidationError("stream", "max_reconnect_attempts",
			fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	if cfg.Analytics.SlowSpanLimit < 0 {
		return NewValidationError("analytics", "slow_span_limit",
			fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return NewValidationError("log", "level",
			fmt.Errorf("%w: %q (expected debug, info, warn, or error)", ErrInvalidValue, cfg.Log.Level))
	}

	return nil
}
