package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "netsight.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestInitializeDefaults(t *testing.T) {
	// Empty path: the default location is absent here, so built-in defaults
	// apply.
	cfg, err := Initialize(context.Background(), "")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":8090", cfg.Server.ListenAddr)
	assert.Equal(t, "http://localhost:8080", cfg.Backend.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 1*time.Second, cfg.Stream.BaseDelay)
	assert.Equal(t, 5, cfg.Stream.MaxReconnectAttempts)
	assert.Equal(t, 30*time.Second, cfg.Cache.QueryTTL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestInitializeOverlay(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: ":9999"
backend:
  base_url: "http://backend.internal:8080"
  timeout: 5s
stream:
  max_reconnect_attempts: 8
cache:
  query_ttl: 90s
log:
  level: debug
`)

	cfg, err := Initialize(context.Background(), path)
	require.NoError(t, err)

	// File values override.
	assert.Equal(t, ":9999", cfg.Server.ListenAddr)
	assert.Equal(t, "http://backend.internal:8080", cfg.Backend.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 8, cfg.Stream.MaxReconnectAttempts)
	assert.Equal(t, 90*time.Second, cfg.Cache.QueryTTL)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Unset fields keep their defaults.
	assert.Equal(t, 3, cfg.Backend.RetryAttempts)
	assert.Equal(t, 1*time.Second, cfg.Stream.BaseDelay)
	assert.Equal(t, 1*time.Minute, cfg.Cache.PerfTTL)
	assert.Equal(t, 10, cfg.Analytics.SlowSpanLimit)
}

func TestInitializeExplicitPathMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	_, err := Initialize(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, path, loadErr.File)
}

func TestInitializeInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")

	_, err := Initialize(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestInitializeEnvExpansion(t *testing.T) {
	t.Setenv("NS_TEST_BACKEND_URL", "http://backend.test:9000")

	path := writeConfig(t, `
backend:
  base_url: "{{.NS_TEST_BACKEND_URL}}"
`)

	cfg, err := Initialize(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "http://backend.test:9000", cfg.Backend.BaseURL)
}

func TestInitializeInvalidDurationKeepsDefault(t *testing.T) {
	path := writeConfig(t, `
backend:
  timeout: banana
`)

	cfg, err := Initialize(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout)
}

func TestInitializeValidationFailure(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		component string
	}{
		{
			name: "bad backend url",
			yaml: `
backend:
  base_url: "not a url"
`,
			component: "backend",
		},
		{
			name: "negative ttl",
			yaml: `
cache:
  query_ttl: -5s
`,
			component: "cache",
		},
		{
			name: "unknown log level",
			yaml: `
log:
  level: verbose
`,
			component: "log",
		},
		{
			name: "negative reconnect attempts",
			yaml: `
stream:
  max_reconnect_attempts: -1
`,
			component: "stream",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)

			_, err := Initialize(context.Background(), path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "configuration validation failed")

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.component, validationErr.Component)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LogConfig{Level: "debug"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogConfig{Level: "info"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, LogConfig{Level: "warn"}.SlogLevel())
	assert.Equal(t, slog.LevelError, LogConfig{Level: "error"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogConfig{Level: ""}.SlogLevel())
}
