// Package e2e boots a complete gateway against a scripted backend and
// exercises it over real HTTP and WebSocket connections.
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netsight-io/netsight/pkg/analytics"
	"github.com/netsight-io/netsight/pkg/api"
	"github.com/netsight-io/netsight/pkg/cache"
	"github.com/netsight-io/netsight/pkg/client"
	"github.com/netsight-io/netsight/pkg/config"
	"github.com/netsight-io/netsight/pkg/models"
	"github.com/netsight-io/netsight/pkg/perf"
	"github.com/netsight-io/netsight/pkg/stream"
)

// TestApp is a running gateway wired to a FakeBackend.
type TestApp struct {
	Config  *config.Config
	Backend *FakeBackend
	Server  *api.Server

	BaseURL string // e.g. "http://127.0.0.1:54321"
	WSURL   string // e.g. "ws://127.0.0.1:54321/api/stream"

	t *testing.T
}

// TestAppOption mutates the gateway config before the app boots.
type TestAppOption func(cfg *config.Config)

// WithAPIKeyEnv points the gateway at the env var holding its API key.
func WithAPIKeyEnv(name string) TestAppOption {
	return func(cfg *config.Config) { cfg.Server.APIKeyEnv = name }
}

// WithStream tunes the reconnect behavior of bridged subscribers.
func WithStream(baseDelay time.Duration, maxAttempts int) TestAppOption {
	return func(cfg *config.Config) {
		cfg.Stream.BaseDelay = baseDelay
		cfg.Stream.MaxReconnectAttempts = maxAttempts
	}
}

// StartTestApp boots the full gateway composition on a random port.
// Shutdown is registered via t.Cleanup automatically.
func StartTestApp(t *testing.T, backend *FakeBackend, opts ...TestAppOption) *TestApp {
	t.Helper()
	ctx := context.Background()

	cfg := config.Default()
	cfg.Backend.BaseURL = backend.URL()
	cfg.Backend.RetryAttempts = 1
	cfg.Backend.RetryBase = time.Millisecond
	cfg.Server.APIKeyEnv = ""
	for _, opt := range opts {
		opt(cfg)
	}

	backendClient := client.New(client.Config{
		BaseURL:       cfg.Backend.BaseURL,
		Timeout:       cfg.Backend.Timeout,
		RetryAttempts: uint64(cfg.Backend.RetryAttempts),
		RetryBase:     cfg.Backend.RetryBase,
	})

	queryStore := cache.New[*models.QueryResponse]("query", cfg.Cache.SweepInterval, nil)
	queryStore.Start(ctx)
	summaryStore := cache.New[analytics.Summary]("summary", cfg.Cache.SweepInterval, nil)
	summaryStore.Start(ctx)

	analyticsSvc := analytics.New(backendClient, summaryStore, analytics.Config{
		TTL:           cfg.Analytics.TTL,
		DetailTimeout: cfg.Analytics.DetailTimeout,
		SlowSpanLimit: cfg.Analytics.SlowSpanLimit,
		SlowSpanMinMs: cfg.Analytics.SlowSpanMinMs,
	}, nil)

	perfCfg := perf.Config{TTL: cfg.Cache.PerfTTL, SweepInterval: cfg.Cache.SweepInterval}
	rperfSvc := perf.NewRperf(backendClient, perfCfg, nil)
	rperfSvc.Start(ctx)
	sysmonSvc := perf.NewSysmon(backendClient, perfCfg, nil)
	sysmonSvc.Start(ctx)

	server := api.NewServer(cfg, backendClient, queryStore, analyticsSvc, rperfSvc, sysmonSvc)
	server.SetStreamMetrics(stream.NewMetrics(nil))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = server.StartWithListener(ln)
	}()

	addr := ln.Addr().String()
	app := &TestApp{
		Config:  cfg,
		Backend: backend,
		Server:  server,
		BaseURL: fmt.Sprintf("http://%s", addr),
		WSURL:   fmt.Sprintf("ws://%s/api/stream", addr),
		t:       t,
	}

	// Cleanup in reverse-creation order.
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		sysmonSvc.Stop()
		rperfSvc.Stop()
		summaryStore.Stop()
		queryStore.Stop()
	})

	return app
}

// Get performs a GET with an optional API key and decodes the JSON body into
// out when the status is 2xx.
func (app *TestApp) Get(path, token string, out any) *http.Response {
	app.t.Helper()
	req, err := http.NewRequest(http.MethodGet, app.BaseURL+path, nil)
	require.NoError(app.t, err)
	if token != "" {
		req.Header.Set("X-API-Key", token)
	}
	return app.do(req, out)
}

// PostQuery performs a POST /api/query with the given JSON body.
func (app *TestApp) PostQuery(body, token string, out any) *http.Response {
	app.t.Helper()
	req, err := http.NewRequest(http.MethodPost, app.BaseURL+"/api/query", strings.NewReader(body))
	require.NoError(app.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-API-Key", token)
	}
	return app.do(req, out)
}

func (app *TestApp) do(req *http.Request, out any) *http.Response {
	app.t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(app.t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(app.t, err)

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		require.NoError(app.t, json.Unmarshal(body, out), "body: %s", body)
	}
	return resp
}
