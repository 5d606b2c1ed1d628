// Package api is the gateway HTTP surface: a cached SRQL query proxy, the
// analytics summary, poller and performance views, and a WebSocket bridge
// that runs a reconnecting subscriber against the backend stream on behalf of
// each browser connection.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/netsight-io/netsight/pkg/analytics"
	"github.com/netsight-io/netsight/pkg/cache"
	"github.com/netsight-io/netsight/pkg/client"
	"github.com/netsight-io/netsight/pkg/config"
	"github.com/netsight-io/netsight/pkg/models"
	"github.com/netsight-io/netsight/pkg/perf"
	"github.com/netsight-io/netsight/pkg/stream"
)

// Server is the gateway HTTP server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	cfg       *config.Config
	apiKey    string
	backend   *client.Client
	queries   *cache.Store[*models.QueryResponse]
	analytics *analytics.Service
	rperf     *perf.RperfService
	sysmon    *perf.SysmonService
	logger    *slog.Logger

	streamURL     string
	streamMetrics *stream.Metrics
}

// NewServer wires the gateway routes over the given services. The caller API
// key is read from the environment variable named by
// cfg.Server.APIKeyEnv; an unset variable leaves /api/* unguarded.
func NewServer(
	cfg *config.Config,
	backend *client.Client,
	queries *cache.Store[*models.QueryResponse],
	analyticsSvc *analytics.Service,
	rperfSvc *perf.RperfService,
	sysmonSvc *perf.SysmonService,
) *Server {
	s := &Server{
		echo:      echo.New(),
		cfg:       cfg,
		backend:   backend,
		queries:   queries,
		analytics: analyticsSvc,
		rperf:     rperfSvc,
		sysmon:    sysmonSvc,
		logger:    slog.With("component", "api"),
		streamURL: streamEndpoint(cfg.Backend.BaseURL),
	}
	if cfg.Server.APIKeyEnv != "" {
		s.apiKey = os.Getenv(cfg.Server.APIKeyEnv)
	}

	s.setupRoutes()
	return s
}

// SetStreamMetrics shares one stream metrics set across all bridge
// subscribers.
func (s *Server) SetStreamMetrics(m *stream.Metrics) {
	s.streamMetrics = m
}

// SetMetricsRegistry exposes reg on GET /metrics.
func (s *Server) SetMetricsRegistry(reg *prometheus.Registry) {
	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	s.echo.GET("/metrics", func(c *echo.Context) error {
		h.ServeHTTP(c.Response(), c.Request())
		return nil
	})
}

func (s *Server) setupRoutes() {
	e := s.echo
	e.Use(s.requestLogger())
	e.Use(securityHeaders())
	e.Use(s.apiKeyGuard())

	e.GET("/healthz", s.healthHandler)

	e.GET("/api/version", s.versionHandler)
	e.POST("/api/query", s.queryHandler)
	e.GET("/api/summary", s.summaryHandler)
	e.GET("/api/pollers", s.pollersHandler)
	e.GET("/api/logs/critical", s.criticalLogsHandler)
	e.GET("/api/pollers/:id/rperf", s.rperfHandler)
	e.GET("/api/pollers/:id/sysmon/:kind", s.sysmonHandler)
	e.GET("/api/stream", s.streamHandler)
}

// Start serves HTTP on addr and blocks until the listener fails or Shutdown
// runs.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// StartWithListener serves on an already-bound listener. Tests bind
// 127.0.0.1:0 and pass the listener here to discover the port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.Serve(ln)
}

// Shutdown stops the HTTP server, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// streamEndpoint maps the backend base URL onto its stream endpoint,
// switching the scheme to ws(s).
func streamEndpoint(baseURL string) string {
	u := baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return strings.TrimSuffix(u, "/") + "/api/stream"
}
