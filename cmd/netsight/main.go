// NetSight gateway server — fronts the streaming query backend with a
// cached HTTP API, a WebSocket stream bridge, and analytics rollups.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/netsight-io/netsight/pkg/analytics"
	"github.com/netsight-io/netsight/pkg/api"
	"github.com/netsight-io/netsight/pkg/cache"
	"github.com/netsight-io/netsight/pkg/client"
	"github.com/netsight-io/netsight/pkg/config"
	"github.com/netsight-io/netsight/pkg/models"
	"github.com/netsight-io/netsight/pkg/perf"
	"github.com/netsight-io/netsight/pkg/stream"
	"github.com/netsight-io/netsight/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Parse command-line flags
	configPath := flag.String("config",
		getEnv("NETSIGHT_CONFIG", ""),
		"Path to configuration file (defaults to ./netsight.yaml when present)")
	flag.Parse()

	// Load .env so both config expansion and key lookups see it
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment", "error", err)
	}

	slog.Info("Starting NetSight", "version", version.GitCommit, "config", *configPath)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configPath)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Configure logging from config
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	// 3. Metrics registry with process/runtime collectors
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// 4. Backend client
	backend := client.New(client.Config{
		BaseURL:       cfg.Backend.BaseURL,
		APIKey:        os.Getenv(cfg.Backend.APIKeyEnv),
		Timeout:       cfg.Backend.Timeout,
		RetryAttempts: uint64(cfg.Backend.RetryAttempts),
		RetryBase:     cfg.Backend.RetryBase,
	})
	slog.Info("Backend client initialized", "base_url", cfg.Backend.BaseURL)

	// 5. Caches and domain services
	queryStore := cache.New[*models.QueryResponse]("query", cfg.Cache.SweepInterval, reg)
	queryStore.Start(ctx)
	defer queryStore.Stop()

	summaryStore := cache.New[analytics.Summary]("summary", cfg.Cache.SweepInterval, reg)
	summaryStore.Start(ctx)
	defer summaryStore.Stop()

	analyticsSvc := analytics.New(backend, summaryStore, analytics.Config{
		TTL:           cfg.Analytics.TTL,
		DetailTimeout: cfg.Analytics.DetailTimeout,
		SlowSpanLimit: cfg.Analytics.SlowSpanLimit,
		SlowSpanMinMs: cfg.Analytics.SlowSpanMinMs,
	}, reg)

	perfCfg := perf.Config{TTL: cfg.Cache.PerfTTL, SweepInterval: cfg.Cache.SweepInterval}
	rperfSvc := perf.NewRperf(backend, perfCfg, reg)
	rperfSvc.Start(ctx)
	defer rperfSvc.Stop()

	sysmonSvc := perf.NewSysmon(backend, perfCfg, reg)
	sysmonSvc.Start(ctx)
	defer sysmonSvc.Stop()

	slog.Info("Services initialized")

	// 6. Create HTTP server
	httpServer := api.NewServer(cfg, backend, queryStore, analyticsSvc, rperfSvc, sysmonSvc)
	httpServer.SetStreamMetrics(stream.NewMetrics(reg))
	httpServer.SetMetricsRegistry(reg)

	// 7. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		addr := cfg.Server.ListenAddr
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("NetSight started successfully", "listen_addr", cfg.Server.ListenAddr)

	// 8. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 9. Graceful shutdown: stop accepting requests, then the deferred
	// store/service Stops flush the sweepers.
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
