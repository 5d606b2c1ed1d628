// Package analytics aggregates dashboard summary statistics from the query
// backend. A refresh fans out one SRQL count per statistic, tolerating partial
// failure: a slice that errors logs a warning and contributes its zero value
// while the rest of the summary stands. Summaries are cached per caller token
// and pushed to subscribers on refresh and when the slow-span detail lands.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/netsight-io/netsight/pkg/cache"
	"github.com/netsight-io/netsight/pkg/client"
	"github.com/netsight-io/netsight/pkg/models"
	"github.com/netsight-io/netsight/pkg/srql"
)

const (
	defaultTTL           = 30 * time.Second
	defaultDetailTimeout = 10 * time.Second
	defaultSlowSpanLimit = 10
	defaultSlowSpanMinMs = 1000
)

// Summary is the aggregate the dashboard renders. SlowSpans arrives late: the
// detail query runs off the hot path and merges into the cached summary once
// it completes.
type Summary struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Devices     DeviceStats  `json:"devices"`
	Services    ServiceStats `json:"services"`
	Pollers     PollerStats  `json:"pollers"`
	Logs        LogStats     `json:"logs"`
	Traces      TraceStats   `json:"traces"`
	Network     NetworkStats `json:"network"`
	Events      EventStats   `json:"events"`

	SlowSpans []models.SpanSummary `json:"slow_spans,omitempty"`
}

type DeviceStats struct {
	Total   int64 `json:"total"`
	Online  int64 `json:"online"`
	Offline int64 `json:"offline"`
	SNMP    int64 `json:"snmp"`
	ICMP    int64 `json:"icmp"`
}

type ServiceStats struct {
	Total   int64 `json:"total"`
	Failing int64 `json:"failing"`
}

type PollerStats struct {
	Total   int64 `json:"total"`
	Healthy int64 `json:"healthy"`
}

type LogStats struct {
	CriticalLastHour int64 `json:"critical_last_hour"`
	CriticalLastDay  int64 `json:"critical_last_day"`
	ErrorsLastDay    int64 `json:"errors_last_day"`
}

type TraceStats struct {
	TotalLastDay int64 `json:"total_last_day"`
	SlowLastDay  int64 `json:"slow_last_day"`
	ErrorLastDay int64 `json:"error_last_day"`
}

type NetworkStats struct {
	FlowsLastDay        int64 `json:"flows_last_day"`
	Interfaces          int64 `json:"interfaces"`
	SweepResultsLastDay int64 `json:"sweep_results_last_day"`
}

type EventStats struct {
	Total       int64 `json:"total"`
	LastDay     int64 `json:"last_day"`
	HighLastDay int64 `json:"high_last_day"`
}

// Config controls summary caching and the slow-span detail query. Zero values
// take the package defaults.
type Config struct {
	TTL           time.Duration
	DetailTimeout time.Duration
	SlowSpanLimit int
	SlowSpanMinMs int
}

// Service computes and caches dashboard summaries.
type Service struct {
	backend *client.Client
	store   *cache.Store[Summary]
	cfg     Config
	logger  *slog.Logger
	metrics *serviceMetrics
	nowFn   func() time.Time

	mu          sync.Mutex
	subscribers map[int]func(Summary)
	nextSubID   int
}

// New builds a Service over the backend client and summary store. reg may be
// nil to disable metrics.
func New(backend *client.Client, store *cache.Store[Summary], cfg Config, reg prometheus.Registerer) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.DetailTimeout <= 0 {
		cfg.DetailTimeout = defaultDetailTimeout
	}
	if cfg.SlowSpanLimit <= 0 {
		cfg.SlowSpanLimit = defaultSlowSpanLimit
	}
	if cfg.SlowSpanMinMs <= 0 {
		cfg.SlowSpanMinMs = defaultSlowSpanMinMs
	}
	return &Service{
		backend:     backend,
		store:       store,
		cfg:         cfg,
		logger:      slog.With("component", "analytics"),
		metrics:     newServiceMetrics(reg),
		nowFn:       time.Now,
		subscribers: make(map[int]func(Summary)),
	}
}

// summarySlice is one independently-fetched statistic. apply writes the count
// into its field of the summary.
type summarySlice struct {
	name  string
	query string
	apply func(*Summary, int64)
}

func summarySlices() []summarySlice {
	return []summarySlice{
		{"devices_total", srql.CountAll(srql.EntityDevices), func(s *Summary, n int64) { s.Devices.Total = n }},
		{"devices_online", srql.CountWhere(srql.EntityDevices, "is_available", "true"), func(s *Summary, n int64) { s.Devices.Online = n }},
		{"devices_offline", srql.CountWhere(srql.EntityDevices, "is_available", "false"), func(s *Summary, n int64) { s.Devices.Offline = n }},
		{"devices_snmp", srql.CountWhere(srql.EntityDevices, "discovery_sources", "snmp"), func(s *Summary, n int64) { s.Devices.SNMP = n }},
		{"devices_icmp", srql.CountWhere(srql.EntityDevices, "discovery_sources", "icmp"), func(s *Summary, n int64) { s.Devices.ICMP = n }},
		{"services_total", srql.CountAll(srql.EntityServices), func(s *Summary, n int64) { s.Services.Total = n }},
		{"services_failing", srql.CountWhere(srql.EntityServices, "available", "false"), func(s *Summary, n int64) { s.Services.Failing = n }},
		{"pollers_total", srql.CountAll(srql.EntityPollers), func(s *Summary, n int64) { s.Pollers.Total = n }},
		{"pollers_healthy", srql.CountWhere(srql.EntityPollers, "is_healthy", "true"), func(s *Summary, n int64) { s.Pollers.Healthy = n }},
		{"logs_critical_1h", countQuery(srql.From(srql.EntityLogs).Where("severity_text", "FATAL").Time("last_1h")), func(s *Summary, n int64) { s.Logs.CriticalLastHour = n }},
		{"logs_critical_24h", countQuery(srql.From(srql.EntityLogs).Where("severity_text", "FATAL").Time("last_24h")), func(s *Summary, n int64) { s.Logs.CriticalLastDay = n }},
		{"logs_errors_24h", countQuery(srql.From(srql.EntityLogs).Where("severity_text", "ERROR").Time("last_24h")), func(s *Summary, n int64) { s.Logs.ErrorsLastDay = n }},
		{"traces_24h", countQuery(srql.From(srql.EntityTraceSummaries).Time("last_24h")), func(s *Summary, n int64) { s.Traces.TotalLastDay = n }},
		{"traces_slow_24h", countQuery(srql.From(srql.EntityTraceSummaries).Where("duration_ms", ">1000").Time("last_24h")), func(s *Summary, n int64) { s.Traces.SlowLastDay = n }},
		{"traces_error_24h", countQuery(srql.From(srql.EntityTraceSummaries).Where("error_count", ">0").Time("last_24h")), func(s *Summary, n int64) { s.Traces.ErrorLastDay = n }},
		{"flows_24h", countQuery(srql.From(srql.EntityFlows).Time("last_24h")), func(s *Summary, n int64) { s.Network.FlowsLastDay = n }},
		{"interfaces_total", srql.CountAll(srql.EntityInterfaces), func(s *Summary, n int64) { s.Network.Interfaces = n }},
		{"sweeps_24h", countQuery(srql.From(srql.EntitySweepResults).Time("last_24h")), func(s *Summary, n int64) { s.Network.SweepResultsLastDay = n }},
		{"events_total", srql.CountAll(srql.EntityEvents), func(s *Summary, n int64) { s.Events.Total = n }},
		{"events_24h", countQuery(srql.From(srql.EntityEvents).Time("last_24h")), func(s *Summary, n int64) { s.Events.LastDay = n }},
		{"events_high_24h", countQuery(srql.From(srql.EntityEvents).Where("severity", "High").Time("last_24h")), func(s *Summary, n int64) { s.Events.HighLastDay = n }},
	}
}

func countQuery(b *srql.Builder) string {
	return b.Stats("count() as total").String()
}

// Summary returns the cached summary for the caller's token, refreshing it
// through the store when stale. Concurrent callers share one refresh; the
// caller whose refresh ran also notifies subscribers and kicks off the
// slow-span detail query.
func (s *Service) Summary(ctx context.Context, token string) (Summary, error) {
	key := srql.CacheKey("analytics:summary", token, srql.TimeWindow{})
	refreshed := false
	sum, err := s.store.Get(ctx, key, s.cfg.TTL, func(ctx context.Context) (Summary, error) {
		refreshed = true
		return s.refresh(ctx), nil
	})
	if err != nil {
		return Summary{}, err
	}
	if refreshed {
		s.notify(sum)
		s.scheduleDetail(key)
	}
	return sum, nil
}

// Invalidate drops the cached summary for token so the next Summary call
// refreshes.
func (s *Service) Invalidate(token string) {
	s.store.Invalidate(srql.CacheKey("analytics:summary", token, srql.TimeWindow{}))
}

// Subscribe registers fn for summary updates. The returned cancel removes the
// registration.
func (s *Service) Subscribe(fn func(Summary)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// refresh runs every summary slice in parallel. Slice failures degrade to
// zero values; the batch itself always succeeds.
func (s *Service) refresh(ctx context.Context) Summary {
	var (
		mu  sync.Mutex
		sum = Summary{GeneratedAt: s.nowFn().UTC()}
	)

	g, gCtx := errgroup.WithContext(ctx)
	for _, sl := range summarySlices() {
		g.Go(func() error {
			n, err := s.count(gCtx, sl.query)
			if err != nil {
				s.logger.Warn("Summary slice failed", "slice", sl.name, "error", err)
				s.metrics.sliceFailure(sl.name)
				return nil
			}
			mu.Lock()
			sl.apply(&sum, n)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.refresh()
	return sum
}

// count issues one stats query and reads its single total row.
func (s *Service) count(ctx context.Context, query string) (int64, error) {
	resp, err := s.backend.Query(ctx, models.QueryRequest{Query: query, Limit: 1})
	if err != nil {
		return 0, err
	}
	set := models.DecodeRecords(resp.Results)
	if len(set.Records) == 0 {
		if len(set.Failures) > 0 {
			return 0, fmt.Errorf("count row invalid: %w", set.Failures[0])
		}
		return 0, nil
	}
	n, ok := set.Records[0].Int64("total")
	if !ok {
		return 0, fmt.Errorf("count response missing total field")
	}
	return n, nil
}

// scheduleDetail fetches the slow-span detail off the request path and merges
// it into the cached summary under key. The merge is skipped when the entry
// was invalidated or swept in the meantime.
func (s *Service) scheduleDetail(key string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DetailTimeout)
		defer cancel()

		spans, err := s.slowSpans(ctx)
		if err != nil {
			s.logger.Warn("Slow span detail failed", "error", err)
			return
		}

		merged, ok := s.store.Update(key, func(sum Summary) Summary {
			sum.SlowSpans = spans
			return sum
		})
		if !ok {
			return
		}
		s.notify(merged)
	}()
}

func (s *Service) slowSpans(ctx context.Context) ([]models.SpanSummary, error) {
	query := srql.From(srql.EntityTraceSummaries).
		Where("duration_ms", fmt.Sprintf(">%d", s.cfg.SlowSpanMinMs)).
		Time("last_24h").
		Sort("duration_ms", "desc").
		Limit(s.cfg.SlowSpanLimit).
		String()

	resp, err := s.backend.Query(ctx, models.QueryRequest{Query: query, Limit: s.cfg.SlowSpanLimit})
	if err != nil {
		return nil, err
	}

	set := models.DecodeRecords(resp.Results)
	for _, f := range set.Failures {
		s.logger.Warn("Discarding invalid slow span row", "index", f.Index, "error", f.Err)
	}

	spans := make([]models.SpanSummary, 0, len(set.Records))
	for _, rec := range set.Records {
		spans = append(spans, spanFromRecord(rec))
	}
	return spans, nil
}

func spanFromRecord(rec models.Record) models.SpanSummary {
	var sp models.SpanSummary
	sp.TraceID, _ = rec.String("trace_id")
	sp.SpanID, _ = rec.String("root_span_id")
	sp.Name, _ = rec.String("root_span_name")
	sp.Service, _ = rec.String("root_service_name")
	sp.DurationMs, _ = rec.Float64("duration_ms")
	sp.Timestamp, _ = rec.Time("timestamp")
	return sp
}

// notify snapshots the subscriber set under the lock and invokes outside it.
func (s *Service) notify(sum Summary) {
	s.mu.Lock()
	subs := make([]func(Summary), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(sum)
	}
}
