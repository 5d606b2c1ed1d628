// Package perf serves poller performance series through the shared cache:
// rperf bandwidth runs and sysmon CPU, memory, and disk samples. Series are
// keyed per poller and minute-rounded window, so dashboard widgets polling the
// same range share one backend fetch.
package perf

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/netsight-io/netsight/pkg/cache"
	"github.com/netsight-io/netsight/pkg/client"
	"github.com/netsight-io/netsight/pkg/models"
	"github.com/netsight-io/netsight/pkg/srql"
)

const defaultTTL = time.Minute

// Config controls series caching. Zero values take defaults: 60s TTL and the
// cache package's sweep interval.
type Config struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

func (c Config) ttl() time.Duration {
	if c.TTL <= 0 {
		return defaultTTL
	}
	return c.TTL
}

// RperfService caches rperf bandwidth series per poller and window.
type RperfService struct {
	backend *client.Client
	store   *cache.Store[[]models.RperfMetric]
	ttl     time.Duration
}

func NewRperf(backend *client.Client, cfg Config, reg prometheus.Registerer) *RperfService {
	return &RperfService{
		backend: backend,
		store:   cache.New[[]models.RperfMetric]("rperf", cfg.SweepInterval, reg),
		ttl:     cfg.ttl(),
	}
}

// Timeseries returns the rperf runs for pollerID within w. A zero window lets
// the backend apply its default range.
func (s *RperfService) Timeseries(ctx context.Context, pollerID string, w srql.TimeWindow) ([]models.RperfMetric, error) {
	key := srql.CacheKey("rperf:"+pollerID, "", w)
	return s.store.Get(ctx, key, s.ttl, func(ctx context.Context) ([]models.RperfMetric, error) {
		return s.backend.Rperf(ctx, pollerID, w)
	})
}

func (s *RperfService) Start(ctx context.Context) { s.store.Start(ctx) }
func (s *RperfService) Stop()                     { s.store.Stop() }

// SysmonService caches sysmon series per poller and window, one store per
// metric kind.
type SysmonService struct {
	backend *client.Client
	cpu     *cache.Store[[]models.CPUMetric]
	memory  *cache.Store[[]models.MemoryMetric]
	disk    *cache.Store[[]models.DiskMetric]
	ttl     time.Duration
}

func NewSysmon(backend *client.Client, cfg Config, reg prometheus.Registerer) *SysmonService {
	return &SysmonService{
		backend: backend,
		cpu:     cache.New[[]models.CPUMetric]("sysmon_cpu", cfg.SweepInterval, reg),
		memory:  cache.New[[]models.MemoryMetric]("sysmon_memory", cfg.SweepInterval, reg),
		disk:    cache.New[[]models.DiskMetric]("sysmon_disk", cfg.SweepInterval, reg),
		ttl:     cfg.ttl(),
	}
}

func (s *SysmonService) CPU(ctx context.Context, pollerID string, w srql.TimeWindow) ([]models.CPUMetric, error) {
	key := srql.CacheKey("sysmon:cpu:"+pollerID, "", w)
	return s.cpu.Get(ctx, key, s.ttl, func(ctx context.Context) ([]models.CPUMetric, error) {
		return s.backend.SysmonCPU(ctx, pollerID, w)
	})
}

func (s *SysmonService) Memory(ctx context.Context, pollerID string, w srql.TimeWindow) ([]models.MemoryMetric, error) {
	key := srql.CacheKey("sysmon:memory:"+pollerID, "", w)
	return s.memory.Get(ctx, key, s.ttl, func(ctx context.Context) ([]models.MemoryMetric, error) {
		return s.backend.SysmonMemory(ctx, pollerID, w)
	})
}

func (s *SysmonService) Disk(ctx context.Context, pollerID string, w srql.TimeWindow) ([]models.DiskMetric, error) {
	key := srql.CacheKey("sysmon:disk:"+pollerID, "", w)
	return s.disk.Get(ctx, key, s.ttl, func(ctx context.Context) ([]models.DiskMetric, error) {
		return s.backend.SysmonDisk(ctx, pollerID, w)
	})
}

func (s *SysmonService) Start(ctx context.Context) {
	s.cpu.Start(ctx)
	s.memory.Start(ctx)
	s.disk.Start(ctx)
}

func (s *SysmonService) Stop() {
	s.cpu.Stop()
	s.memory.Stop()
	s.disk.Stop()
}
