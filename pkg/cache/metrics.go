package cache

import "github.com/prometheus/client_golang/prometheus"

// storeMetrics instruments one Store. A nil receiver disables collection, so
// stores built without a registry skip all metric work.
type storeMetrics struct {
	hits           prometheus.Counter
	misses         prometheus.Counter
	joins          prometheus.Counter
	staleFallbacks prometheus.Counter
	evictions      prometheus.Counter
	entries        prometheus.Gauge
}

func newStoreMetrics(store string, reg prometheus.Registerer) *storeMetrics {
	if reg == nil {
		return nil
	}

	labels := prometheus.Labels{"store": store}
	m := &storeMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "netsight",
			Subsystem:   "cache",
			Name:        "hits_total",
			Help:        "Calls served from a fresh cache entry.",
			ConstLabels: labels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "netsight",
			Subsystem:   "cache",
			Name:        "misses_total",
			Help:        "Calls that required a producer flight.",
			ConstLabels: labels,
		}),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "netsight",
			Subsystem:   "cache",
			Name:        "joins_total",
			Help:        "Callers coalesced onto an in-flight producer call.",
			ConstLabels: labels,
		}),
		staleFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "netsight",
			Subsystem:   "cache",
			Name:        "stale_fallbacks_total",
			Help:        "Failed refreshes answered with a stale entry.",
			ConstLabels: labels,
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "netsight",
			Subsystem:   "cache",
			Name:        "evictions_total",
			Help:        "Entries removed by the background sweep.",
			ConstLabels: labels,
		}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "netsight",
			Subsystem:   "cache",
			Name:        "entries",
			Help:        "Entries currently stored.",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(m.hits, m.misses, m.joins, m.staleFallbacks, m.evictions, m.entries)

	return m
}

func (m *storeMetrics) hit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *storeMetrics) miss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *storeMetrics) join() {
	if m != nil {
		m.joins.Inc()
	}
}

func (m *storeMetrics) staleFallback() {
	if m != nil {
		m.staleFallbacks.Inc()
	}
}

func (m *storeMetrics) sweep(evicted, remaining int) {
	if m != nil {
		m.evictions.Add(float64(evicted))
		m.entries.Set(float64(remaining))
	}
}
