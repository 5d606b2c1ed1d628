package analytics

import "github.com/prometheus/client_golang/prometheus"

// serviceMetrics counts summary refreshes and per-slice failures. A nil
// receiver records nothing.
type serviceMetrics struct {
	refreshes     prometheus.Counter
	sliceFailures *prometheus.CounterVec
}

func newServiceMetrics(reg prometheus.Registerer) *serviceMetrics {
	if reg == nil {
		return nil
	}
	m := &serviceMetrics{
		refreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netsight",
			Subsystem: "analytics",
			Name:      "refreshes_total",
			Help:      "Summary refreshes executed.",
		}),
		sliceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netsight",
			Subsystem: "analytics",
			Name:      "slice_failures_total",
			Help:      "Summary slices that failed and degraded to zero.",
		}, []string{"slice"}),
	}
	reg.MustRegister(m.refreshes, m.sliceFailures)
	return m
}

func (m *serviceMetrics) refresh() {
	if m == nil {
		return
	}
	m.refreshes.Inc()
}

func (m *serviceMetrics) sliceFailure(slice string) {
	if m == nil {
		return
	}
	m.sliceFailures.WithLabelValues(slice).Inc()
}
