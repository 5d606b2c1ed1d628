package stream

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments stream subscribers. One instance is shared by all
// subscribers in a process; a nil receiver disables collection.
type Metrics struct {
	connects      prometheus.Counter
	dialFailures  prometheus.Counter
	reconnects    prometheus.Counter
	closes        *prometheus.CounterVec
	messages      *prometheus.CounterVec
	parseFailures prometheus.Counter
}

// NewMetrics registers stream collectors on reg. A nil reg returns nil,
// which all methods tolerate.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netsight",
			Subsystem: "stream",
			Name:      "connects_total",
			Help:      "Successful stream transport opens.",
		}),
		dialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netsight",
			Subsystem: "stream",
			Name:      "dial_failures_total",
			Help:      "Stream dials that failed before the transport opened.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netsight",
			Subsystem: "stream",
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled after transport loss.",
		}),
		closes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netsight",
			Subsystem: "stream",
			Name:      "closes_total",
			Help:      "Transport closes by close code (-1 when none was received).",
		}, []string{"code"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netsight",
			Subsystem: "stream",
			Name:      "messages_total",
			Help:      "Inbound stream messages by type.",
		}, []string{"type"}),
		parseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netsight",
			Subsystem: "stream",
			Name:      "parse_failures_total",
			Help:      "Inbound frames that failed to parse.",
		}),
	}

	reg.MustRegister(m.connects, m.dialFailures, m.reconnects, m.closes, m.messages, m.parseFailures)

	return m
}

func (m *Metrics) connected() {
	if m != nil {
		m.connects.Inc()
	}
}

func (m *Metrics) dialFailure() {
	if m != nil {
		m.dialFailures.Inc()
	}
}

func (m *Metrics) reconnectScheduled() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) closed(code int) {
	if m != nil {
		m.closes.WithLabelValues(strconv.Itoa(code)).Inc()
	}
}

func (m *Metrics) message(msgType string) {
	if m != nil {
		m.messages.WithLabelValues(msgType).Inc()
	}
}

func (m *Metrics) parseFailure() {
	if m != nil {
		m.parseFailures.Inc()
	}
}
