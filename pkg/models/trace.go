package models

import "time"

// SpanSummary is a slow-span row surfaced in the analytics summary.
type SpanSummary struct {
	TraceID    string    `json:"trace_id"`
	SpanID     string    `json:"span_id,omitempty"`
	Name       string    `json:"name"`
	Service    string    `json:"service_name,omitempty"`
	DurationMs float64   `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}
