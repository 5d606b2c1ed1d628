package models

import "time"

// LogEntry is an OTel-shaped log record returned by the logs entity.
type LogEntry struct {
	Timestamp      time.Time `json:"timestamp"`
	TraceID        string    `json:"trace_id,omitempty"`
	SpanID         string    `json:"span_id,omitempty"`
	SeverityText   string    `json:"severity_text"`
	SeverityNumber int32     `json:"severity_number"`
	Body           string    `json:"body"`
	ServiceName    string    `json:"service_name,omitempty"`
	ScopeName      string    `json:"scope_name,omitempty"`
}
