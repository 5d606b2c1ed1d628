package models

import "encoding/json"

// Stream message types emitted by the backend's /api/stream socket and
// forwarded by the gateway bridge. This is a closed set: anything else is
// logged and dropped by the streaming client.
const (
	MessageTypeData     = "data"
	MessageTypeError    = "error"
	MessageTypeComplete = "complete"
	MessageTypePing     = "ping"
)

// StreamMessage is one JSON frame on the streaming socket.
type StreamMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}
