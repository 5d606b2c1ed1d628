package models

import (
	"encoding/json"
	"time"
)

// ServiceStatus is one monitored service as reported by a poller.
type ServiceStatus struct {
	AgentID   string          `json:"agent_id"`
	PollerID  string          `json:"poller_id"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Available bool            `json:"available"`
	Message   string          `json:"message,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// Poller is the health summary for one poller instance.
type Poller struct {
	PollerID   string          `json:"poller_id"`
	IsHealthy  bool            `json:"is_healthy"`
	FirstSeen  time.Time       `json:"first_seen"`
	LastUpdate time.Time       `json:"last_update"`
	UpTime     string          `json:"uptime"`
	Services   []ServiceStatus `json:"services,omitempty"`
}
