package models

import "time"

// RperfMetric is one network throughput measurement from an rperf checker.
type RperfMetric struct {
	Target          string    `json:"target"`
	Success         bool      `json:"success"`
	Error           *string   `json:"error,omitempty"`
	BitsPerSec      float64   `json:"bits_per_second"`
	BytesReceived   int64     `json:"bytes_received"`
	BytesSent       int64     `json:"bytes_sent"`
	Duration        float64   `json:"duration"`
	JitterMs        float64   `json:"jitter_ms"`
	LossPercent     float64   `json:"loss_percent"`
	PacketsLost     int64     `json:"packets_lost"`
	PacketsReceived int64     `json:"packets_received"`
	PacketsSent     int64     `json:"packets_sent"`
	ResponseTime    int64     `json:"response_time"`
	Timestamp       time.Time `json:"timestamp"`
}

// CPUMetric is a per-core usage sample.
type CPUMetric struct {
	CoreID       int32     `json:"core_id"`
	UsagePercent float64   `json:"usage_percent"`
	Timestamp    time.Time `json:"timestamp"`
}

// MemoryMetric is a point-in-time memory usage sample.
type MemoryMetric struct {
	UsedBytes  uint64    `json:"used_bytes"`
	TotalBytes uint64    `json:"total_bytes"`
	Timestamp  time.Time `json:"timestamp"`
}

// DiskMetric is a point-in-time disk usage sample for one mount point.
type DiskMetric struct {
	MountPoint string    `json:"mount_point"`
	UsedBytes  uint64    `json:"used_bytes"`
	TotalBytes uint64    `json:"total_bytes"`
	Timestamp  time.Time `json:"timestamp"`
}
