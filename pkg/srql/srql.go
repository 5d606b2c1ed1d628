// Package srql builds and normalizes SRQL query strings, the key:value
// search language the monitoring backend exposes (`in:devices time:last_24h
// stats:"count() as total"`). It also owns the canonicalization helpers the
// cache layer depends on: stable cache keys, minute-rounded time windows,
// timestamp normalization, and the small attribute/alias string formats
// embedded in device metadata.
package srql

import (
	"fmt"
	"strings"
)

// Entity labels accepted by the backend's `in:` clause.
const (
	EntityDevices        = "devices"
	EntityServices       = "services"
	EntityPollers        = "pollers"
	EntityLogs           = "logs"
	EntityEvents         = "events"
	EntityTraces         = "otel_traces"
	EntityTraceSummaries = "otel_trace_summaries"
	EntityFlows          = "flows"
	EntityInterfaces     = "interfaces"
	EntityCPUMetrics     = "cpu_metrics"
	EntityMemoryMetrics  = "memory_metrics"
	EntityDiskMetrics    = "disk_metrics"
	EntityRperfMetrics   = "rperf_metrics"
	EntitySweepResults   = "sweep_results"
)

// Builder assembles an SRQL query string clause by clause. Clause order is
// preserved so logically identical builds always render identical strings,
// which the cache layer relies on for key stability.
type Builder struct {
	entity  string
	clauses []string
}

// From starts a query against one entity.
func From(entity string) *Builder {
	return &Builder{entity: entity}
}

// Where adds a `field:value` filter clause. Values containing whitespace are
// quoted.
func (b *Builder) Where(field, value string) *Builder {
	b.clauses = append(b.clauses, field+":"+quoteIfNeeded(value))
	return b
}

// Time adds a `time:` clause such as `last_24h` or `last_1h`.
func (b *Builder) Time(spec string) *Builder {
	b.clauses = append(b.clauses, "time:"+spec)
	return b
}

// Sort adds a `sort:field:dir` clause; dir is "asc" or "desc".
func (b *Builder) Sort(field, dir string) *Builder {
	b.clauses = append(b.clauses, "sort:"+field+":"+dir)
	return b
}

// Limit adds a `limit:` clause. Non-positive limits are ignored.
func (b *Builder) Limit(n int) *Builder {
	if n > 0 {
		b.clauses = append(b.clauses, fmt.Sprintf("limit:%d", n))
	}
	return b
}

// Stats adds a quoted `stats:` aggregation clause.
func (b *Builder) Stats(expr string) *Builder {
	b.clauses = append(b.clauses, `stats:"`+expr+`"`)
	return b
}

func (b *Builder) String() string {
	var sb strings.Builder
	sb.WriteString("in:")
	sb.WriteString(b.entity)
	for _, c := range b.clauses {
		sb.WriteByte(' ')
		sb.WriteString(c)
	}
	return sb.String()
}

// CountAll returns the canonical total-count query for an entity.
func CountAll(entity string) string {
	return From(entity).Stats("count() as total").String()
}

// CountWhere returns a filtered count query for an entity.
func CountWhere(entity, field, value string) string {
	return From(entity).Where(field, value).Stats("count() as total").String()
}

func quoteIfNeeded(v string) string {
	if strings.ContainsAny(v, " \t") {
		return `"` + v + `"`
	}
	return v
}
