package perf

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsight-io/netsight/pkg/client"
	"github.com/netsight-io/netsight/pkg/srql"
)

// fakeBackend serves canned series per path and counts hits.
type fakeBackend struct {
	mu   sync.Mutex
	hits map[string]int
	rows map[string]any
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{hits: make(map[string]int), rows: make(map[string]any)}
}

func (b *fakeBackend) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits[r.URL.Path]++
		rows, ok := b.rows[r.URL.Path]
		b.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rows)
	}
}

func (b *fakeBackend) hitCount(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

func newTestBackend(t *testing.T, fb *fakeBackend) *client.Client {
	t.Helper()
	srv := httptest.NewServer(fb.handler())
	t.Cleanup(srv.Close)
	return client.New(client.Config{BaseURL: srv.URL, RetryAttempts: 1, RetryBase: time.Millisecond})
}

func TestRperfTimeseriesCached(t *testing.T) {
	fb := newFakeBackend()
	fb.rows["/api/pollers/edge-1/rperf"] = []map[string]any{
		{
			"target":          "edge-1",
			"success":         true,
			"bits_per_second": 9.4e8,
			"loss_percent":    0.5,
			"timestamp":       "2025-06-01T12:00:00Z",
		},
	}
	svc := NewRperf(newTestBackend(t, fb), Config{}, nil)
	ctx := context.Background()
	w := srql.TimeWindow{
		Start: time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	first, err := svc.Timeseries(ctx, "edge-1", w)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "edge-1", first[0].Target)
	assert.InDelta(t, 9.4e8, first[0].BitsPerSec, 1)

	second, err := svc.Timeseries(ctx, "edge-1", w)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, fb.hitCount("/api/pollers/edge-1/rperf"))
}

func TestRperfNearbyWindowsShareEntry(t *testing.T) {
	fb := newFakeBackend()
	fb.rows["/api/pollers/edge-1/rperf"] = []map[string]any{}
	svc := NewRperf(newTestBackend(t, fb), Config{}, nil)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 11, 0, 5, 0, time.UTC)
	w1 := srql.TimeWindow{Start: base, End: base.Add(time.Hour)}
	w2 := srql.TimeWindow{Start: base.Add(20 * time.Second), End: base.Add(time.Hour + 20*time.Second)}

	_, err := svc.Timeseries(ctx, "edge-1", w1)
	require.NoError(t, err)
	_, err = svc.Timeseries(ctx, "edge-1", w2)
	require.NoError(t, err)

	assert.Equal(t, 1, fb.hitCount("/api/pollers/edge-1/rperf"))
}

func TestRperfDistinctPollers(t *testing.T) {
	fb := newFakeBackend()
	fb.rows["/api/pollers/edge-1/rperf"] = []map[string]any{}
	fb.rows["/api/pollers/edge-2/rperf"] = []map[string]any{}
	svc := NewRperf(newTestBackend(t, fb), Config{}, nil)
	ctx := context.Background()

	_, err := svc.Timeseries(ctx, "edge-1", srql.TimeWindow{})
	require.NoError(t, err)
	_, err = svc.Timeseries(ctx, "edge-2", srql.TimeWindow{})
	require.NoError(t, err)

	assert.Equal(t, 1, fb.hitCount("/api/pollers/edge-1/rperf"))
	assert.Equal(t, 1, fb.hitCount("/api/pollers/edge-2/rperf"))
}

func TestSysmonKindsCachedSeparately(t *testing.T) {
	fb := newFakeBackend()
	fb.rows["/api/pollers/edge-1/sysmon/cpu"] = []map[string]any{
		{"core_id": 0, "usage_percent": 42.5, "timestamp": "2025-06-01T12:00:00Z"},
	}
	fb.rows["/api/pollers/edge-1/sysmon/memory"] = []map[string]any{
		{"used_bytes": 1 << 30, "total_bytes": 4 << 30, "timestamp": "2025-06-01T12:00:00Z"},
	}
	fb.rows["/api/pollers/edge-1/sysmon/disk"] = []map[string]any{
		{"mount_point": "/", "used_bytes": 10 << 30, "total_bytes": 100 << 30, "timestamp": "2025-06-01T12:00:00Z"},
	}
	svc := NewSysmon(newTestBackend(t, fb), Config{}, nil)
	ctx := context.Background()

	cpu, err := svc.CPU(ctx, "edge-1", srql.TimeWindow{})
	require.NoError(t, err)
	require.Len(t, cpu, 1)
	assert.InDelta(t, 42.5, cpu[0].UsagePercent, 0.01)

	mem, err := svc.Memory(ctx, "edge-1", srql.TimeWindow{})
	require.NoError(t, err)
	require.Len(t, mem, 1)
	assert.Equal(t, uint64(1<<30), mem[0].UsedBytes)

	disk, err := svc.Disk(ctx, "edge-1", srql.TimeWindow{})
	require.NoError(t, err)
	require.Len(t, disk, 1)
	assert.Equal(t, "/", disk[0].MountPoint)

	// Repeat calls are served from each kind's own store.
	_, err = svc.CPU(ctx, "edge-1", srql.TimeWindow{})
	require.NoError(t, err)
	assert.Equal(t, 1, fb.hitCount("/api/pollers/edge-1/sysmon/cpu"))
	assert.Equal(t, 1, fb.hitCount("/api/pollers/edge-1/sysmon/memory"))
	assert.Equal(t, 1, fb.hitCount("/api/pollers/edge-1/sysmon/disk"))
}

func TestRperfBackendErrorPropagates(t *testing.T) {
	fb := newFakeBackend()
	svc := NewRperf(newTestBackend(t, fb), Config{}, nil)

	_, err := svc.Timeseries(context.Background(), "missing", srql.TimeWindow{})
	require.Error(t, err)

	var statusErr *client.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Status)
}
