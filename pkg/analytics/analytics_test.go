package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsight-io/netsight/pkg/cache"
	"github.com/netsight-io/netsight/pkg/client"
	"github.com/netsight-io/netsight/pkg/models"
)

// fakeBackend answers /api/query with a fixed count for every stats query and
// a canned row set for the slow-span detail query. Queries containing a fail
// substring get HTTP 500.
type fakeBackend struct {
	mu      sync.Mutex
	queries []string
	count   int64
	failOn  []string
	spans   []map[string]any
}

func (b *fakeBackend) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.queries = append(b.queries, req.Query)
		b.mu.Unlock()

		for _, s := range b.failOn {
			if strings.Contains(req.Query, s) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"backend unavailable"}`))
				return
			}
		}

		var rows []any
		if strings.Contains(req.Query, "sort:duration_ms:desc") {
			for _, sp := range b.spans {
				rows = append(rows, sp)
			}
		} else {
			rows = append(rows, map[string]any{"total": b.count})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"results": rows})
	}
}

func (b *fakeBackend) queryCount(substr string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, q := range b.queries {
		if strings.Contains(q, substr) {
			n++
		}
	}
	return n
}

func newTestService(t *testing.T, backend *fakeBackend) *Service {
	t.Helper()

	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	c := client.New(client.Config{
		BaseURL:       srv.URL,
		RetryAttempts: 1,
		RetryBase:     time.Millisecond,
	})
	store := cache.New[Summary]("summary-test", time.Minute, nil)
	return New(c, store, Config{TTL: time.Minute}, nil)
}

func TestSummaryAggregates(t *testing.T) {
	backend := &fakeBackend{count: 7}
	svc := newTestService(t, backend)

	sum, err := svc.Summary(context.Background(), "token-1")
	require.NoError(t, err)

	assert.Equal(t, int64(7), sum.Devices.Total)
	assert.Equal(t, int64(7), sum.Devices.Online)
	assert.Equal(t, int64(7), sum.Services.Failing)
	assert.Equal(t, int64(7), sum.Pollers.Healthy)
	assert.Equal(t, int64(7), sum.Logs.CriticalLastHour)
	assert.Equal(t, int64(7), sum.Traces.SlowLastDay)
	assert.Equal(t, int64(7), sum.Network.Interfaces)
	assert.Equal(t, int64(7), sum.Events.HighLastDay)
	assert.False(t, sum.GeneratedAt.IsZero())
}

func TestSummaryFailedSliceYieldsZero(t *testing.T) {
	backend := &fakeBackend{count: 7, failOn: []string{"available:false"}}
	svc := newTestService(t, backend)

	sum, err := svc.Summary(context.Background(), "token-1")
	require.NoError(t, err)

	// Both queries filtering on available:false degrade to zero.
	assert.Zero(t, sum.Services.Failing)
	assert.Zero(t, sum.Devices.Offline)

	// Every other slice still lands.
	assert.Equal(t, int64(7), sum.Devices.Total)
	assert.Equal(t, int64(7), sum.Services.Total)
	assert.Equal(t, int64(7), sum.Pollers.Total)
	assert.Equal(t, int64(7), sum.Events.Total)
}

func TestSummaryCached(t *testing.T) {
	backend := &fakeBackend{count: 3}
	svc := newTestService(t, backend)
	ctx := context.Background()

	first, err := svc.Summary(ctx, "token-1")
	require.NoError(t, err)
	devicesQueries := backend.queryCount("in:devices stats:")
	require.Equal(t, 1, devicesQueries)

	second, err := svc.Summary(ctx, "token-1")
	require.NoError(t, err)
	assert.Equal(t, first.GeneratedAt, second.GeneratedAt)
	assert.Equal(t, 1, backend.queryCount("in:devices stats:"))
}

func TestSummaryPerTokenEntries(t *testing.T) {
	backend := &fakeBackend{count: 3}
	svc := newTestService(t, backend)
	ctx := context.Background()

	_, err := svc.Summary(ctx, "token-a")
	require.NoError(t, err)
	_, err = svc.Summary(ctx, "token-b")
	require.NoError(t, err)

	assert.Equal(t, 2, backend.queryCount("in:devices stats:"))
}

func TestSlowSpanDetailMergesAndNotifies(t *testing.T) {
	backend := &fakeBackend{
		count: 2,
		spans: []map[string]any{
			{
				"trace_id":          "t-1",
				"root_span_id":      "s-1",
				"root_span_name":    "GET /api/devices",
				"root_service_name": "gateway",
				"duration_ms":       2350.5,
				"timestamp":         "2025-06-01T12:00:00Z",
			},
		},
	}
	svc := newTestService(t, backend)

	updates := make(chan Summary, 8)
	cancel := svc.Subscribe(func(sum Summary) { updates <- sum })
	defer cancel()

	sum, err := svc.Summary(context.Background(), "token-1")
	require.NoError(t, err)
	assert.Empty(t, sum.SlowSpans)

	// First notification is the refresh itself, without the detail.
	select {
	case got := <-updates:
		assert.Empty(t, got.SlowSpans)
	case <-time.After(2 * time.Second):
		t.Fatal("no refresh notification")
	}

	// The detail lands asynchronously and re-notifies with spans merged in.
	select {
	case got := <-updates:
		require.Len(t, got.SlowSpans, 1)
		assert.Equal(t, "GET /api/devices", got.SlowSpans[0].Name)
		assert.Equal(t, "gateway", got.SlowSpans[0].Service)
		assert.Equal(t, "t-1", got.SlowSpans[0].TraceID)
		assert.InDelta(t, 2350.5, got.SlowSpans[0].DurationMs, 0.01)
	case <-time.After(2 * time.Second):
		t.Fatal("no detail notification")
	}

	// The merged entry is what the cache now serves.
	require.Eventually(t, func() bool {
		merged, err := svc.Summary(context.Background(), "token-1")
		return err == nil && len(merged.SlowSpans) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSlowSpanDetailFailureKeepsSummary(t *testing.T) {
	backend := &fakeBackend{count: 2, failOn: []string{"sort:duration_ms:desc"}}
	svc := newTestService(t, backend)

	updates := make(chan Summary, 8)
	cancel := svc.Subscribe(func(sum Summary) { updates <- sum })
	defer cancel()

	sum, err := svc.Summary(context.Background(), "token-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.Devices.Total)

	// Refresh notification arrives; the failed detail never re-notifies.
	select {
	case got := <-updates:
		assert.Empty(t, got.SlowSpans)
	case <-time.After(2 * time.Second):
		t.Fatal("no refresh notification")
	}
	select {
	case got := <-updates:
		t.Fatalf("unexpected notification: %+v", got)
	case <-time.After(100 * time.Millisecond):
	}

	again, err := svc.Summary(context.Background(), "token-1")
	require.NoError(t, err)
	assert.Empty(t, again.SlowSpans)
}

func TestSubscribeCancel(t *testing.T) {
	// Detail queries fail here so the only notifications are the synchronous
	// refresh ones.
	backend := &fakeBackend{count: 1, failOn: []string{"sort:duration_ms:desc"}}
	svc := newTestService(t, backend)
	ctx := context.Background()

	var mu sync.Mutex
	notified := 0
	cancel := svc.Subscribe(func(Summary) {
		mu.Lock()
		notified++
		mu.Unlock()
	})

	_, err := svc.Summary(ctx, "token-1")
	require.NoError(t, err)
	mu.Lock()
	require.Equal(t, 1, notified)
	mu.Unlock()

	cancel()
	svc.Invalidate("token-1")

	_, err = svc.Summary(ctx, "token-1")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, notified)
	mu.Unlock()
}

func TestInvalidateForcesRefresh(t *testing.T) {
	backend := &fakeBackend{count: 5}
	svc := newTestService(t, backend)
	ctx := context.Background()

	_, err := svc.Summary(ctx, "token-1")
	require.NoError(t, err)
	require.Equal(t, 1, backend.queryCount("in:devices stats:"))

	svc.Invalidate("token-1")

	_, err = svc.Summary(ctx, "token-1")
	require.NoError(t, err)
	assert.Equal(t, 2, backend.queryCount("in:devices stats:"))
}
