package e2e

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsight-io/netsight/pkg/analytics"
	"github.com/netsight-io/netsight/pkg/models"
)

// Dashboard API test — exercises the query proxy, analytics summary, poller
// and perf endpoints over real HTTP against a scripted backend.

func TestGatewayEndpoints(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	backend := NewFakeBackend(t)
	backend.SetCount("in:devices stats:", 12)
	backend.SetCount("is_available:true", 9)
	backend.SetCount("is_available:false", 3)
	backend.SetCount("in:flows", 7)
	backend.SetSpans([]map[string]any{{
		"trace_id":          "t-1",
		"root_span_id":      "s-1",
		"root_span_name":    "GET /api/devices",
		"root_service_name": "gateway",
		"duration_ms":       2350.5,
		"timestamp":         "2025-06-01T12:00:00Z",
	}})
	backend.SetPath("/api/pollers", []map[string]any{
		{"poller_id": "edge-1", "is_healthy": true},
	})
	backend.SetPath("/api/pollers/edge-1/rperf", []map[string]any{
		{"target": "edge-1", "bits_per_second": 9.6e8, "timestamp": "2025-06-01T12:00:00Z"},
	})

	app := StartTestApp(t, backend)

	t.Run("Health", func(t *testing.T) {
		var health map[string]any
		resp := app.Get("/healthz", "", &health)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "healthy", health["status"])
		assert.NotEmpty(t, health["version"])
	})

	t.Run("QueryProxyCaches", func(t *testing.T) {
		body := `{"query":"in:flows dst_port:443 stats:\"count() as total\"","limit":100}`

		var first models.QueryResponse
		resp := app.PostQuery(body, "", &first)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, first.Results, 1)
		assert.Contains(t, string(first.Results[0]), `"total":7`)

		var second models.QueryResponse
		resp = app.PostQuery(body, "", &second)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		assert.Equal(t, 1, backend.QueryCount("in:flows"), "identical queries should share one backend call")
	})

	t.Run("Summary", func(t *testing.T) {
		var sum analytics.Summary
		resp := app.Get("/api/summary", "", &sum)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, int64(12), sum.Devices.Total)
		assert.Equal(t, int64(9), sum.Devices.Online)
		assert.Equal(t, int64(3), sum.Devices.Offline)
		assert.False(t, sum.GeneratedAt.IsZero())

		// The slow-span detail lands asynchronously and merges into the
		// cached summary.
		require.Eventually(t, func() bool {
			var merged analytics.Summary
			if app.Get("/api/summary", "", &merged).StatusCode != http.StatusOK {
				return false
			}
			return len(merged.SlowSpans) == 1
		}, 5*time.Second, 50*time.Millisecond)

		assert.Equal(t, 1, backend.QueryCount("in:devices stats:"), "summary refreshes should be cached")
	})

	t.Run("Pollers", func(t *testing.T) {
		var pollers []models.Poller
		resp := app.Get("/api/pollers", "", &pollers)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, pollers, 1)
		assert.Equal(t, "edge-1", pollers[0].PollerID)
	})

	t.Run("Rperf", func(t *testing.T) {
		var series []models.RperfMetric
		resp := app.Get("/api/pollers/edge-1/rperf", "", &series)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, series, 1)
		assert.Equal(t, "edge-1", series[0].Target)

		// Repeat hits the cache.
		app.Get("/api/pollers/edge-1/rperf", "", &series)
	})
}

func TestStreamBridgeEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	backend := NewFakeBackend(t)
	backend.SetStream([]models.StreamMessage{
		{Type: models.MessageTypeData, Data: []byte(`[{"device_id":"d-1"}]`)},
		{Type: models.MessageTypeData, Data: []byte(`[{"device_id":"d-2"}]`)},
		{Type: models.MessageTypeComplete},
	}, websocket.StatusNormalClosure)

	app := StartTestApp(t, backend)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ws, err := WSConnect(ctx, app.WSURL+"?query=in:devices")
	require.NoError(t, err)
	defer func() { _ = ws.Close() }()

	_, err = ws.WaitForType(models.MessageTypeComplete, 5*time.Second)
	require.NoError(t, err)

	dataFrames := ws.EventsByType(models.MessageTypeData)
	require.Len(t, dataFrames, 2)
	assert.Contains(t, string(dataFrames[0].Msg.Data), "d-1")
	assert.Contains(t, string(dataFrames[1].Msg.Data), "d-2")

	// After the completion frame the bridge closes the browser side cleanly.
	require.NoError(t, ws.WaitDone(5*time.Second))
	assert.Equal(t, websocket.StatusNormalClosure, ws.CloseStatus())

	require.Equal(t, []string{"in:devices"}, backend.StreamQueries())
}

func TestStreamBridgeSurvivesBackendDrop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	backend := NewFakeBackend(t)
	// First backend connection dies mid-stream without a close handshake;
	// the second carries the stream to completion.
	backend.AddStreamDrop([]models.StreamMessage{
		{Type: models.MessageTypeData, Data: []byte(`[{"device_id":"d-1"}]`)},
	})
	backend.AddStream([]models.StreamMessage{
		{Type: models.MessageTypeData, Data: []byte(`[{"device_id":"d-2"}]`)},
		{Type: models.MessageTypeComplete},
	}, websocket.StatusNormalClosure)

	app := StartTestApp(t, backend, WithStream(20*time.Millisecond, 5))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ws, err := WSConnect(ctx, app.WSURL+"?query=in:devices")
	require.NoError(t, err)
	defer func() { _ = ws.Close() }()

	_, err = ws.WaitForType(models.MessageTypeComplete, 5*time.Second)
	require.NoError(t, err)

	// Frames from both backend connections reach the browser in order.
	dataFrames := ws.EventsByType(models.MessageTypeData)
	require.Len(t, dataFrames, 2)
	assert.Contains(t, string(dataFrames[0].Msg.Data), "d-1")
	assert.Contains(t, string(dataFrames[1].Msg.Data), "d-2")

	// The drop surfaced one error frame before the reconnect.
	errFrames := ws.EventsByType(models.MessageTypeError)
	require.NotEmpty(t, errFrames)
	assert.Contains(t, errFrames[0].Msg.Error, "connection lost unexpectedly")

	require.NoError(t, ws.WaitDone(5*time.Second))
	assert.Equal(t, websocket.StatusNormalClosure, ws.CloseStatus())

	// The bridge re-dialed the backend with the original query.
	require.Equal(t, []string{"in:devices", "in:devices"}, backend.StreamQueries())
}

func TestAPIKeyGuardEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	t.Setenv("NETSIGHT_E2E_API_KEY", "sekret")

	backend := NewFakeBackend(t)
	backend.SetPath("/api/pollers", []map[string]any{})
	app := StartTestApp(t, backend, WithAPIKeyEnv("NETSIGHT_E2E_API_KEY"))

	resp := app.Get("/api/pollers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = app.Get("/api/pollers", "wrong-key", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = app.Get("/api/pollers", "sekret", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Health stays reachable without a key.
	resp = app.Get("/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
