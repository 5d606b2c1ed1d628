package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"

	"github.com/netsight-io/netsight/pkg/models"
)

// FakeBackend is the scripted query backend the gateway talks to during e2e
// tests. It serves the HTTP query/poller/perf endpoints plus the /api/stream
// WebSocket, records every query it sees, and answers from fixtures.
type FakeBackend struct {
	mu sync.Mutex

	queryCalls    []string
	streamQueries []string

	// counts answers stats queries: fixtures are checked in the order they
	// were added and the first substring match wins. Queries with no match
	// answer zero.
	counts []countFixture

	// spans answers the slow-span detail query (sorted by duration).
	spans []map[string]any

	// paths answers plain REST endpoints by URL path.
	paths map[string]any

	// scripts are per-connection stream behaviors, consumed in connection
	// order; the last one repeats for any further connections.
	scripts []streamScript

	srv *httptest.Server
}

type countFixture struct {
	substr string
	total  int64
}

// streamScript is one scripted stream connection: frames written in order,
// then a graceful close or an abrupt teardown without a close handshake.
type streamScript struct {
	frames    []models.StreamMessage
	closeCode websocket.StatusCode
	abrupt    bool
}

// NewFakeBackend starts the backend with empty fixtures and registers
// shutdown with t.Cleanup.
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()
	b := &FakeBackend{paths: make(map[string]any)}
	b.srv = httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(b.srv.Close)
	return b
}

// URL is the backend base URL for the gateway's config.
func (b *FakeBackend) URL() string { return b.srv.URL }

// SetCount scripts the total returned for stats queries containing substr.
func (b *FakeBackend) SetCount(substr string, total int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts = append(b.counts, countFixture{substr: substr, total: total})
}

// SetSpans scripts the slow-span detail rows.
func (b *FakeBackend) SetSpans(rows []map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spans = rows
}

// SetPath scripts a REST endpoint response by URL path.
func (b *FakeBackend) SetPath(path string, body any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paths[path] = body
}

// SetStream scripts the frames written to every stream connection and the
// close status that follows them.
func (b *FakeBackend) SetStream(frames []models.StreamMessage, closeCode websocket.StatusCode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scripts = []streamScript{{frames: frames, closeCode: closeCode}}
}

// AddStream appends a stream script: the n-th connection plays the n-th
// script.
func (b *FakeBackend) AddStream(frames []models.StreamMessage, closeCode websocket.StatusCode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scripts = append(b.scripts, streamScript{frames: frames, closeCode: closeCode})
}

// AddStreamDrop appends a script that tears the connection down after its
// frames without a close handshake, simulating an abnormal loss.
func (b *FakeBackend) AddStreamDrop(frames []models.StreamMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scripts = append(b.scripts, streamScript{frames: frames, abrupt: true})
}

// QueryCount reports how many recorded queries contain substr.
func (b *FakeBackend) QueryCount(substr string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, q := range b.queryCalls {
		if strings.Contains(q, substr) {
			n++
		}
	}
	return n
}

// StreamQueries returns the query parameters seen on stream connections.
func (b *FakeBackend) StreamQueries() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.streamQueries))
	copy(out, b.streamQueries)
	return out
}

func (b *FakeBackend) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/query":
		b.handleQuery(w, r)
	case r.URL.Path == "/api/stream":
		b.handleStream(w, r)
	default:
		b.mu.Lock()
		body, ok := b.paths[r.URL.Path]
		b.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
}

func (b *FakeBackend) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	b.queryCalls = append(b.queryCalls, req.Query)
	var rows []map[string]any
	if strings.Contains(req.Query, "sort:duration_ms:desc") {
		rows = b.spans
	} else {
		var total int64
		for _, f := range b.counts {
			if strings.Contains(req.Query, f.substr) {
				total = f.total
				break
			}
		}
		rows = []map[string]any{{"total": total}}
	}
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"results": rows})
}

func (b *FakeBackend) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	b.mu.Lock()
	b.streamQueries = append(b.streamQueries, r.URL.Query().Get("query"))
	script := streamScript{closeCode: websocket.StatusNormalClosure}
	if n := len(b.scripts); n > 0 {
		i := len(b.streamQueries) - 1
		if i >= n {
			i = n - 1
		}
		script = b.scripts[i]
	}
	b.mu.Unlock()

	ctx := r.Context()
	for _, frame := range script.frames {
		data, err := json.Marshal(frame)
		if err != nil {
			break
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return
		}
	}
	if script.abrupt {
		_ = conn.CloseNow()
		return
	}
	_ = conn.Close(script.closeCode, "")
}
