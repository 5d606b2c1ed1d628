package srql

import (
	"fmt"
	"hash/fnv"
	"time"
)

// TimeWindow bounds a query to [Start, End).
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// LastWindow returns the window covering the d duration ending at now.
func LastWindow(now time.Time, d time.Duration) TimeWindow {
	return TimeWindow{Start: now.Add(-d), End: now}
}

// IsZero reports whether neither bound is set.
func (w TimeWindow) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Round snaps both endpoints to the nearest minute. Requests issued moments
// apart against the same logical window must fold to one cache key instead
// of each minting their own.
func (w TimeWindow) Round() TimeWindow {
	return TimeWindow{
		Start: w.Start.Round(time.Minute),
		End:   w.End.Round(time.Minute),
	}
}

// CacheKey derives the canonical cache key for a logical request: the query
// text, a digest of the caller's token (so raw credentials never appear in
// keys or logs), and the minute-rounded time window.
func CacheKey(query, token string, w TimeWindow) string {
	key := "q=" + query
	if token != "" {
		key += "|t=" + digest(token)
	}
	if !w.IsZero() {
		r := w.Round()
		key += fmt.Sprintf("|w=%d-%d", r.Start.Unix(), r.End.Unix())
	}
	return key
}

func digest(s string) string {
	h := fnv.New64a()
	h.Write([]byte(s))
	return fmt.Sprintf("%016x", h.Sum64())
}
