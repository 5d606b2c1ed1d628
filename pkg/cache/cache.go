// Package cache provides a request-deduplicating TTL cache. Concurrent
// callers for the same key share one producer call, fresh entries are served
// from memory, and failed refreshes fall back to stale data when a previous
// value exists. A background sweeper bounds memory growth.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
	ttl      time.Duration
}

// Store is a thread-safe in-memory cache keyed by canonical request
// signatures. At most one producer call per key is in flight at any time;
// callers that arrive while one is outstanding observe its outcome.
type Store[V any] struct {
	name          string
	sweepInterval time.Duration

	mu      sync.RWMutex
	entries map[string]*entry[V]
	pending map[string]int

	flight singleflight.Group

	logger  *slog.Logger
	metrics *storeMetrics

	// nowFn is replaced in tests to control entry age.
	nowFn func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a named store. Metrics are registered on reg when it is
// non-nil; sweepInterval defaults to one minute.
func New[V any](name string, sweepInterval time.Duration, reg prometheus.Registerer) *Store[V] {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	return &Store[V]{
		name:          name,
		sweepInterval: sweepInterval,
		entries:       make(map[string]*entry[V]),
		pending:       make(map[string]int),
		logger:        slog.With("store", name),
		metrics:       newStoreMetrics(name, reg),
		nowFn:         time.Now,
	}
}

// Get returns the value for key, producing it at most once across concurrent
// callers:
//
//  1. A fresh entry (age < ttl) is returned without calling producer.
//  2. If a producer call for key is already in flight, the caller joins it
//     and observes the same outcome.
//  3. Otherwise producer runs, registered as in flight before it is awaited.
//  4. On success the result is stored with a fresh timestamp.
//  5. On failure a previously stored value is returned as a stale fallback;
//     without one the error propagates.
//
// A ttl of zero or less disables caching for the call: nothing is stored and
// no stale fallback applies, though concurrent callers still share one
// producer call. A producer that panics is treated as one that returned an
// error.
func (s *Store[V]) Get(ctx context.Context, key string, ttl time.Duration, producer func(context.Context) (V, error)) (V, error) {
	if ttl > 0 {
		if v, ok := s.lookupFresh(key, ttl); ok {
			s.metrics.hit()
			return v, nil
		}
	}
	s.metrics.miss()

	s.trackFlight(key)
	defer s.untrackFlight(key)

	result, err, shared := s.flight.Do(key, func() (any, error) {
		// Re-check freshness: another flight may have stored the value
		// between this caller's miss and the flight starting.
		if ttl > 0 {
			if v, ok := s.lookupFresh(key, ttl); ok {
				return v, nil
			}
		}

		v, err := runProducer(ctx, producer)
		if err != nil {
			if ttl > 0 {
				if stale, ok := s.lookupAny(key); ok {
					s.logger.Warn("Serving stale entry after refresh failure",
						"key", key, "error", err)
					s.metrics.staleFallback()
					return stale, nil
				}
			}
			return nil, err
		}

		if ttl > 0 {
			s.set(key, v, ttl)
		}
		return v, nil
	})
	if shared {
		s.metrics.join()
	}
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}

// Update applies fn to the stored value for key, keeping its original
// timestamp. Used for late-arriving detail merges that must not extend an
// entry's freshness. Returns the updated value and whether key was present.
func (s *Store[V]) Update(key string, fn func(V) V) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	e.value = fn(e.value)
	return e.value, true
}

// Invalidate removes one entry and forgets any in-flight call for its key,
// so the next caller starts a fresh producer call.
func (s *Store[V]) Invalidate(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	inFlight := s.pending[key] > 0
	s.mu.Unlock()

	if inFlight {
		s.flight.Forget(key)
	}
}

// InvalidateAll clears the store and forgets all in-flight calls.
func (s *Store[V]) InvalidateAll() {
	s.mu.Lock()
	s.entries = make(map[string]*entry[V])
	keys := make([]string, 0, len(s.pending))
	for key := range s.pending {
		keys = append(keys, key)
	}
	s.mu.Unlock()

	for _, key := range keys {
		s.flight.Forget(key)
	}
}

// Len returns the number of stored entries.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Start launches the background sweep loop.
func (s *Store[V]) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Debug("Cache sweeper started", "interval", s.sweepInterval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Store[V]) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

func (s *Store[V]) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep evicts entries whose age exceeds twice their ttl, independent of
// access patterns.
func (s *Store[V]) sweep() {
	now := s.nowFn()
	evicted := 0

	s.mu.Lock()
	for key, e := range s.entries {
		if now.Sub(e.storedAt) > 2*e.ttl {
			delete(s.entries, key)
			evicted++
		}
	}
	remaining := len(s.entries)
	s.mu.Unlock()

	s.metrics.sweep(evicted, remaining)
	if evicted > 0 {
		s.logger.Debug("Swept expired cache entries", "evicted", evicted, "remaining", remaining)
	}
}

func (s *Store[V]) lookupFresh(key string, ttl time.Duration) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || s.nowFn().Sub(e.storedAt) >= ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

// lookupAny returns the stored value regardless of age.
func (s *Store[V]) lookupAny(key string) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (s *Store[V]) set(key string, v V, ttl time.Duration) {
	s.mu.Lock()
	s.entries[key] = &entry[V]{value: v, storedAt: s.nowFn(), ttl: ttl}
	s.mu.Unlock()
}

func (s *Store[V]) trackFlight(key string) {
	s.mu.Lock()
	s.pending[key]++
	s.mu.Unlock()
}

func (s *Store[V]) untrackFlight(key string) {
	s.mu.Lock()
	s.pending[key]--
	if s.pending[key] <= 0 {
		delete(s.pending, key)
	}
	s.mu.Unlock()
}

func runProducer[V any](ctx context.Context, producer func(context.Context) (V, error)) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("producer panicked: %v", r)
		}
	}()
	return producer(ctx)
}
