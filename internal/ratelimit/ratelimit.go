package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store is the key-value contract the limiter counts against. An
// in-process implementation serves single-instance deployments; a shared
// store (Redis) makes the window visible across instances.
type Store interface {
	// Incr increments the counter for key. The first increment opens a
	// window of the given length. It returns the count after the
	// increment and the time remaining until the window rolls over.
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	// Reset clears the counter for key.
	Reset(ctx context.Context, key string) error
}

// Result reports the outcome of a limiter check.
type Result struct {
	Allowed    bool
	Count      int64
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter enforces a fixed ceiling of attempts per window, keyed by the
// caller (client address + action). A rejected request still counts: the
// window keeps accumulating until it rolls over naturally.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
}

// New creates a Limiter over the given store.
func New(store Store, limit int, window time.Duration) *Limiter {
	return &Limiter{store: store, limit: limit, window: window}
}

// Allow records an attempt for key and reports whether it is within the
// ceiling. RetryAfter carries the time left until the window rolls over.
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	count, remaining, err := l.store.Incr(ctx, key, l.window)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Count:      count,
		Allowed:    count <= int64(l.limit),
		Remaining:  int64(l.limit) - count,
		RetryAfter: remaining,
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	return res, nil
}

// Reset clears the window for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.store.Reset(ctx, key)
}

// Limit returns the configured ceiling.
func (l *Limiter) Limit() int {
	return l.limit
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// MemoryStore is an in-process Store backed by a mutex-guarded map.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
}

type memoryWindow struct {
	count int64
	start time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*memoryWindow)}
}

// Incr implements Store.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	w, ok := s.windows[key]
	if !ok || now.Sub(w.start) >= window {
		// The window rolled over; this attempt opens a fresh one.
		w = &memoryWindow{count: 0, start: now}
		s.windows[key] = w
	}
	w.count++

	remaining := window - now.Sub(w.start)
	return w.count, remaining, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}
