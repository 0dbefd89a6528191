package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// MemoryStore is a process-local Store. Expired windows are purged lazily
// during Take, at most once per sweepEvery.
type MemoryStore struct {
	mu         sync.Mutex
	windows    map[string]*window
	sweepEvery time.Duration
	lastSweep  time.Time
}

// NewMemoryStore creates a MemoryStore. A zero sweepEvery purges on every call.
func NewMemoryStore(sweepEvery time.Duration) *MemoryStore {
	return &MemoryStore{
		windows:    make(map[string]*window),
		sweepEvery: sweepEvery,
	}
}

// Take implements Store.
func (s *MemoryStore) Take(_ context.Context, key string, max int, win time.Duration, now time.Time) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked(now)

	w, ok := s.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(win)}
		s.windows[key] = w
		return Usage{Allowed: true, Count: w.count, ResetAt: w.resetAt}, nil
	}

	if w.count < max {
		w.count++
		return Usage{Allowed: true, Count: w.count, ResetAt: w.resetAt}, nil
	}

	return Usage{Allowed: false, Count: w.count, ResetAt: w.resetAt}, nil
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	if s.sweepEvery > 0 && now.Sub(s.lastSweep) < s.sweepEvery {
		return
	}
	s.lastSweep = now
	for k, w := range s.windows {
		if now.After(w.resetAt) {
			delete(s.windows, k)
		}
	}
}

// Len returns the number of tracked windows.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
