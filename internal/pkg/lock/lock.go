// Package lock provides per-key mutual exclusion for read-modify-write
// sequences against the database, such as updating one diner's streak.
package lock

import (
	"context"
	"sync"
	"time"
)

// keyMutex is a one-slot semaphore so waiters can give up on cancellation.
type keyMutex struct {
	sem  chan struct{}
	refs int
}

// KeyLock serialises work per key. Entries are dropped once no goroutine
// holds or waits for them, so the table only grows with live contention.
type KeyLock[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*keyMutex
}

// New creates an empty KeyLock.
func New[K comparable]() *KeyLock[K] {
	return &KeyLock[K]{locks: make(map[K]*keyMutex)}
}

// acquireRef returns the mutex for key with its reference count bumped.
func (l *KeyLock[K]) acquireRef(key K) *keyMutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[key]
	if !ok {
		m = &keyMutex{sem: make(chan struct{}, 1)}
		l.locks[key] = m
	}
	m.refs++
	return m
}

func (l *KeyLock[K]) releaseRef(key K, m *keyMutex) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m.refs--
	if m.refs == 0 {
		delete(l.locks, key)
	}
}

// Lock blocks until the lock for key is held.
func (l *KeyLock[K]) Lock(key K) {
	m := l.acquireRef(key)
	m.sem <- struct{}{}
}

// Unlock releases the lock for key. Unlocking a key that is not held is a no-op.
func (l *KeyLock[K]) Unlock(key K) {
	l.mu.Lock()
	m, ok := l.locks[key]
	l.mu.Unlock()
	if !ok {
		return
	}

	select {
	case <-m.sem:
		l.releaseRef(key, m)
	default:
	}
}

// TryLock acquires the lock for key without blocking.
func (l *KeyLock[K]) TryLock(key K) bool {
	m := l.acquireRef(key)
	select {
	case m.sem <- struct{}{}:
		return true
	default:
		l.releaseRef(key, m)
		return false
	}
}

// LockContext acquires the lock for key, giving up when ctx is done or
// timeout elapses. A zero timeout waits for ctx only.
func (l *KeyLock[K]) LockContext(ctx context.Context, key K, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	m := l.acquireRef(key)
	select {
	case m.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.releaseRef(key, m)
		if ctx.Err() == context.DeadlineExceeded {
			return ErrLockTimeout
		}
		return ctx.Err()
	}
}

// WithLock executes fn while holding the lock for key.
func (l *KeyLock[K]) WithLock(key K, fn func() error) error {
	l.Lock(key)
	defer l.Unlock(key)
	return fn()
}

// WithLockContext executes fn while holding the lock for key, honouring
// ctx and timeout while waiting.
func (l *KeyLock[K]) WithLockContext(ctx context.Context, key K, timeout time.Duration, fn func() error) error {
	if err := l.LockContext(ctx, key, timeout); err != nil {
		return err
	}
	defer l.Unlock(key)
	return fn()
}

// IsLocked reports whether key is currently held. Point-in-time only.
func (l *KeyLock[K]) IsLocked(key K) bool {
	l.mu.Lock()
	m, ok := l.locks[key]
	l.mu.Unlock()
	return ok && len(m.sem) == 1
}

// Len returns the number of keys with holders or waiters.
func (l *KeyLock[K]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
