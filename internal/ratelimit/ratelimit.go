// Package ratelimit implements fixed-window request admission per caller.
//
// A Limiter applies one Policy. Window state lives in a Store: MemoryStore
// keeps it in the process, so every replica enforces its own limit, and
// RedisStore shares it across replicas with the same algorithm.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Policy is a named admission limit: at most Max requests per Window.
type Policy struct {
	Name    string
	Max     int
	Window  time.Duration
	Message string
}

// Validate checks that the policy can admit anything at all.
func (p Policy) Validate() error {
	if p.Max <= 0 {
		return fmt.Errorf("ratelimit policy %q: max must be positive", p.Name)
	}
	if p.Window <= 0 {
		return fmt.Errorf("ratelimit policy %q: window must be positive", p.Name)
	}
	return nil
}

// Usage is the state of one key's window after a Take.
type Usage struct {
	Allowed bool
	Count   int
	ResetAt time.Time
}

// Store holds per-key windows. Take must perform the whole
// check-and-increment atomically for a key.
type Store interface {
	Take(ctx context.Context, key string, max int, window time.Duration, now time.Time) (Usage, error)
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed           bool
	Key               string
	Limit             int
	Remaining         int
	ResetAt           time.Time
	RetryAfterSeconds int
	Message           string
}

// Limiter applies a Policy using a Store.
type Limiter struct {
	policy Policy
	store  Store
	now    func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter creates a Limiter for policy backed by store.
func NewLimiter(policy Policy, store Store, opts ...Option) (*Limiter, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("ratelimit policy %q: store is required", policy.Name)
	}
	l := &Limiter{policy: policy, store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Policy returns the limiter's policy.
func (l *Limiter) Policy() Policy {
	return l.policy
}

// CheckAndConsume counts one request for key and reports whether it is
// admitted. A denial is a normal Decision, not an error; errors only come
// from the Store.
func (l *Limiter) CheckAndConsume(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	usage, err := l.store.Take(ctx, l.policy.Name+":"+key, l.policy.Max, l.policy.Window, now)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit %s: %w", l.policy.Name, err)
	}

	d := Decision{
		Allowed:   usage.Allowed,
		Key:       key,
		Limit:     l.policy.Max,
		Remaining: l.policy.Max - usage.Count,
		ResetAt:   usage.ResetAt,
	}
	if d.Remaining < 0 || !d.Allowed {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfterSeconds = RetryAfterSeconds(usage.ResetAt, now)
		d.Message = l.policy.Message
	}
	return d, nil
}

// RetryAfterSeconds rounds the time until resetAt up to whole seconds so a
// caller never retries early. It is never negative.
func RetryAfterSeconds(resetAt, now time.Time) int {
	d := resetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
