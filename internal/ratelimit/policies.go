package ratelimit

import (
	"menu-engagement/internal/config"
)

// Policy names.
const (
	PolicyGeneral = "general"
	PolicyAuth    = "auth"
	PolicyPayment = "payment"
	PolicyUpload  = "upload"
)

// Set holds one Limiter per named policy, all sharing a Store.
type Set struct {
	General *Limiter
	Auth    *Limiter
	Payment *Limiter
	Upload  *Limiter
}

// NewSet builds the named limiters from configuration.
func NewSet(cfg config.RateLimitConfig, store Store, opts ...Option) (*Set, error) {
	build := func(name string, p config.PolicyConfig) (*Limiter, error) {
		return NewLimiter(Policy{
			Name:    name,
			Max:     p.Max,
			Window:  p.Window,
			Message: p.Message,
		}, store, opts...)
	}

	var (
		s   Set
		err error
	)
	if s.General, err = build(PolicyGeneral, cfg.General); err != nil {
		return nil, err
	}
	if s.Auth, err = build(PolicyAuth, cfg.Auth); err != nil {
		return nil, err
	}
	if s.Payment, err = build(PolicyPayment, cfg.Payment); err != nil {
		return nil, err
	}
	if s.Upload, err = build(PolicyUpload, cfg.Upload); err != nil {
		return nil, err
	}
	return &s, nil
}

// ByName returns the limiter for a policy name.
func (s *Set) ByName(name string) (*Limiter, bool) {
	switch name {
	case PolicyGeneral:
		return s.General, true
	case PolicyAuth:
		return s.Auth, true
	case PolicyPayment:
		return s.Payment, true
	case PolicyUpload:
		return s.Upload, true
	}
	return nil, false
}
