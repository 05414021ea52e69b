// Package ratelimit implements a sliding-window log limiter keyed by an
// arbitrary string, usually the resolved client address.
package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of recording one request
type Result struct {
	Allowed bool
	// Oldest is the earliest request still inside the window. Set only when
	// the request was denied.
	Oldest time.Time
}

// Store records requests and decides whether the window has room.
// Implementations must make the check-and-record step atomic per key.
type Store interface {
	Hit(ctx context.Context, key string, now time.Time) (Result, error)
}

// Decision is returned to callers of Limiter.Allow
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter applies a Store under a key prefix
type Limiter struct {
	store  Store
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewLimiter(store Store, window time.Duration, prefix string) *Limiter {
	return &Limiter{
		store:  store,
		window: window,
		prefix: prefix,
		now:    time.Now,
	}
}

// Allow records a request for key. Denied requests are not recorded.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()

	res, err := l.store.Hit(ctx, l.prefix+key, now)
	if err != nil {
		return Decision{}, err
	}
	if res.Allowed {
		return Decision{Allowed: true}, nil
	}

	retry := res.Oldest.Add(l.window).Sub(now)
	if retry < time.Second {
		retry = time.Second
	}
	return Decision{Allowed: false, RetryAfter: retry}, nil
}
