// Package ratelimit gates requests per identity with a fixed window counted
// in a shared store. The window starts at the first request for a key and
// lasts Window; up to Limit requests are allowed anywhere inside it.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Outcome tags the result of a limiter check.
type Outcome int

const (
	// Allowed means the request was counted and may proceed.
	Allowed Outcome = iota
	// Throttled means the window is exhausted.
	Throttled
	// Unavailable means the store could not answer; callers fail open.
	Unavailable
)

func (o Outcome) String() string {
	switch o {
	case Allowed:
		return "allowed"
	case Throttled:
		return "throttled"
	default:
		return "unavailable"
	}
}

// Config holds limiter parameters.
type Config struct {
	Limit        int
	Window       time.Duration
	StoreTimeout time.Duration
}

// Result describes one check.
type Result struct {
	Outcome       Outcome
	Limit         int
	Count         int64
	Remaining     int
	RetryAfter    time.Duration
	WindowStarted bool
	// Err is set only for Unavailable.
	Err error
}

// Limiter checks keys against a CounterStore.
type Limiter struct {
	store CounterStore
	cfg   Config
}

// New constructs a Limiter.
func New(store CounterStore, cfg Config) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("ratelimit: store required")
	}
	if cfg.Limit <= 0 {
		return nil, errors.New("ratelimit: limit must be positive")
	}
	if cfg.Window <= 0 {
		return nil, errors.New("ratelimit: window must be positive")
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 250 * time.Millisecond
	}
	return &Limiter{store: store, cfg: cfg}, nil
}

// Config returns the limiter parameters.
func (l *Limiter) Config() Config {
	return l.cfg
}

// Check counts one request for key. Store failures, including timeouts, are
// reported as Unavailable rather than returned as errors.
func (l *Limiter) Check(ctx context.Context, key string) Result {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.StoreTimeout)
	defer cancel()

	take, err := l.store.Take(ctx, key, l.cfg.Limit, l.cfg.Window)
	if err != nil {
		return Result{Outcome: Unavailable, Limit: l.cfg.Limit, Err: err}
	}

	res := Result{
		Limit:         l.cfg.Limit,
		Count:         take.Count,
		RetryAfter:    take.TTL,
		WindowStarted: take.WindowStarted,
	}
	if remaining := l.cfg.Limit - int(take.Count); remaining > 0 {
		res.Remaining = remaining
	}
	if !take.Allowed {
		res.Outcome = Throttled
		if res.RetryAfter <= 0 {
			res.RetryAfter = l.cfg.Window
		}
		return res
	}
	res.Outcome = Allowed
	return res
}
