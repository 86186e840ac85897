// Package ratelimit implements fixed-window, sliding-window, and
// burst-aware request throttling over the shared cache store.
//
// Rate limiting is protective, not a correctness mechanism: every limiter
// fails open when the store is unreachable, logging the condition instead
// of blocking traffic.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"medivault/internal/domain"
	"medivault/internal/observability"
	"medivault/internal/store"
)

const (
	keyPrefix = "rate_limit:"

	// burstWindow is the fixed secondary window evaluated by the
	// burst-aware limiter.
	burstWindow = time.Minute
)

// Checker decides whether a request identified by an actor-scoped
// identifier is admitted.
type Checker interface {
	Check(ctx context.Context, identifier string) (*domain.RateLimitResult, error)
}

// FixedWindow admits up to limit requests per window. The window's TTL is
// reset on every accepted request rather than preserved from the first
// acceptance; see the package tests for the exact semantics.
type FixedWindow struct {
	store  store.Store
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewFixedWindow(s store.Store, limit int, window time.Duration) *FixedWindow {
	return &FixedWindow{store: s, limit: limit, window: window, now: time.Now}
}

func (f *FixedWindow) Check(ctx context.Context, identifier string) (*domain.RateLimitResult, error) {
	key := keyPrefix + identifier
	now := f.now()

	count, err := f.store.Incr(ctx, key)
	if err != nil {
		return f.failOpen(identifier, now, err), nil
	}

	if count > int64(f.limit) {
		// denied requests do not renew the window
		ttl, err := f.store.TTL(ctx, key)
		if err != nil || ttl <= 0 {
			ttl = f.window
		}
		return &domain.RateLimitResult{
			Allowed:    false,
			Limit:      f.limit,
			Remaining:  0,
			ResetAt:    now.Add(ttl),
			RetryAfter: ttl,
		}, nil
	}

	if err := f.store.Expire(ctx, key, f.window); err != nil {
		slog.Warn("failed to set rate limit window ttl",
			slog.String("identifier", identifier),
			slog.String("error", err.Error()))
	}

	return &domain.RateLimitResult{
		Allowed:   true,
		Limit:     f.limit,
		Remaining: f.limit - int(count),
		ResetAt:   now.Add(f.window),
	}, nil
}

func (f *FixedWindow) failOpen(identifier string, now time.Time, err error) *domain.RateLimitResult {
	observability.RateLimitFailOpen.Inc()
	slog.Warn("rate limit store unavailable, failing open",
		slog.String("identifier", identifier),
		slog.String("error", err.Error()))
	return &domain.RateLimitResult{
		Allowed:   true,
		Limit:     f.limit,
		Remaining: f.limit,
		ResetAt:   now.Add(f.window),
	}
}

// SlidingWindow admits up to limit requests within any trailing window.
// It keeps an ordered log of request timestamps per identifier, pruning
// entries older than the window before each admission decision.
type SlidingWindow struct {
	store  store.Store
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewSlidingWindow(s store.Store, limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{store: s, limit: limit, window: window, now: time.Now}
}

func (sw *SlidingWindow) Check(ctx context.Context, identifier string) (*domain.RateLimitResult, error) {
	key := keyPrefix + "sliding:" + identifier
	now := sw.now()

	var stamps []int64
	err := sw.store.Get(ctx, key, &stamps)
	if err != nil && !errors.Is(err, store.ErrKeyNotFound) {
		observability.RateLimitFailOpen.Inc()
		slog.Warn("rate limit store unavailable, failing open",
			slog.String("identifier", identifier),
			slog.String("error", err.Error()))
		return &domain.RateLimitResult{
			Allowed:   true,
			Limit:     sw.limit,
			Remaining: sw.limit,
			ResetAt:   now.Add(sw.window),
		}, nil
	}

	cutoff := now.Add(-sw.window).UnixMilli()
	recent := stamps[:0]
	for _, ts := range stamps {
		if ts > cutoff {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= sw.limit {
		oldest := time.UnixMilli(recent[0]).UTC()
		resetAt := oldest.Add(sw.window)
		return &domain.RateLimitResult{
			Allowed:    false,
			Limit:      sw.limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}, nil
	}

	recent = append(recent, now.UnixMilli())
	if err := sw.store.Set(ctx, key, recent, sw.window); err != nil {
		slog.Warn("failed to persist sliding window log",
			slog.String("identifier", identifier),
			slog.String("error", err.Error()))
	}

	return &domain.RateLimitResult{
		Allowed:   true,
		Limit:     sw.limit,
		Remaining: sw.limit - len(recent),
		ResetAt:   now.Add(sw.window),
	}, nil
}

// Burst evaluates a base fixed window and a secondary one-minute window
// with its own limit; a request is admitted only when both are within
// bounds. Reported remaining is the minimum of the two.
type Burst struct {
	base  *FixedWindow
	burst *FixedWindow
}

func NewBurst(s store.Store, baseLimit, burstLimit int, window time.Duration) *Burst {
	return &Burst{
		base:  NewFixedWindow(s, baseLimit, window),
		burst: NewFixedWindow(s, burstLimit, burstWindow),
	}
}

func (b *Burst) Check(ctx context.Context, identifier string) (*domain.RateLimitResult, error) {
	baseRes, err := b.base.Check(ctx, identifier)
	if err != nil {
		return baseRes, err
	}
	if !baseRes.Allowed {
		// base denial does not consume the burst window
		return baseRes, nil
	}
	burstRes, err := b.burst.Check(ctx, identifier+":burst")
	if err != nil {
		return burstRes, err
	}

	res := &domain.RateLimitResult{
		Allowed:   baseRes.Allowed && burstRes.Allowed,
		Limit:     baseRes.Limit,
		Remaining: min(baseRes.Remaining, burstRes.Remaining),
		ResetAt:   baseRes.ResetAt,
	}
	if burstRes.ResetAt.After(res.ResetAt) {
		res.ResetAt = burstRes.ResetAt
	}
	if !res.Allowed {
		res.RetryAfter = max(baseRes.RetryAfter, burstRes.RetryAfter)
	}
	return res, nil
}
