// Package store provides a uniform key/value, hash, list, and set interface
// over a shared cache. Values are serialized to JSON transparently; callers
// work with their own types.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrKeyNotFound is returned when a key (or list element, or hash
	// field) does not exist.
	ErrKeyNotFound = errors.New("key not found")

	// ErrUnavailable is returned when the underlying store cannot be
	// reached. Callers are expected to treat this as recoverable: the
	// rate limiter and session middleware fail open, the job processor
	// skips the poll tick.
	ErrUnavailable = errors.New("cache store unavailable")
)

// Store is the cache contract shared by sessions, rate limiting, the job
// queue, and notification fan-out. Implementations must map "not found"
// conditions to ErrKeyNotFound and connectivity failures to ErrUnavailable.
type Store interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	Incr(ctx context.Context, key string) (int64, error)

	HGet(ctx context.Context, key, field string, dest any) error
	HSet(ctx context.Context, key, field string, value any) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) (int64, error)

	LPush(ctx context.Context, key string, values ...any) (int64, error)
	RPop(ctx context.Context, key string, dest any) error
	LLen(ctx context.Context, key string) (int64, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LTrim(ctx context.Context, key string, start, stop int64) error

	SAdd(ctx context.Context, key string, members ...string) (int64, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	SRem(ctx context.Context, key string, members ...string) (int64, error)
	SCard(ctx context.Context, key string) (int64, error)

	Keys(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
	MemoryUsage(ctx context.Context) (int64, error)
	Close() error
}
