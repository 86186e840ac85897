package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store over a Redis connection.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// wrapErr maps go-redis errors onto the store error taxonomy.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return ErrKeyNotFound
	}
	return fmt.Errorf("%w: %s", ErrUnavailable, err.Error())
}

func (s *RedisStore) Get(ctx context.Context, key string, dest any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return wrapErr(err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal value for %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %s: %w", key, err)
	}
	return wrapErr(s.client.Set(ctx, key, data, ttl).Err())
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...).Result()
	return n, wrapErr(err)
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, wrapErr(err)
	}
	return n > 0, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return wrapErr(s.client.Expire(ctx, key, ttl).Err())
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, wrapErr(err)
	}
	if d < 0 {
		// -2 key missing, -1 no expiry
		return 0, nil
	}
	return d, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	return n, wrapErr(err)
}

func (s *RedisStore) HGet(ctx context.Context, key, field string, dest any) error {
	data, err := s.client.HGet(ctx, key, field).Bytes()
	if err != nil {
		return wrapErr(err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal hash field %s.%s: %w", key, field, err)
	}
	return nil
}

func (s *RedisStore) HSet(ctx context.Context, key, field string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal hash field %s.%s: %w", key, field, err)
	}
	return wrapErr(s.client.HSet(ctx, key, field, data).Err())
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.client.HGetAll(ctx, key).Result()
	return m, wrapErr(err)
}

func (s *RedisStore) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	n, err := s.client.HDel(ctx, key, fields...).Result()
	return n, wrapErr(err)
}

func (s *RedisStore) LPush(ctx context.Context, key string, values ...any) (int64, error) {
	encoded := make([]any, 0, len(values))
	for _, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal list value for %s: %w", key, err)
		}
		encoded = append(encoded, data)
	}
	n, err := s.client.LPush(ctx, key, encoded...).Result()
	return n, wrapErr(err)
}

func (s *RedisStore) RPop(ctx context.Context, key string, dest any) error {
	data, err := s.client.RPop(ctx, key).Bytes()
	if err != nil {
		return wrapErr(err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal list value for %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) LLen(ctx context.Context, key string) (int64, error) {
	n, err := s.client.LLen(ctx, key).Result()
	return n, wrapErr(err)
}

func (s *RedisStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	items, err := s.client.LRange(ctx, key, start, stop).Result()
	return items, wrapErr(err)
}

func (s *RedisStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	return wrapErr(s.client.LTrim(ctx, key, start, stop).Err())
}

func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	args := make([]any, 0, len(members))
	for _, m := range members {
		args = append(args, m)
	}
	n, err := s.client.SAdd(ctx, key, args...).Result()
	return n, wrapErr(err)
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	return members, wrapErr(err)
}

func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	args := make([]any, 0, len(members))
	for _, m := range members {
		args = append(args, m)
	}
	n, err := s.client.SRem(ctx, key, args...).Result()
	return n, wrapErr(err)
}

func (s *RedisStore) SCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.SCard(ctx, key).Result()
	return n, wrapErr(err)
}

// Keys scans for keys matching pattern. Used by administrative sweeps only;
// SCAN is used instead of KEYS to avoid blocking the server.
func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, wrapErr(err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return wrapErr(s.client.Ping(ctx).Err())
}

// MemoryUsage reports the server's used_memory in bytes.
func (s *RedisStore) MemoryUsage(ctx context.Context) (int64, error) {
	info, err := s.client.Info(ctx, "memory").Result()
	if err != nil {
		return 0, wrapErr(err)
	}
	for _, line := range strings.Split(info, "\r\n") {
		if v, ok := strings.CutPrefix(line, "used_memory:"); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return 0, fmt.Errorf("failed to parse used_memory: %w", err)
			}
			return n, nil
		}
	}
	return 0, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
