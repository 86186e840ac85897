package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is an in-process Store implementation with TTL support.
// It backs unit tests and local development; production uses RedisStore.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
	now     func() time.Time
}

type memEntry struct {
	value     []byte   // plain values, JSON-encoded
	list      [][]byte // index 0 is the most recently pushed
	set       map[string]bool
	hash      map[string][]byte
	expiresAt time.Time // zero means no expiry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memEntry),
		now:     time.Now,
	}
}

// SetClock replaces the store's time source. Test hook: expiry decisions and
// TTLs are computed against the injected clock.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// live returns the entry for key, pruning it first if expired.
// Callers must hold the lock.
func (s *MemoryStore) live(key string) *memEntry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil
	}
	return e
}

func (s *MemoryStore) Get(ctx context.Context, key string, dest any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil || e.value == nil {
		return ErrKeyNotFound
	}
	return json.Unmarshal(e.value, dest)
}

func (s *MemoryStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := &memEntry{value: data}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) Del(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, key := range keys {
		if s.live(key) != nil {
			delete(s.entries, key)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live(key) != nil, nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.live(key); e != nil {
		e.expiresAt = s.now().Add(ttl)
	}
	return nil
}

func (s *MemoryStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil || e.expiresAt.IsZero() {
		return 0, nil
	}
	return e.expiresAt.Sub(s.now()), nil
}

func (s *MemoryStore) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		e = &memEntry{}
		s.entries[key] = e
	}

	var n int64
	if e.value != nil {
		parsed, err := strconv.ParseInt(string(e.value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value at %s is not an integer", key)
		}
		n = parsed
	}
	n++
	e.value = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

func (s *MemoryStore) HGet(ctx context.Context, key, field string, dest any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil || e.hash == nil {
		return ErrKeyNotFound
	}
	data, ok := e.hash[field]
	if !ok {
		return ErrKeyNotFound
	}
	return json.Unmarshal(data, dest)
}

func (s *MemoryStore) HSet(ctx context.Context, key, field string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal hash field %s.%s: %w", key, field, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		e = &memEntry{}
		s.entries[key] = e
	}
	if e.hash == nil {
		e.hash = make(map[string][]byte)
	}
	e.hash[field] = data
	return nil
}

func (s *MemoryStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[string]string)
	if e := s.live(key); e != nil {
		for field, data := range e.hash {
			result[field] = string(data)
		}
	}
	return result, nil
}

func (s *MemoryStore) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil || e.hash == nil {
		return 0, nil
	}
	var n int64
	for _, field := range fields {
		if _, ok := e.hash[field]; ok {
			delete(e.hash, field)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) LPush(ctx context.Context, key string, values ...any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		e = &memEntry{}
		s.entries[key] = e
	}
	for _, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal list value for %s: %w", key, err)
		}
		e.list = append([][]byte{data}, e.list...)
	}
	return int64(len(e.list)), nil
}

func (s *MemoryStore) RPop(ctx context.Context, key string, dest any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil || len(e.list) == 0 {
		return ErrKeyNotFound
	}
	data := e.list[len(e.list)-1]
	e.list = e.list[:len(e.list)-1]
	if len(e.list) == 0 && e.value == nil && e.set == nil && e.hash == nil {
		delete(s.entries, key)
	}
	return json.Unmarshal(data, dest)
}

func (s *MemoryStore) LLen(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.live(key); e != nil {
		return int64(len(e.list)), nil
	}
	return 0, nil
}

func (s *MemoryStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		return nil, nil
	}
	n := int64(len(e.list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return nil, nil
	}
	items := make([]string, 0, stop-start+1)
	for _, data := range e.list[start : stop+1] {
		items = append(items, string(data))
	}
	return items, nil
}

func (s *MemoryStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		return nil
	}
	n := int64(len(e.list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		e.list = nil
		return nil
	}
	e.list = e.list[start : stop+1]
	return nil
}

func (s *MemoryStore) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		e = &memEntry{}
		s.entries[key] = e
	}
	if e.set == nil {
		e.set = make(map[string]bool)
	}
	var n int64
	for _, m := range members {
		if !e.set[m] {
			e.set[m] = true
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) SMembers(ctx context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		return nil, nil
	}
	members := make([]string, 0, len(e.set))
	for m := range e.set {
		members = append(members, m)
	}
	sort.Strings(members)
	return members, nil
}

func (s *MemoryStore) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil || e.set == nil {
		return 0, nil
	}
	var n int64
	for _, m := range members {
		if e.set[m] {
			delete(e.set, m)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) SCard(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.live(key); e != nil {
		return int64(len(e.set)), nil
	}
	return 0, nil
}

func (s *MemoryStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for key := range s.entries {
		if s.live(key) == nil {
			continue
		}
		matched, err := path.Match(pattern, key)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if matched {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// MemoryUsage approximates the bytes held by stored values.
func (s *MemoryStore) MemoryUsage(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for key, e := range s.entries {
		total += int64(len(key)) + int64(len(e.value))
		for _, item := range e.list {
			total += int64(len(item))
		}
		for m := range e.set {
			total += int64(len(m))
		}
		for field, data := range e.hash {
			total += int64(len(field)) + int64(len(data))
		}
	}
	return total, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
