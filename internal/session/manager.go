// Package session manages per-user session lifecycle over the shared cache
// store: creation with a concurrent-session cap, activity-based expiry, and
// a periodic cleanup sweep.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"medivault/internal/domain"
	"medivault/internal/observability"
	"medivault/internal/store"
)

const (
	sessionKeyPrefix  = "session:"
	userSetKeyPrefix  = "user_sessions:"
	DefaultTTL        = time.Hour
	DefaultMaxPerUser = 5
)

// Config controls session lifetimes and the per-user concurrency cap.
type Config struct {
	TTL        time.Duration
	MaxPerUser int
}

// Manager implements domain.SessionManager on top of a Store.
type Manager struct {
	store      store.Store
	ttl        time.Duration
	maxPerUser int
	now        func() time.Time
}

func NewManager(s store.Store, cfg Config) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxPerUser <= 0 {
		cfg.MaxPerUser = DefaultMaxPerUser
	}
	return &Manager{
		store:      s,
		ttl:        cfg.TTL,
		maxPerUser: cfg.MaxPerUser,
		now:        time.Now,
	}
}

func sessionKey(id string) string     { return sessionKeyPrefix + id }
func userSetKey(userID string) string { return userSetKeyPrefix + userID }

// Create generates a new session for userID. If the user is at the
// concurrent-session cap, the least-recently-active sessions are evicted
// until there is room for the new one.
func (m *Manager) Create(ctx context.Context, userID string, attrs map[string]string) (*domain.Session, error) {
	live, err := m.liveSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	if len(live) >= m.maxPerUser {
		sort.Slice(live, func(i, j int) bool {
			return live[i].LastActivity.Before(live[j].LastActivity)
		})
		for len(live) > m.maxPerUser-1 {
			victim := live[0]
			live = live[1:]
			if _, err := m.Destroy(ctx, victim.ID); err != nil {
				return nil, fmt.Errorf("failed to evict session %s: %w", victim.ID, err)
			}
			observability.SessionsEvicted.Inc()
			slog.Info("evicted least-recently-active session",
				slog.String("user_id", userID),
				slog.String("session_id", victim.ID))
		}
	}

	now := m.now()
	s := &domain.Session{
		ID:           uuid.New().String(),
		UserID:       userID,
		CreatedAt:    now,
		LastActivity: now,
		TTLSeconds:   int(m.ttl.Seconds()),
		Attributes:   attrs,
	}

	if err := m.store.Set(ctx, sessionKey(s.ID), s, m.ttl); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	if _, err := m.store.SAdd(ctx, userSetKey(userID), s.ID); err != nil {
		return nil, fmt.Errorf("failed to index session: %w", err)
	}

	observability.SessionsCreated.Inc()
	return s, nil
}

// Get returns the stored session without mutating it.
func (m *Manager) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	var s domain.Session
	err := m.store.Get(ctx, sessionKey(sessionID), &s)
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Refresh updates the session's last activity and renews its TTL. An
// expired session is deleted as a side effect and reported as expired.
func (m *Manager) Refresh(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, err := m.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if s.Expired(m.now()) {
		if _, err := m.Destroy(ctx, sessionID); err != nil {
			slog.Warn("failed to delete expired session",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()))
		}
		return nil, domain.ErrSessionExpired
	}

	s.LastActivity = m.now()
	if err := m.store.Set(ctx, sessionKey(sessionID), s, m.ttl); err != nil {
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}
	return s, nil
}

// Destroy removes a session and its reverse-index entry. Idempotent:
// destroying an absent session returns a zero count, not an error.
func (m *Manager) Destroy(ctx context.Context, sessionID string) (int64, error) {
	s, err := m.Get(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	n, err := m.store.Del(ctx, sessionKey(sessionID))
	if err != nil {
		return 0, fmt.Errorf("failed to delete session: %w", err)
	}
	if _, err := m.store.SRem(ctx, userSetKey(s.UserID), sessionID); err != nil {
		return n, fmt.Errorf("failed to unindex session: %w", err)
	}
	return n, nil
}

// DestroyAllForUser removes every session belonging to userID.
func (m *Manager) DestroyAllForUser(ctx context.Context, userID string) (int64, error) {
	ids, err := m.store.SMembers(ctx, userSetKey(userID))
	if err != nil {
		return 0, fmt.Errorf("failed to list user sessions: %w", err)
	}

	var count int64
	for _, id := range ids {
		n, err := m.store.Del(ctx, sessionKey(id))
		if err != nil {
			return count, fmt.Errorf("failed to delete session %s: %w", id, err)
		}
		count += n
	}
	if _, err := m.store.Del(ctx, userSetKey(userID)); err != nil {
		return count, fmt.Errorf("failed to delete session index: %w", err)
	}
	return count, nil
}

// CleanupExpired scans all session keys and deletes those idle beyond
// their TTL. Safe to run concurrently with request traffic: deletes are
// idempotent.
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	keys, err := m.store.Keys(ctx, sessionKeyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("failed to scan session keys: %w", err)
	}

	var cleaned int64
	for _, key := range keys {
		id := strings.TrimPrefix(key, sessionKeyPrefix)
		s, err := m.Get(ctx, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return cleaned, err
		}
		if s.Expired(m.now()) {
			n, err := m.Destroy(ctx, id)
			if err != nil {
				return cleaned, err
			}
			cleaned += n
		}
	}

	if cleaned > 0 {
		observability.SessionsCleaned.Add(float64(cleaned))
	}
	return cleaned, nil
}

// Stats counts stored sessions for the admin surface.
func (m *Manager) Stats(ctx context.Context) (*domain.SessionStats, error) {
	keys, err := m.store.Keys(ctx, sessionKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan session keys: %w", err)
	}

	stats := &domain.SessionStats{}
	for _, key := range keys {
		id := strings.TrimPrefix(key, sessionKeyPrefix)
		s, err := m.Get(ctx, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		stats.Total++
		if s.Expired(m.now()) {
			stats.Expired++
		} else {
			stats.Active++
		}
	}
	return stats, nil
}

// liveSessions loads the user's indexed sessions, repairing index entries
// whose session key has already expired.
func (m *Manager) liveSessions(ctx context.Context, userID string) ([]*domain.Session, error) {
	ids, err := m.store.SMembers(ctx, userSetKey(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to list user sessions: %w", err)
	}

	live := make([]*domain.Session, 0, len(ids))
	for _, id := range ids {
		s, err := m.Get(ctx, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			// stale index entry, session key expired out from under it
			if _, err := m.store.SRem(ctx, userSetKey(userID), id); err != nil {
				return nil, fmt.Errorf("failed to repair session index: %w", err)
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		live = append(live, s)
	}
	return live, nil
}
