package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Session represents an authenticated user session stored in the cache.
type Session struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActivity time.Time         `json:"last_activity"`
	TTLSeconds   int               `json:"ttl_seconds"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// IdleTime returns how long the session has been inactive.
func (s *Session) IdleTime(now time.Time) time.Duration {
	return now.Sub(s.LastActivity)
}

// Expired reports whether the session has been idle longer than its TTL.
func (s *Session) Expired(now time.Time) bool {
	return s.IdleTime(now) > time.Duration(s.TTLSeconds)*time.Second
}

// Role returns the session's role attribute, or empty string if unset.
func (s *Session) Role() string {
	if s.Attributes == nil {
		return ""
	}
	return s.Attributes["role"]
}

// SessionStats summarizes stored sessions for the admin surface.
type SessionStats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Expired int `json:"expired"`
}

// SessionManager defines the session lifecycle operations the request
// pipeline and background sweeps depend on.
type SessionManager interface {
	Create(ctx context.Context, userID string, attrs map[string]string) (*Session, error)
	Get(ctx context.Context, sessionID string) (*Session, error)
	Refresh(ctx context.Context, sessionID string) (*Session, error)
	Destroy(ctx context.Context, sessionID string) (int64, error)
	DestroyAllForUser(ctx context.Context, userID string) (int64, error)
	CleanupExpired(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*SessionStats, error)
}
