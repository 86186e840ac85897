// Package notification appends to per-user bounded notification logs and
// optionally pushes new entries to connected clients. Best-effort only:
// there is no delivery guarantee beyond storage, and no read tracking.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"medivault/internal/domain"
	"medivault/internal/observability"
	"medivault/internal/store"
)

const (
	keyPrefix = "user_notifications:"

	// MaxKept caps each user's log; the oldest entries are dropped first.
	MaxKept = 100
)

// Broadcaster pushes a stored notification to a user's live connections.
type Broadcaster interface {
	Broadcast(userID string, payload []byte)
}

// Publisher owns the per-user notification logs.
type Publisher struct {
	store store.Store
	hub   Broadcaster // optional
	now   func() time.Time
}

func NewPublisher(s store.Store, hub Broadcaster) *Publisher {
	return &Publisher{store: s, hub: hub, now: time.Now}
}

func notificationKey(userID string) string { return keyPrefix + userID }

// Publish assigns an id and timestamp, appends the notification to the
// user's log, and trims the log to the most recent MaxKept entries.
func (p *Publisher) Publish(ctx context.Context, userID string, n *domain.Notification) (*domain.Notification, error) {
	n.ID = uuid.New().String()
	n.UserID = userID
	n.Timestamp = p.now()

	key := notificationKey(userID)
	if _, err := p.store.LPush(ctx, key, n); err != nil {
		return nil, fmt.Errorf("failed to append notification: %w", err)
	}
	if err := p.store.LTrim(ctx, key, 0, MaxKept-1); err != nil {
		return nil, fmt.Errorf("failed to trim notification log: %w", err)
	}

	observability.NotificationsPublished.Inc()

	if p.hub != nil {
		if payload, err := json.Marshal(n); err == nil {
			p.hub.Broadcast(userID, payload)
		} else {
			slog.Error("failed to marshal notification for push",
				slog.String("user_id", userID),
				slog.String("error", err.Error()))
		}
	}

	return n, nil
}

// List returns up to limit notifications, newest first.
func (p *Publisher) List(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	if limit <= 0 || limit > MaxKept {
		limit = MaxKept
	}

	items, err := p.store.LRange(ctx, notificationKey(userID), 0, int64(limit)-1)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	notifications := make([]*domain.Notification, 0, len(items))
	for _, item := range items {
		var n domain.Notification
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			slog.Warn("skipping malformed notification entry",
				slog.String("user_id", userID),
				slog.String("error", err.Error()))
			continue
		}
		notifications = append(notifications, &n)
	}
	return notifications, nil
}
