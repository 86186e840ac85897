package notification

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medivault/internal/domain"
	"medivault/internal/store"
)

type recordingHub struct {
	mu       sync.Mutex
	payloads map[string][][]byte
}

func (h *recordingHub) Broadcast(userID string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.payloads == nil {
		h.payloads = make(map[string][][]byte)
	}
	h.payloads[userID] = append(h.payloads[userID], payload)
}

func TestPublisher_PublishAndList(t *testing.T) {
	p := NewPublisher(store.NewMemoryStore(), nil)
	ctx := context.Background()

	n, err := p.Publish(ctx, "u1", &domain.Notification{
		Type:    "document_ready",
		Message: "your report is ready",
		Data:    map[string]any{"document_id": "d1"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, "u1", n.UserID)
	assert.False(t, n.Timestamp.IsZero())

	list, err := p.List(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "your report is ready", list[0].Message)
	assert.Equal(t, "d1", list[0].Data["document_id"])
}

func TestPublisher_TrimsToCap(t *testing.T) {
	p := NewPublisher(store.NewMemoryStore(), nil)
	ctx := context.Background()

	for i := 1; i <= 105; i++ {
		_, err := p.Publish(ctx, "u1", &domain.Notification{
			Type:    "test",
			Message: fmt.Sprintf("msg-%d", i),
		})
		require.NoError(t, err)
	}

	list, err := p.List(ctx, "u1", MaxKept)
	require.NoError(t, err)
	require.Len(t, list, 100, "log trimmed to the most recent 100")

	// newest first; the 5 oldest were dropped
	assert.Equal(t, "msg-105", list[0].Message)
	assert.Equal(t, "msg-6", list[99].Message)
}

func TestPublisher_ListLimit(t *testing.T) {
	p := NewPublisher(store.NewMemoryStore(), nil)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		_, err := p.Publish(ctx, "u1", &domain.Notification{Message: fmt.Sprintf("msg-%d", i)})
		require.NoError(t, err)
	}

	list, err := p.List(ctx, "u1", 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "msg-10", list[0].Message)
	assert.Equal(t, "msg-8", list[2].Message)
}

func TestPublisher_ListEmpty(t *testing.T) {
	p := NewPublisher(store.NewMemoryStore(), nil)

	list, err := p.List(context.Background(), "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPublisher_BroadcastsToHub(t *testing.T) {
	hub := &recordingHub{}
	p := NewPublisher(store.NewMemoryStore(), hub)

	_, err := p.Publish(context.Background(), "u1", &domain.Notification{Message: "hi"})
	require.NoError(t, err)

	hub.mu.Lock()
	defer hub.mu.Unlock()
	require.Len(t, hub.payloads["u1"], 1)
	assert.Contains(t, string(hub.payloads["u1"][0]), `"hi"`)
}
