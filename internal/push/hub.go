// Package push delivers stored notifications to connected WebSocket
// clients. Delivery is best-effort: slow clients are disconnected rather
// than allowed to block the fan-out.
package push

import (
	"log/slog"
	"sync"

	"medivault/internal/observability"
)

// Hub tracks live client connections per user.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*Client]bool)}
}

// Register adds a client to its user's connection set.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*Client]bool)
	}
	h.clients[c.userID][c] = true
	observability.PushConnectionsActive.Inc()
	slog.Info("push client connected", slog.String("user_id", c.userID))
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[c.userID]
	if !ok || !clients[c] {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
	observability.PushConnectionsActive.Dec()
	slog.Info("push client disconnected", slog.String("user_id", c.userID))
}

// Broadcast sends payload to every live connection for userID. A client
// whose send buffer is full is dropped.
func (h *Hub) Broadcast(userID string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients[userID] {
		select {
		case c.send <- payload:
			observability.PushMessagesSent.Inc()
		default:
			delete(h.clients[userID], c)
			close(c.send)
			observability.PushConnectionsActive.Dec()
			slog.Warn("dropped slow push client", slog.String("user_id", userID))
		}
	}
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

// ConnectionCount returns the number of live connections for userID.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Shutdown closes every live connection's send channel.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, clients := range h.clients {
		for c := range clients {
			close(c.send)
			observability.PushConnectionsActive.Dec()
		}
		delete(h.clients, userID)
	}
	slog.Info("push hub shutdown complete")
}
