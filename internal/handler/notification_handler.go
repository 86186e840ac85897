package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"medivault/internal/middleware"
	"medivault/internal/notification"
	"medivault/internal/observability"
	"medivault/internal/push"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// origin enforcement happens in the CORS middleware
		return true
	},
}

// NotificationHandler serves the stored notification log and the live
// push channel.
type NotificationHandler struct {
	publisher *notification.Publisher
	hub       *push.Hub
}

func NewNotificationHandler(publisher *notification.Publisher, hub *push.Hub) *NotificationHandler {
	return &NotificationHandler{
		publisher: publisher,
		hub:       hub,
	}
}

// List returns the caller's recent notifications, newest first.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, `{"error":"Not authenticated"}`, http.StatusUnauthorized)
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}

	notifications, err := h.publisher.List(r.Context(), userID, limit)
	if err != nil {
		observability.FromContext(r.Context()).Error("failed to list notifications",
			"error", err.Error())
		http.Error(w, `{"error":"Failed to retrieve notifications"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"notifications": notifications,
	})
}

// Stream upgrades to a WebSocket and pushes the caller's notifications
// as they are published. Blocks until the client disconnects.
func (h *NotificationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, `{"error":"Not authenticated"}`, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.FromContext(r.Context()).Warn("websocket upgrade failed",
			"error", err.Error())
		return
	}

	client := push.NewClient(h.hub, conn, userID)
	client.Run()
}
