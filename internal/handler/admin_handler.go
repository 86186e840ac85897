package handler

import (
	"encoding/json"
	"net/http"

	"medivault/internal/domain"
	"medivault/internal/jobs"
	"medivault/internal/observability"
	"medivault/internal/store"
)

// AdminHandler exposes the operational view: session counts, queue
// depths, in-flight jobs, and store memory usage. Routes mounting it
// are guarded by RequireAdmin.
type AdminHandler struct {
	sessions  domain.SessionManager
	queue     *jobs.Queue
	processor *jobs.Processor
	store     store.Store
}

func NewAdminHandler(sessions domain.SessionManager, queue *jobs.Queue, processor *jobs.Processor, st store.Store) *AdminHandler {
	return &AdminHandler{
		sessions:  sessions,
		queue:     queue,
		processor: processor,
		store:     st,
	}
}

// Stats aggregates the platform's runtime counters.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionStats, err := h.sessions.Stats(ctx)
	if err != nil {
		observability.FromContext(ctx).Error("failed to collect session stats",
			"error", err.Error())
		http.Error(w, `{"error":"Failed to collect stats"}`, http.StatusInternalServerError)
		return
	}

	queueLengths := make(map[string]int64)
	for _, jobType := range h.processor.Types() {
		n, err := h.queue.Length(ctx, jobType)
		if err != nil {
			observability.FromContext(ctx).Error("failed to read queue length",
				"type", jobType,
				"error", err.Error())
			http.Error(w, `{"error":"Failed to collect stats"}`, http.StatusInternalServerError)
			return
		}
		queueLengths[jobType] = n
	}

	response := map[string]any{
		"sessions": sessionStats,
		"jobs": map[string]any{
			"queues": queueLengths,
			"active": h.processor.ActiveCount(),
		},
	}

	if used, err := h.store.MemoryUsage(ctx); err == nil {
		response["store"] = map[string]any{
			"memory_used_bytes": used,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// CleanupSessions triggers an immediate expired-session sweep.
func (h *AdminHandler) CleanupSessions(w http.ResponseWriter, r *http.Request) {
	cleaned, err := h.sessions.CleanupExpired(r.Context())
	if err != nil {
		observability.FromContext(r.Context()).Error("session cleanup failed",
			"error", err.Error())
		http.Error(w, `{"error":"Cleanup failed"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"cleaned": cleaned})
}
