package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"medivault/internal/domain"
	"medivault/internal/jobs"
	"medivault/internal/observability"
)

// JobHandler exposes job submission and result polling.
type JobHandler struct {
	queue *jobs.Queue
}

func NewJobHandler(queue *jobs.Queue) *JobHandler {
	return &JobHandler{queue: queue}
}

// EnqueueJobRequest represents a job submission
type EnqueueJobRequest struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Priority int             `json:"priority"`
}

// Enqueue accepts a job for background processing and returns its id.
func (h *JobHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"Invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		http.Error(w, `{"error":"Job type required"}`, http.StatusBadRequest)
		return
	}

	id, err := h.queue.Enqueue(r.Context(), req.Type, req.Payload, req.Priority)
	if err != nil {
		observability.FromContext(r.Context()).Error("failed to enqueue job",
			"type", req.Type,
			"error", err.Error())
		http.Error(w, `{"error":"Failed to enqueue job"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"job_id": id})
}

// Status returns the terminal result for a job id. Jobs still queued or
// in flight, and results past their retention window, report not found.
func (h *JobHandler) Status(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		http.Error(w, `{"error":"Job ID required"}`, http.StatusBadRequest)
		return
	}

	res, err := h.queue.Result(r.Context(), jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		http.Error(w, `{"error":"Job not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).Error("failed to read job result",
			"job_id", jobID,
			"error", err.Error())
		http.Error(w, `{"error":"Failed to read job result"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}
