package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrJobNotFound          = errors.New("job not found")
	ErrHandlerNotRegistered = errors.New("no handler registered for job type")
	ErrMaxRetriesExceeded   = errors.New("job exceeded max retry attempts")
)

// JobStatus is the terminal outcome of a processed job.
type JobStatus string

const (
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is a unit of background work queued per job type.
type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"`
	CreatedAt   time.Time       `json:"created_at"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
}

// JobResult records the terminal outcome of a job, queryable by id for a
// short period after processing.
type JobResult struct {
	JobID       string          `json:"job_id"`
	Status      JobStatus       `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	Attempts    int             `json:"attempts"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	FailedAt    *time.Time      `json:"failed_at,omitempty"`
}

// JobHandler processes a job payload and returns an optional result.
// Handlers must be safe to retry: a failed attempt is re-enqueued until the
// job's max attempts are exhausted.
type JobHandler func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
