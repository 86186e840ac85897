// Package jobs provides per-type FIFO job queues over the shared cache
// store and a polling processor with bounded concurrency and
// retry-with-requeue on failure.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"medivault/internal/domain"
	"medivault/internal/store"
)

const (
	queueKeyPrefix  = "queue:"
	resultKeyPrefix = "job_result:"

	// DefaultMaxAttempts is the per-job retry budget.
	DefaultMaxAttempts = 3

	// ResultTTL bounds how long a terminal job result stays queryable.
	ResultTTL = time.Hour
)

// ErrQueueEmpty is returned by Dequeue when the type's queue has no jobs.
var ErrQueueEmpty = errors.New("queue empty")

// Queue owns the per-type job lists and the job-result records.
type Queue struct {
	store store.Store
	now   func() time.Time
}

func NewQueue(s store.Store) *Queue {
	return &Queue{store: s, now: time.Now}
}

func queueKey(jobType string) string { return queueKeyPrefix + jobType }
func resultKey(jobID string) string  { return resultKeyPrefix + jobID }

// Enqueue wraps payload in a job envelope and pushes it onto the type's
// queue. Priority is recorded but does not reorder the queue; dequeue is
// strictly FIFO within a type.
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload any, priority int) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}

	job := &domain.Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Payload:     data,
		Priority:    priority,
		CreatedAt:   q.now(),
		Attempts:    0,
		MaxAttempts: DefaultMaxAttempts,
	}

	if _, err := q.store.LPush(ctx, queueKey(jobType), job); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job.ID, nil
}

// Dequeue pops the oldest job of the given type.
func (q *Queue) Dequeue(ctx context.Context, jobType string) (*domain.Job, error) {
	var job domain.Job
	err := q.store.RPop(ctx, queueKey(jobType), &job)
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}
	return &job, nil
}

// Requeue puts a failed job back at the tail of its type's queue, making
// it immediately eligible again behind the jobs already waiting.
func (q *Queue) Requeue(ctx context.Context, job *domain.Job) error {
	if _, err := q.store.LPush(ctx, queueKey(job.Type), job); err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}
	return nil
}

// Length returns the number of queued jobs for a type.
func (q *Queue) Length(ctx context.Context, jobType string) (int64, error) {
	return q.store.LLen(ctx, queueKey(jobType))
}

// SetResult persists a terminal job result for later polling.
func (q *Queue) SetResult(ctx context.Context, res *domain.JobResult) error {
	if err := q.store.Set(ctx, resultKey(res.JobID), res, ResultTTL); err != nil {
		return fmt.Errorf("failed to store job result: %w", err)
	}
	return nil
}

// Result returns the terminal result for a job id, or ErrJobNotFound if
// the job is still queued, in flight, or its result has expired.
func (q *Queue) Result(ctx context.Context, jobID string) (*domain.JobResult, error) {
	var res domain.JobResult
	err := q.store.Get(ctx, resultKey(jobID), &res)
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}
