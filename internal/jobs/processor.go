package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"medivault/internal/domain"
	"medivault/internal/observability"
)

const (
	DefaultPollInterval  = 5 * time.Second
	DefaultMaxConcurrent = 5
)

// JobEvent describes a terminal job outcome for external consumers.
type JobEvent struct {
	JobID     string           `json:"job_id"`
	Type      string           `json:"type"`
	Status    domain.JobStatus `json:"status"`
	Error     string           `json:"error,omitempty"`
	Attempts  int              `json:"attempts"`
	Timestamp time.Time        `json:"timestamp"`
}

// EventPublisher receives terminal job events. Publishing is best-effort;
// failures are logged and never affect job bookkeeping.
type EventPublisher interface {
	PublishJobEvent(ctx context.Context, event *JobEvent) error
}

// Config controls the processor's polling cadence and concurrency cap.
type Config struct {
	PollInterval  time.Duration
	MaxConcurrent int
}

// Processor polls the per-type queues on a fixed interval and dispatches
// jobs to registered handlers, at most MaxConcurrent in flight at once.
// Failed jobs are re-enqueued until their retry budget is exhausted.
type Processor struct {
	queue    *Queue
	interval time.Duration
	maxConc  int
	events   EventPublisher // optional

	mu       sync.Mutex
	handlers map[string]domain.JobHandler
	started  bool
	cancel   context.CancelFunc
	loopDone chan struct{}

	active atomic.Int64
	wg     sync.WaitGroup
}

func NewProcessor(queue *Queue, cfg Config, events EventPublisher) *Processor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	return &Processor{
		queue:    queue,
		interval: cfg.PollInterval,
		maxConc:  cfg.MaxConcurrent,
		events:   events,
		handlers: make(map[string]domain.JobHandler),
	}
}

// Register binds a handler to a job type. Handlers must be registered
// before Start; registering a duplicate type replaces the previous
// handler and logs a warning.
func (p *Processor) Register(jobType string, handler domain.JobHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.handlers[jobType]; exists {
		slog.Warn("replacing registered job handler", slog.String("type", jobType))
	}
	p.handlers[jobType] = handler
}

// Types returns the registered job types in stable order.
func (p *Processor) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]string, 0, len(p.handlers))
	for t := range p.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ActiveCount returns the number of jobs currently being handled.
func (p *Processor) ActiveCount() int64 {
	return p.active.Load()
}

// Start launches the polling loop. It returns an error if the processor
// is already running.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.New("processor already started")
	}
	p.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.loopDone = make(chan struct{})

	go p.run(loopCtx)

	slog.Info("job processor started",
		slog.Duration("poll_interval", p.interval),
		slog.Int("max_concurrent", p.maxConc))
	return nil
}

// Stop halts the polling loop and blocks until in-flight jobs drain.
// Jobs already dispatched are allowed to finish, not cancelled.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	cancel := p.cancel
	done := p.loopDone
	p.mu.Unlock()

	cancel()
	<-done
	p.wg.Wait()

	slog.Info("job processor stopped")
}

func (p *Processor) run(ctx context.Context) {
	defer close(p.loopDone)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll drains each registered type's queue into the active set, up to the
// concurrency cap. A store failure skips the rest of the tick.
func (p *Processor) poll(ctx context.Context) {
	for _, jobType := range p.Types() {
		for p.active.Load() < int64(p.maxConc) {
			job, err := p.queue.Dequeue(ctx, jobType)
			if errors.Is(err, ErrQueueEmpty) {
				break
			}
			if err != nil {
				slog.Warn("failed to dequeue, skipping poll tick",
					slog.String("type", jobType),
					slog.String("error", err.Error()))
				return
			}
			p.dispatch(ctx, job)
		}
	}
}

func (p *Processor) dispatch(ctx context.Context, job *domain.Job) {
	p.mu.Lock()
	handler, ok := p.handlers[job.Type]
	p.mu.Unlock()

	// detached from the poll loop's cancellation: Stop lets dispatched
	// jobs finish, and their result/requeue writes must still succeed
	jobCtx := context.WithoutCancel(ctx)

	if !ok {
		// fatal misconfiguration: recorded immediately, never retried
		slog.Error("no handler registered for dequeued job",
			slog.String("job_id", job.ID),
			slog.String("type", job.Type))
		p.recordFailure(jobCtx, job, domain.ErrHandlerNotRegistered)
		return
	}

	p.active.Add(1)
	observability.JobsActive.Inc()
	p.wg.Add(1)

	go func() {
		defer func() {
			p.wg.Done()
			p.active.Add(-1)
			observability.JobsActive.Dec()
		}()
		p.execute(jobCtx, job, handler)
	}()
}

func (p *Processor) execute(ctx context.Context, job *domain.Job, handler domain.JobHandler) {
	result, err := invoke(ctx, handler, job.Payload)
	if err == nil {
		p.recordSuccess(ctx, job, result)
		return
	}

	job.Attempts++
	if job.Attempts < job.MaxAttempts {
		slog.Warn("job failed, requeueing",
			slog.String("job_id", job.ID),
			slog.String("type", job.Type),
			slog.Int("attempts", job.Attempts),
			slog.String("error", err.Error()))
		observability.JobsRetried.WithLabelValues(job.Type).Inc()
		if reqErr := p.queue.Requeue(ctx, job); reqErr != nil {
			slog.Error("failed to requeue job, dropping",
				slog.String("job_id", job.ID),
				slog.String("error", reqErr.Error()))
		}
		return
	}

	p.recordFailure(ctx, job, fmt.Errorf("%w after %d attempts: %s",
		domain.ErrMaxRetriesExceeded, job.Attempts, err.Error()))
}

// invoke runs the handler, converting a panic into an ordinary failure so
// one bad payload cannot take down the processor.
func invoke(ctx context.Context, handler domain.JobHandler, payload json.RawMessage) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, payload)
}

func (p *Processor) recordSuccess(ctx context.Context, job *domain.Job, result json.RawMessage) {
	now := time.Now()
	res := &domain.JobResult{
		JobID:       job.ID,
		Status:      domain.JobCompleted,
		Result:      result,
		Attempts:    job.Attempts + 1,
		CompletedAt: &now,
	}
	if err := p.queue.SetResult(ctx, res); err != nil {
		slog.Error("failed to store job result",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
	}

	observability.JobsProcessed.WithLabelValues(job.Type, string(domain.JobCompleted)).Inc()
	slog.Info("job completed",
		slog.String("job_id", job.ID),
		slog.String("type", job.Type))

	p.publishEvent(ctx, job, domain.JobCompleted, "")
}

func (p *Processor) recordFailure(ctx context.Context, job *domain.Job, cause error) {
	now := time.Now()
	res := &domain.JobResult{
		JobID:    job.ID,
		Status:   domain.JobFailed,
		Error:    cause.Error(),
		Attempts: job.Attempts,
		FailedAt: &now,
	}
	if err := p.queue.SetResult(ctx, res); err != nil {
		slog.Error("failed to store job result",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
	}

	observability.JobsProcessed.WithLabelValues(job.Type, string(domain.JobFailed)).Inc()
	slog.Error("job failed permanently",
		slog.String("job_id", job.ID),
		slog.String("type", job.Type),
		slog.String("error", cause.Error()))

	p.publishEvent(ctx, job, domain.JobFailed, cause.Error())
}

func (p *Processor) publishEvent(ctx context.Context, job *domain.Job, status domain.JobStatus, errMsg string) {
	if p.events == nil {
		return
	}
	event := &JobEvent{
		JobID:     job.ID,
		Type:      job.Type,
		Status:    status,
		Error:     errMsg,
		Attempts:  job.Attempts,
		Timestamp: time.Now(),
	}
	if err := p.events.PublishJobEvent(ctx, event); err != nil {
		slog.Warn("failed to publish job event",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
	}
}
