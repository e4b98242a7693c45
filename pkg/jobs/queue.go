package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned when the buffer has no room; the job is not accepted.
	ErrQueueFull = errors.New("queue full")
	// ErrQueueStopped is returned once Stop has been called or before Start.
	ErrQueueStopped = errors.New("queue stopped")
)

// Job is a unit of background work.
type Job struct {
	ID         string
	Kind       string
	Payload    interface{}
	Attempt    int
	EnqueuedAt time.Time
}

// Handler processes a job. A returned error schedules a retry until MaxRetries.
type Handler func(context.Context, Job) error

// DeadLetterFunc observes jobs that were given up on.
type DeadLetterFunc func(job Job, err error)

// Config configures the worker pool.
type Config struct {
	Workers      int
	BufferSize   int
	MaxRetries   int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	Logger       *zap.Logger
	OnDeadLetter DeadLetterFunc
}

// Queue is a bounded in-memory worker pool. Submission never blocks.
type Queue struct {
	name    string
	handler Handler
	cfg     Config
	logger  *zap.Logger

	jobs chan Job

	mu      sync.RWMutex
	started bool
	stopped bool

	workCtx     context.Context
	cancelWork  context.CancelFunc
	retryCtx    context.Context
	cancelRetry context.CancelFunc
	workers     sync.WaitGroup
	retries     sync.WaitGroup
}

// New builds a queue for handler.
func New(name string, handler Handler, cfg Config) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 64
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		name:    name,
		handler: handler,
		cfg:     cfg,
		logger:  logger.With(zap.String("queue", name)),
		jobs:    make(chan Job, cfg.BufferSize),
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.workCtx, q.cancelWork = context.WithCancel(context.WithoutCancel(ctx))
	q.retryCtx, q.cancelRetry = context.WithCancel(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		q.workers.Add(1)
		go q.work()
	}
	q.started = true
	q.logger.Info("queue started", zap.Int("workers", q.cfg.Workers), zap.Int("buffer", q.cfg.BufferSize))
}

// Submit offers a job without blocking.
func (q *Queue) Submit(job Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	return q.offer(job)
}

// Pending reports the number of buffered jobs.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

// Stop refuses new jobs, drops scheduled retries to the dead-letter hook and
// drains what is already buffered. If ctx expires first the in-flight handlers
// are cancelled.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.started || q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	q.cancelRetry()
	q.mu.Unlock()

	q.retries.Wait()
	close(q.jobs)

	done := make(chan struct{})
	go func() {
		q.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.logger.Info("queue stopped")
		return nil
	case <-ctx.Done():
		q.cancelWork()
		<-done
		q.logger.Warn("queue stopped before drain completed", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

func (q *Queue) offer(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.started || q.stopped {
		return ErrQueueStopped
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) work() {
	defer q.workers.Done()
	for job := range q.jobs {
		if err := q.handler(q.workCtx, job); err != nil {
			q.retry(job, err)
		}
	}
}

func (q *Queue) retry(job Job, cause error) {
	job.Attempt++
	if job.Attempt > q.cfg.MaxRetries {
		q.deadLetter(job, cause)
		return
	}
	delay := q.backoff(job.Attempt)
	q.logger.Warn("job failed, retrying",
		zap.String("job_id", job.ID), zap.String("kind", job.Kind),
		zap.Int("attempt", job.Attempt), zap.Duration("delay", delay), zap.Error(cause))

	q.mu.RLock()
	if q.stopped {
		q.mu.RUnlock()
		q.deadLetter(job, cause)
		return
	}
	q.retries.Add(1)
	q.mu.RUnlock()

	go func() {
		defer q.retries.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.retryCtx.Done():
			q.deadLetter(job, cause)
		case <-timer.C:
			if err := q.offer(job); err != nil {
				q.deadLetter(job, err)
			}
		}
	}()
}

// backoff doubles from BaseBackoff per attempt, capped at MaxBackoff.
func (q *Queue) backoff(attempt int) time.Duration {
	delay := q.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= q.cfg.MaxBackoff {
			return q.cfg.MaxBackoff
		}
	}
	return delay
}

func (q *Queue) deadLetter(job Job, err error) {
	q.logger.Error("job abandoned", zap.String("job_id", job.ID), zap.String("kind", job.Kind), zap.Int("attempt", job.Attempt), zap.Error(err))
	if q.cfg.OnDeadLetter != nil {
		q.cfg.OnDeadLetter(job, err)
	}
}
