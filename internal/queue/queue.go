package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/funnelkit/provision-api/internal/config"
	"github.com/funnelkit/provision-api/internal/domain"
	"github.com/funnelkit/provision-api/internal/store"
)

// ErrQueueFull is returned by Enqueue when the dispatch buffer cannot
// accept another job. Callers treat this as a queue outage and fall
// back to synchronous processing.
var ErrQueueFull = errors.New("job queue buffer is full")

// Executor runs one provisioning job to completion.
type Executor interface {
	Execute(ctx context.Context, job *domain.ProvisionJob) error
}

// Config holds the queue's runtime settings with durations resolved.
type Config struct {
	WorkerCount    int
	BufferSize     int
	MaxAttempts    int
	BackoffBase    time.Duration
	RatePerSecond  float64
	RateBurst      int
	KeepCompleted  int
	KeepFailed     int
	StaleActiveAge time.Duration
	ReaperInterval time.Duration
}

// NewConfig converts the loaded queue settings into resolved durations.
func NewConfig(qc config.QueueConfig) Config {
	return Config{
		WorkerCount:    qc.WorkerCount,
		BufferSize:     qc.BufferSize,
		MaxAttempts:    qc.MaxAttempts,
		BackoffBase:    time.Duration(qc.BackoffBaseSeconds * float64(time.Second)),
		RatePerSecond:  qc.RatePerSecond,
		RateBurst:      qc.RateBurst,
		KeepCompleted:  qc.KeepCompleted,
		KeepFailed:     qc.KeepFailed,
		StaleActiveAge: time.Duration(qc.StaleActiveMinutes) * time.Minute,
		ReaperInterval: time.Duration(qc.ReaperIntervalMins) * time.Minute,
	}
}

// Queue accepts provisioning jobs, persists them, and dispatches them
// to a bounded worker pool. Worker starts are rate limited so a burst
// of submissions cannot stampede the identity provider.
type Queue struct {
	jobs     store.JobStore
	logs     store.HealthLogStore
	executor Executor
	limiter  *rate.Limiter
	cfg      Config
	logger   *slog.Logger

	ch     chan *domain.ProvisionJob
	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewQueue creates a queue. Start must be called before Enqueue will
// dispatch anything.
func NewQueue(jobs store.JobStore, logs store.HealthLogStore, executor Executor, cfg Config, logger *slog.Logger) *Queue {
	return &Queue{
		jobs:     jobs,
		logs:     logs,
		executor: executor,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "queue")),
		ch:       make(chan *domain.ProvisionJob, cfg.BufferSize),
	}
}

// Start launches the worker pool and the stale-job reaper, then
// re-queues jobs left over from a previous run. Recovery happens after
// the workers are running so the re-queued jobs drain immediately.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return errors.New("queue already started")
	}
	q.started = true
	q.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	q.cancel = cancel

	for i := 0; i < q.cfg.WorkerCount; i++ {
		q.wg.Add(1)
		go q.worker(runCtx, i)
	}

	q.wg.Add(1)
	go q.reaper(runCtx)

	if err := q.recover(ctx); err != nil {
		return fmt.Errorf("failed to recover persisted jobs: %w", err)
	}

	q.logger.Info("queue started",
		slog.Int("workers", q.cfg.WorkerCount),
		slog.Int("buffer_size", q.cfg.BufferSize))
	return nil
}

// Stop signals the workers and reaper to finish and waits for them.
// Jobs still in the buffer stay persisted as waiting and are recovered
// on the next start.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped || q.cancel == nil {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
	q.logger.Info("queue stopped")
}

// Enqueue persists the job and hands it to the worker pool. The job is
// durable once SaveJob returns; a full buffer marks it failed and
// reports ErrQueueFull so the caller can fall back to the synchronous
// path without leaving a hidden duplicate behind. Priority orders the
// recovery drain only; jobs already in the buffer are dispatched FIFO
// regardless of priority.
func (q *Queue) Enqueue(ctx context.Context, job *domain.ProvisionJob) error {
	if err := q.jobs.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to persist job: %w", err)
	}

	select {
	case q.ch <- job:
		return nil
	default:
	}

	if err := q.jobs.UpdateJobStatus(ctx, job.ID, domain.JobStatusFailed, ErrQueueFull.Error()); err != nil {
		q.logger.Error("failed to mark overflow job failed",
			slog.String("job_id", job.ID), slog.String("error", err.Error()))
	}
	return ErrQueueFull
}

// Metrics returns the current job counts per status.
func (q *Queue) Metrics(ctx context.Context) (map[domain.JobStatus]int, error) {
	return q.jobs.CountByStatus(ctx)
}

// recover resets jobs interrupted mid-execution and re-queues every
// waiting job in priority order. Sends block until a worker takes the
// job, which bounds startup memory to the channel buffer.
func (q *Queue) recover(ctx context.Context) error {
	active, err := q.jobs.GetJobsByStatus(ctx, domain.JobStatusActive, 0)
	if err != nil {
		return fmt.Errorf("failed to load active jobs: %w", err)
	}
	for _, job := range active {
		if err := q.jobs.UpdateJobStatus(ctx, job.ID, domain.JobStatusWaiting, "interrupted by restart"); err != nil {
			return fmt.Errorf("failed to reset interrupted job %s: %w", job.ID, err)
		}
	}

	waiting, err := q.jobs.GetJobsByStatus(ctx, domain.JobStatusWaiting, 0)
	if err != nil {
		return fmt.Errorf("failed to load waiting jobs: %w", err)
	}
	for _, job := range waiting {
		select {
		case q.ch <- job:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if n := len(active) + len(waiting); n > 0 {
		q.logger.Info("recovered persisted jobs",
			slog.Int("interrupted", len(active)),
			slog.Int("waiting", len(waiting)))
	}
	return nil
}

// reaper periodically returns jobs stuck in the active state to the
// queue. A job goes stale when its worker died without the whole
// process restarting, such as a panic swallowed by Recover.
func (q *Queue) reaper(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.reapStale(ctx)
		}
	}
}

func (q *Queue) reapStale(ctx context.Context) {
	stale, err := q.jobs.GetJobsByStatus(ctx, domain.JobStatusActive, q.cfg.StaleActiveAge)
	if err != nil {
		q.logger.Error("failed to scan for stale jobs", slog.String("error", err.Error()))
		return
	}
	for _, job := range stale {
		q.logger.Warn("requeueing stale active job",
			slog.String("job_id", job.ID),
			slog.Time("last_update", job.UpdatedAt))
		if err := q.jobs.UpdateJobStatus(ctx, job.ID, domain.JobStatusWaiting, "requeued after stall"); err != nil {
			q.logger.Error("failed to reset stale job",
				slog.String("job_id", job.ID), slog.String("error", err.Error()))
			continue
		}
		job.Status = domain.JobStatusWaiting
		select {
		case q.ch <- job:
		default:
			// Buffer full; the job stays waiting and the next restart
			// or reap cycle picks it up.
		}
	}
}
