package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/funnelkit/provision-api/internal/domain"
)

// worker pulls jobs off the dispatch channel and runs them through the
// executor. Each start passes the rate limiter first so bursts of
// submissions drain at a controlled pace.
func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()

	logger := q.logger.With(slog.Int("worker", id))
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.ch:
			if err := q.limiter.Wait(ctx); err != nil {
				// Shutdown while waiting for a slot. The job stays
				// persisted as waiting and is recovered on restart.
				return
			}
			q.process(ctx, job, logger)
		}
	}
}

// process runs one job, converting panics in the executor into job
// failures so a single bad payload cannot take down the pool.
func (q *Queue) process(ctx context.Context, job *domain.ProvisionJob, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing job",
				slog.String("job_id", job.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			q.handleFailure(ctx, job, fmt.Errorf("panic: %v", r), logger)
		}
	}()

	if err := q.jobs.UpdateJobStatus(ctx, job.ID, domain.JobStatusActive, ""); err != nil {
		logger.Error("failed to mark job active",
			slog.String("job_id", job.ID), slog.String("error", err.Error()))
		return
	}

	logger.Info("processing job",
		slog.String("job_id", job.ID),
		slog.Int("attempt", job.Attempts+1))

	if err := q.executor.Execute(ctx, job); err != nil {
		q.handleFailure(ctx, job, err, logger)
		return
	}

	if err := q.jobs.UpdateJobStatus(ctx, job.ID, domain.JobStatusCompleted, ""); err != nil {
		logger.Error("failed to mark job completed",
			slog.String("job_id", job.ID), slog.String("error", err.Error()))
		return
	}
	logger.Info("job completed", slog.String("job_id", job.ID))
	q.trim(ctx, domain.JobStatusCompleted, q.cfg.KeepCompleted, logger)
}

// handleFailure records the attempt and either schedules a delayed
// retry or marks the job failed once the attempt budget is spent. The
// retry delay doubles with each attempt.
func (q *Queue) handleFailure(ctx context.Context, job *domain.ProvisionJob, execErr error, logger *slog.Logger) {
	attempts, err := q.jobs.IncrementAttempts(ctx, job.ID)
	if err != nil {
		logger.Error("failed to record job attempt",
			slog.String("job_id", job.ID), slog.String("error", err.Error()))
		attempts = job.Attempts + 1
	}
	job.Attempts = attempts

	if attempts >= q.cfg.MaxAttempts {
		if err := q.jobs.UpdateJobStatus(ctx, job.ID, domain.JobStatusFailed, execErr.Error()); err != nil {
			logger.Error("failed to mark job failed",
				slog.String("job_id", job.ID), slog.String("error", err.Error()))
		}
		logger.Error("job failed permanently",
			slog.String("job_id", job.ID),
			slog.Int("attempts", attempts),
			slog.String("error", execErr.Error()))

		entry := domain.NewHealthLogEntry(domain.HealthEventError, domain.KindProvisionFailed,
			fmt.Sprintf("job %s failed after %d attempts: %v", job.ID, attempts, execErr)).
			WithContactKey(job.Payload.ContactKey()).
			WithMetadata(map[string]any{"job_id": job.ID, "attempts": attempts})
		if err := q.logs.Append(ctx, entry); err != nil {
			logger.Error("failed to append failure log entry",
				slog.String("job_id", job.ID), slog.String("error", err.Error()))
		}

		q.trim(ctx, domain.JobStatusFailed, q.cfg.KeepFailed, logger)
		return
	}

	delay := q.cfg.BackoffBase << (attempts - 1)
	if err := q.jobs.UpdateJobStatus(ctx, job.ID, domain.JobStatusWaiting, execErr.Error()); err != nil {
		logger.Error("failed to return job to waiting",
			slog.String("job_id", job.ID), slog.String("error", err.Error()))
		return
	}

	entry := domain.NewHealthLogEntry(domain.HealthEventError, domain.KindProvisionFailed,
		fmt.Sprintf("job %s attempt %d failed: %v", job.ID, attempts, execErr)).
		WithContactKey(job.Payload.ContactKey()).
		WithMetadata(map[string]any{"job_id": job.ID, "attempt": attempts, "retry_in": delay.String()})
	if err := q.logs.Append(ctx, entry); err != nil {
		logger.Error("failed to append attempt log entry",
			slog.String("job_id", job.ID), slog.String("error", err.Error()))
	}

	logger.Warn("job attempt failed, retry scheduled",
		slog.String("job_id", job.ID),
		slog.Int("attempt", attempts),
		slog.Duration("delay", delay),
		slog.String("error", execErr.Error()))

	time.AfterFunc(delay, func() {
		select {
		case <-ctx.Done():
		case q.ch <- job:
		default:
			// Buffer full; the job stays persisted as waiting and is
			// recovered on the next restart.
		}
	})
}

// trim evicts the oldest terminal jobs beyond the retention count.
func (q *Queue) trim(ctx context.Context, status domain.JobStatus, keep int, logger *slog.Logger) {
	evicted, err := q.jobs.TrimTerminal(ctx, status, keep)
	if err != nil {
		logger.Error("failed to trim terminal jobs",
			slog.String("status", string(status)), slog.String("error", err.Error()))
		return
	}
	if evicted > 0 {
		logger.Debug("trimmed terminal jobs",
			slog.String("status", string(status)), slog.Int("evicted", evicted))
	}
}
