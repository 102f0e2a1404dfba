package store

import (
	"context"
	"time"

	"github.com/funnelkit/provision-api/internal/domain"
)

// JobStore defines the interface for persisting provisioning jobs.
type JobStore interface {
	// SaveJob persists a new job. Saving an existing job ID returns
	// ErrDuplicate.
	SaveJob(ctx context.Context, job *domain.ProvisionJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*domain.ProvisionJob, error)

	// UpdateJobStatus updates the status and last error of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status domain.JobStatus, lastError string) error

	// IncrementAttempts bumps the attempt counter and returns the new count.
	IncrementAttempts(ctx context.Context, jobID string) (int, error)

	// GetJobsByStatus retrieves jobs in the given status ordered by
	// priority then creation time. If olderThan is non-zero, only jobs
	// whose last update is older than the duration are returned.
	GetJobsByStatus(ctx context.Context, status domain.JobStatus, olderThan time.Duration) ([]*domain.ProvisionJob, error)

	// CountByStatus returns the number of jobs per status.
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error)

	// TrimTerminal evicts the oldest jobs in a terminal status beyond
	// keep, returning the number evicted.
	TrimTerminal(ctx context.Context, status domain.JobStatus, keep int) (int, error)
}
