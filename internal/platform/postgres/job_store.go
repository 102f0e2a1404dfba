package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/funnelkit/provision-api/internal/domain"
	"github.com/funnelkit/provision-api/internal/store"
)

// JobStore implements store.JobStore using PostgreSQL. Jobs survive
// process restarts; the queue's recovery pass re-queues whatever was
// left in a non-terminal state.
type JobStore struct {
	db store.DBTX
}

// NewJobStore creates a new JobStore.
func NewJobStore(db store.DBTX) *JobStore {
	return &JobStore{db: db}
}

var _ store.JobStore = (*JobStore)(nil)

// SaveJob persists a new job.
func (s *JobStore) SaveJob(ctx context.Context, job *domain.ProvisionJob) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	query := `
		INSERT INTO provision_jobs (id, payload, priority, attempts, status, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, query,
		job.ID, payload, job.Priority, job.Attempts, job.Status, job.LastError, now, now)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", MapError(err))
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (*domain.ProvisionJob, error) {
	query := `
		SELECT id, payload, priority, attempts, status, last_error, created_at, updated_at
		FROM provision_jobs
		WHERE id = $1
	`
	row := s.db.QueryRowContext(ctx, query, jobID)
	job, err := scanJob(row)
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", MapError(err))
	}
	return job, nil
}

// UpdateJobStatus updates the status and last error of a job.
func (s *JobStore) UpdateJobStatus(ctx context.Context, jobID string, status domain.JobStatus, lastError string) error {
	query := `
		UPDATE provision_jobs
		SET status = $1, last_error = $2, updated_at = $3
		WHERE id = $4
	`
	result, err := s.db.ExecContext(ctx, query, status, lastError, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", MapError(err))
	}
	if err := CheckRowsAffected(result, "job"); err != nil {
		return err
	}
	return nil
}

// IncrementAttempts bumps the attempt counter and returns the new count.
func (s *JobStore) IncrementAttempts(ctx context.Context, jobID string) (int, error) {
	query := `
		UPDATE provision_jobs
		SET attempts = attempts + 1, updated_at = $1
		WHERE id = $2
		RETURNING attempts
	`
	var attempts int
	err := s.db.QueryRowContext(ctx, query, time.Now().UTC(), jobID).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("failed to increment attempts: %w", MapError(err))
	}
	return attempts, nil
}

// GetJobsByStatus retrieves jobs in the given status ordered by priority
// then creation time.
func (s *JobStore) GetJobsByStatus(ctx context.Context, status domain.JobStatus, olderThan time.Duration) ([]*domain.ProvisionJob, error) {
	var query string
	var args []any

	if olderThan > 0 {
		query = `
			SELECT id, payload, priority, attempts, status, last_error, created_at, updated_at
			FROM provision_jobs
			WHERE status = $1 AND updated_at < $2
			ORDER BY priority ASC, created_at ASC
		`
		args = []any{status, time.Now().UTC().Add(-olderThan)}
	} else {
		query = `
			SELECT id, payload, priority, attempts, status, last_error, created_at, updated_at
			FROM provision_jobs
			WHERE status = $1
			ORDER BY priority ASC, created_at ASC
		`
		args = []any{status}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs by status: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.ProvisionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}
	return jobs, nil
}

// CountByStatus returns the number of jobs per status.
func (s *JobStore) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM provision_jobs GROUP BY status`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	counts := map[domain.JobStatus]int{
		domain.JobStatusWaiting:   0,
		domain.JobStatusActive:    0,
		domain.JobStatusCompleted: 0,
		domain.JobStatusFailed:    0,
	}
	for rows.Next() {
		var status domain.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job counts: %w", err)
	}
	return counts, nil
}

// TrimTerminal evicts the oldest jobs in a terminal status beyond keep.
func (s *JobStore) TrimTerminal(ctx context.Context, status domain.JobStatus, keep int) (int, error) {
	query := `
		DELETE FROM provision_jobs
		WHERE id IN (
			SELECT id FROM provision_jobs
			WHERE status = $1
			ORDER BY updated_at DESC
			OFFSET $2
		)
	`
	result, err := s.db.ExecContext(ctx, query, status, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to trim %s jobs: %w", status, MapError(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.ProvisionJob, error) {
	var (
		job       domain.ProvisionJob
		payload   []byte
		lastError sql.NullString
	)
	if err := row.Scan(
		&job.ID, &payload, &job.Priority, &job.Attempts,
		&job.Status, &lastError, &job.CreatedAt, &job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &job.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job payload: %w", err)
	}
	job.LastError = lastError.String
	return &job, nil
}
