package domain

import "time"

// JobStatus represents the current state of a provisioning job.
type JobStatus string

// Possible job status values.
const (
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// DefaultJobPriority is assigned when the submitter does not override it.
// Lower values dequeue first.
const DefaultJobPriority = 1

// ProvisionJob is one unit of deferred provisioning work with its own
// payload and retry state. Terminal jobs are retained up to a bounded
// count for operator inspection, then evicted oldest-first.
type ProvisionJob struct {
	ID        string           `json:"id"`
	Payload   ProvisionRequest `json:"payload"`
	Priority  int              `json:"priority"`
	Attempts  int              `json:"attempts"`
	Status    JobStatus        `json:"status"`
	LastError string           `json:"last_error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NewProvisionJob creates a waiting job for the given payload.
func NewProvisionJob(id string, payload ProvisionRequest, priority int) *ProvisionJob {
	now := time.Now().UTC()
	return &ProvisionJob{
		ID:        id,
		Payload:   payload,
		Priority:  priority,
		Status:    JobStatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Terminal reports whether the job has reached a final state.
func (j *ProvisionJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
