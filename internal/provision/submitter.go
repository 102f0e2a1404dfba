package provision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/funnelkit/provision-api/internal/domain"
	"github.com/funnelkit/provision-api/internal/store"
)

// SubmitResult reports how a provisioning request was handled.
type SubmitResult struct {
	// Queued is true when the request was accepted onto the durable
	// queue for asynchronous processing.
	Queued bool `json:"queued"`

	// JobID identifies the queued job. Empty on the synchronous path.
	JobID string `json:"job_id,omitempty"`

	// Student is the provisioned account. Nil until the job runs when
	// Queued is true.
	Student *domain.Student `json:"student,omitempty"`

	// AlreadyProvisioned is true when the guard resolved the request as
	// a duplicate of completed work.
	AlreadyProvisioned bool `json:"already_provisioned,omitempty"`
}

// Submitter is the single entry point for provisioning requests. It
// routes each request through the queue or the synchronous provisioner
// according to the current system mode, and falls back to synchronous
// processing when the queue rejects a job.
type Submitter struct {
	mode   *ModeController
	queue  Enqueuer
	guard  *Guard
	prov   *Provisioner
	logs   store.HealthLogStore
	logger *slog.Logger
	now    func() time.Time
}

// NewSubmitter creates a submitter.
func NewSubmitter(mode *ModeController, queue Enqueuer, guard *Guard, prov *Provisioner, logs store.HealthLogStore, logger *slog.Logger) *Submitter {
	return &Submitter{
		mode:   mode,
		queue:  queue,
		guard:  guard,
		prov:   prov,
		logs:   logs,
		logger: logger.With(slog.String("component", "submitter")),
		now:    time.Now,
	}
}

// Submit validates and routes one provisioning request.
func (s *Submitter) Submit(ctx context.Context, req domain.ProvisionRequest) (*SubmitResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if s.mode.Current(ctx) == domain.ModeAsyncQueue {
		result, err := s.submitAsync(ctx, req)
		if err == nil {
			return result, nil
		}
		// Queue outage. Record it loudly and serve the request anyway.
		s.logger.Error("queue rejected job, falling back to synchronous processing",
			slog.String("contact_key", req.ContactKey()),
			slog.String("error", err.Error()))
		entry := domain.NewHealthLogEntry(domain.HealthEventCritical, domain.KindQueueFallback,
			fmt.Sprintf("queue rejected job for %s, processed synchronously: %v", req.ContactKey(), err)).
			WithContactKey(req.ContactKey())
		if logErr := s.logs.Append(ctx, entry); logErr != nil {
			s.logger.Error("failed to append fallback log entry", slog.String("error", logErr.Error()))
		}
	}

	return s.submitSync(ctx, req)
}

func (s *Submitter) submitAsync(ctx context.Context, req domain.ProvisionRequest) (*SubmitResult, error) {
	job := domain.NewProvisionJob(domain.NewJobID(req.Email, s.now()), req, domain.DefaultJobPriority)
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return nil, err
	}

	entry := domain.NewHealthLogEntry(domain.HealthEventInfo, domain.KindJobEnqueued,
		fmt.Sprintf("enqueued provisioning job %s", job.ID)).
		WithContactKey(req.ContactKey()).
		WithMetadata(map[string]any{"job_id": job.ID})
	if err := s.logs.Append(ctx, entry); err != nil {
		s.logger.Error("failed to append enqueue log entry",
			slog.String("job_id", job.ID), slog.String("error", err.Error()))
	}

	s.logger.Info("provisioning job enqueued",
		slog.String("job_id", job.ID),
		slog.String("contact_key", req.ContactKey()))
	return &SubmitResult{Queued: true, JobID: job.ID}, nil
}

func (s *Submitter) submitSync(ctx context.Context, req domain.ProvisionRequest) (*SubmitResult, error) {
	processed, err := s.guard.AlreadyProcessed(ctx, req)
	if err != nil {
		return nil, err
	}
	if processed {
		s.logger.Info("request already provisioned, skipping",
			slog.String("contact_key", req.ContactKey()))
		return &SubmitResult{AlreadyProvisioned: true}, nil
	}

	student, err := s.prov.Provision(ctx, req)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Student: student}, nil
}
