package provision

import (
	"context"
	"log/slog"

	"github.com/funnelkit/provision-api/internal/domain"
)

// Executor adapts the provisioner to the queue's job interface. Each
// job passes the idempotency guard first, so a job retried after a
// crash or requeued by the reaper resolves to a no-op success when the
// work already happened.
type Executor struct {
	guard  *Guard
	prov   *Provisioner
	logger *slog.Logger
}

// NewExecutor creates the queue-facing executor.
func NewExecutor(guard *Guard, prov *Provisioner, logger *slog.Logger) *Executor {
	return &Executor{
		guard:  guard,
		prov:   prov,
		logger: logger.With(slog.String("component", "executor")),
	}
}

// Execute runs one provisioning job.
func (e *Executor) Execute(ctx context.Context, job *domain.ProvisionJob) error {
	processed, err := e.guard.AlreadyProcessed(ctx, job.Payload)
	if err != nil {
		return err
	}
	if processed {
		e.logger.Info("job already provisioned, skipping",
			slog.String("job_id", job.ID),
			slog.String("contact_key", job.Payload.ContactKey()))
		return nil
	}

	_, err = e.prov.Provision(ctx, job.Payload)
	return err
}
