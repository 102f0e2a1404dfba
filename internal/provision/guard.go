package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/funnelkit/provision-api/internal/domain"
	"github.com/funnelkit/provision-api/internal/store"
)

// Guard decides whether a provisioning request has already completed,
// so a retried or duplicated job becomes a no-op success instead of a
// second account.
type Guard struct {
	logs     store.HealthLogStore
	identity IdentityStore
	students store.StudentStore
	window   time.Duration
}

// NewGuard creates a guard with the given recent-success window.
func NewGuard(logs store.HealthLogStore, identity IdentityStore, students store.StudentStore, window time.Duration) *Guard {
	return &Guard{logs: logs, identity: identity, students: students, window: window}
}

// AlreadyProcessed reports whether the request's contact was fully
// provisioned already. Two signals count: a recent provision_succeeded
// log entry for the contact key, or an identity account that already
// has all of its dependent records (enrollment, profile and initial
// progress). An account missing any of them is a partial run and must
// be resumed, not skipped; the provisioning steps tolerate re-runs, so
// resuming only creates what is still absent.
func (g *Guard) AlreadyProcessed(ctx context.Context, req domain.ProvisionRequest) (bool, error) {
	key := req.ContactKey()

	done, err := g.logs.HasRecentProvisionSuccess(ctx, key, g.window)
	if err != nil {
		return false, fmt.Errorf("failed to check recent provision success: %w", err)
	}
	if done {
		return true, nil
	}

	account, err := g.identity.FindAccountByEmail(ctx, key)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up identity account: %w", err)
	}

	checks := []struct {
		name string
		has  func(ctx context.Context, id uuid.UUID) (bool, error)
	}{
		{"enrollment", g.students.HasEnrollment},
		{"profile", g.students.HasProfile},
		{"initial progress", g.students.HasInitialProgress},
	}
	for _, check := range checks {
		exists, err := check.has(ctx, account.ID)
		if err != nil {
			return false, fmt.Errorf("failed to check %s: %w", check.name, err)
		}
		if !exists {
			return false, nil
		}
	}
	return true, nil
}
