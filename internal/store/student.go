package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/funnelkit/provision-api/internal/domain"
)

// StudentStore persists the dependent records of a provisioned account.
// Every write is keyed by the identity store's account ID and must be
// tolerant of re-execution: a retried provisioning attempt re-runs steps
// whose records may already exist.
type StudentStore interface {
	// CreateUserRow inserts the core user row. Re-running for the same
	// account is a no-op.
	CreateUserRow(ctx context.Context, student *domain.Student) error

	// CreateEnrollment inserts the enrollment record linking the student
	// to the granting manager.
	CreateEnrollment(ctx context.Context, student *domain.Student) error

	// CreateProfile inserts the student's course profile row.
	CreateProfile(ctx context.Context, accountID uuid.UUID) error

	// CreateInitialProgress seeds the first module's progress row.
	CreateInitialProgress(ctx context.Context, accountID uuid.UUID) error

	// LogActivity appends a manager activity record.
	LogActivity(ctx context.Context, managerID, accountID uuid.UUID, action string, details map[string]any) error

	// MarkWelcomeEmailSent flags the enrollment after the welcome email
	// goes out.
	MarkWelcomeEmailSent(ctx context.Context, accountID uuid.UUID) error

	// HasEnrollment reports whether a dependent enrollment record exists
	// for the account. The idempotency guard uses this, together with
	// HasProfile and HasInitialProgress, to distinguish "identity
	// created but records pending" from "fully provisioned".
	HasEnrollment(ctx context.Context, accountID uuid.UUID) (bool, error)

	// HasProfile reports whether the account's profile row exists.
	HasProfile(ctx context.Context, accountID uuid.UUID) (bool, error)

	// HasInitialProgress reports whether the account has any progress
	// row.
	HasInitialProgress(ctx context.Context, accountID uuid.UUID) (bool, error)

	// DeleteAccountRows removes the dependent rows for an account. Used
	// only by the compensating rollback when provisioning fails
	// permanently partway through.
	DeleteAccountRows(ctx context.Context, accountID uuid.UUID) error
}
