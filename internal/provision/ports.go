package provision

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/funnelkit/provision-api/internal/domain"
)

// ErrAccountNotFound is returned by IdentityStore.FindAccountByEmail
// when no account exists for the address.
var ErrAccountNotFound = errors.New("identity account not found")

// Account is the identity provider's view of a user account.
type Account struct {
	ID        uuid.UUID
	Email     string
	CreatedAt time.Time
}

// IdentityStore is the port over the external identity provider's admin
// API. Account creation is the one step of the workflow that cannot be
// made idempotent by insert semantics, so the provisioner checks
// FindAccountByEmail before creating.
type IdentityStore interface {
	// CreateAccount registers a confirmed account with the provider.
	CreateAccount(ctx context.Context, email, password string, metadata map[string]any) (*Account, error)

	// DeleteAccount removes an account. Used by the compensating
	// rollback when provisioning fails after account creation.
	DeleteAccount(ctx context.Context, accountID uuid.UUID) error

	// FindAccountByEmail looks up an account by its normalized address.
	// Returns ErrAccountNotFound when absent.
	FindAccountByEmail(ctx context.Context, email string) (*Account, error)
}

// EmailSender delivers the welcome email. Delivery is best effort: a
// send failure never fails provisioning.
type EmailSender interface {
	SendWelcomeEmail(ctx context.Context, email, fullName string) error
}

// Enqueuer is the slice of the queue the submitter needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *domain.ProvisionJob) error
}
