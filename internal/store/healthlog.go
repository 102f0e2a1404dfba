package store

import (
	"context"
	"time"

	"github.com/funnelkit/provision-api/internal/domain"
)

// HealthLogStore is the append-only sink for job lifecycle events and
// health-check outcomes.
type HealthLogStore interface {
	// Append writes one entry. Implementations must not mutate or delete
	// existing entries.
	Append(ctx context.Context, entry *domain.HealthLogEntry) error

	// Recent returns the most recent entries, newest first.
	Recent(ctx context.Context, limit int) ([]*domain.HealthLogEntry, error)

	// HasRecentProvisionSuccess reports whether a provision_succeeded
	// entry exists for the contact key within the window. This is the
	// structured replacement for the original message-substring search.
	HasRecentProvisionSuccess(ctx context.Context, contactKey string, within time.Duration) (bool, error)
}
