package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/funnelkit/provision-api/internal/domain"
)

// ModeStore persists the single system mode value with change metadata.
type ModeStore interface {
	// GetMode returns the persisted mode. Returns ErrModeUnset when the
	// row has never been written; callers fail open to async_queue.
	GetMode(ctx context.Context) (domain.SystemMode, error)

	// SetMode persists a new mode, recording the actor and time.
	SetMode(ctx context.Context, mode domain.SystemMode, actorID uuid.UUID) error
}
