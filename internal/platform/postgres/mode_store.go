package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/funnelkit/provision-api/internal/domain"
	"github.com/funnelkit/provision-api/internal/store"
)

// modeKey is the single system_config row holding the routing mode.
const modeKey = "provisioning_mode"

// ModeStore implements store.ModeStore over the system_config table.
type ModeStore struct {
	db store.DBTX
}

// NewModeStore creates a new ModeStore.
func NewModeStore(db store.DBTX) *ModeStore {
	return &ModeStore{db: db}
}

var _ store.ModeStore = (*ModeStore)(nil)

// GetMode returns the persisted mode.
func (s *ModeStore) GetMode(ctx context.Context) (domain.SystemMode, error) {
	query := `SELECT value FROM system_config WHERE key = $1`
	var raw string
	err := s.db.QueryRowContext(ctx, query, modeKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrModeUnset
		}
		return "", fmt.Errorf("failed to read system mode: %w", MapError(err))
	}
	mode, err := domain.ParseSystemMode(raw)
	if err != nil {
		// A corrupted value behaves like an unset one; the controller
		// fails open to the queue.
		return "", store.ErrModeUnset
	}
	return mode, nil
}

// SetMode persists a new mode, recording the actor and time.
func (s *ModeStore) SetMode(ctx context.Context, mode domain.SystemMode, actorID uuid.UUID) error {
	query := `
		INSERT INTO system_config (key, value, updated_by, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, modeKey, string(mode), actorID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to persist system mode: %w", MapError(err))
	}
	return nil
}
