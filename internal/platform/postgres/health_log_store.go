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

// HealthLogStore implements store.HealthLogStore over the append-only
// system_health_logs table.
type HealthLogStore struct {
	db store.DBTX
}

// NewHealthLogStore creates a new HealthLogStore.
func NewHealthLogStore(db store.DBTX) *HealthLogStore {
	return &HealthLogStore{db: db}
}

var _ store.HealthLogStore = (*HealthLogStore)(nil)

// Append writes one entry.
func (s *HealthLogStore) Append(ctx context.Context, entry *domain.HealthLogEntry) error {
	var metadata []byte
	if entry.Metadata != nil {
		var err error
		metadata, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal log metadata: %w", err)
		}
	}

	query := `
		INSERT INTO system_health_logs (id, event_type, kind, message, contact_key, metadata, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.EventType, entry.Kind, entry.Message,
		entry.ContactKey, metadata, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append health log entry: %w", MapError(err))
	}
	return nil
}

// Recent returns the most recent entries, newest first.
func (s *HealthLogStore) Recent(ctx context.Context, limit int) ([]*domain.HealthLogEntry, error) {
	query := `
		SELECT id, event_type, kind, message, contact_key, metadata, created_at
		FROM system_health_logs
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query health logs: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var entries []*domain.HealthLogEntry
	for rows.Next() {
		var (
			entry      domain.HealthLogEntry
			contactKey sql.NullString
			metadata   []byte
		)
		if err := rows.Scan(
			&entry.ID, &entry.EventType, &entry.Kind, &entry.Message,
			&contactKey, &metadata, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan health log row: %w", err)
		}
		entry.ContactKey = contactKey.String
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal log metadata: %w", err)
			}
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating health log rows: %w", err)
	}
	return entries, nil
}

// HasRecentProvisionSuccess reports whether a provision_succeeded entry
// exists for the contact key within the window.
func (s *HealthLogStore) HasRecentProvisionSuccess(ctx context.Context, contactKey string, within time.Duration) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM system_health_logs
			WHERE kind = $1 AND contact_key = $2 AND created_at > $3
		)
	`
	var exists bool
	err := s.db.QueryRowContext(ctx, query,
		domain.KindProvisionSucceeded,
		domain.NormalizeEmail(contactKey),
		time.Now().UTC().Add(-within),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check provision success log: %w", MapError(err))
	}
	return exists, nil
}
