package domain

import (
	"time"

	"github.com/google/uuid"
)

// HealthEventType is the severity of a health log entry.
type HealthEventType string

// Health event severities. SWITCH records an operator mode change;
// CRITICAL records an event that demanded immediate fallback action.
const (
	HealthEventInfo     HealthEventType = "INFO"
	HealthEventWarning  HealthEventType = "WARNING"
	HealthEventError    HealthEventType = "ERROR"
	HealthEventSwitch   HealthEventType = "SWITCH"
	HealthEventCritical HealthEventType = "CRITICAL"
)

// Structured event kinds recorded alongside the severity. The
// idempotency guard keys off KindProvisionSucceeded + ContactKey rather
// than searching message text.
const (
	KindJobEnqueued        = "job_enqueued"
	KindProvisionSucceeded = "provision_succeeded"
	KindProvisionFailed    = "provision_failed"
	KindModeSwitched       = "mode_switched"
	KindHealthCheck        = "health_check"
	KindQueueFallback      = "queue_fallback"
)

// HealthLogEntry is an append-only audit record of a job lifecycle event
// or health-check outcome. Entries are never mutated or deleted by this
// service; retention is an external concern.
type HealthLogEntry struct {
	ID         uuid.UUID       `json:"id"`
	EventType  HealthEventType `json:"event_type"`
	Kind       string          `json:"kind"`
	Message    string          `json:"message"`
	ContactKey string          `json:"contact_key,omitempty"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewHealthLogEntry builds an entry with a fresh ID and timestamp.
func NewHealthLogEntry(eventType HealthEventType, kind, message string) *HealthLogEntry {
	return &HealthLogEntry{
		ID:        uuid.New(),
		EventType: eventType,
		Kind:      kind,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
}

// WithContactKey attaches the normalized contact address the entry is about.
func (e *HealthLogEntry) WithContactKey(key string) *HealthLogEntry {
	e.ContactKey = NormalizeEmail(key)
	return e
}

// WithMetadata attaches structured metadata.
func (e *HealthLogEntry) WithMetadata(md map[string]any) *HealthLogEntry {
	e.Metadata = md
	return e
}
