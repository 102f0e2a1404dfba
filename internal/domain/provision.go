package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProvisionRequest is the payload of a provisioning job: the fields
// required to create a student account plus the requesting manager.
type ProvisionRequest struct {
	FullName        string    `json:"full_name"`
	Email           string    `json:"email"`
	Password        string    `json:"password"`
	RequestedByID   uuid.UUID `json:"requested_by_id"`
	RequestedByName string    `json:"requested_by_name,omitempty"`
}

// ContactKey returns the normalized contact address that identifies the
// target account for idempotency purposes.
func (r ProvisionRequest) ContactKey() string {
	return NormalizeEmail(r.Email)
}

// Validate checks the request fields before submission or execution.
func (r ProvisionRequest) Validate() error {
	if r.FullName == "" {
		return ErrEmptyFullName
	}
	if r.Email == "" {
		return ErrEmptyEmail
	}
	if !validEmailFormat(NormalizeEmail(r.Email)) {
		return ErrInvalidEmail
	}
	switch {
	case r.Password == "":
		return ErrEmptyPassword
	case len(r.Password) < 8:
		return ErrPasswordTooShort
	case len(r.Password) > 72: // bcrypt's practical limit
		return ErrPasswordTooLong
	}
	if r.RequestedByID == uuid.Nil {
		return fmt.Errorf("%w: requesting manager ID is required", ErrValidation)
	}
	return nil
}

// NewJobID derives the deterministic job identity for a request: the
// contact key plus the submission timestamp. Resubmission gets a fresh
// ID (no collision with an in-flight job), while retries of the same job
// reuse it and rely on the idempotency guard.
func NewJobID(email string, submittedAt time.Time) string {
	return fmt.Sprintf("student-%s-%d", NormalizeEmail(email), submittedAt.UnixMilli())
}
