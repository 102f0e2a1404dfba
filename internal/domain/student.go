package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Student validation errors.
var (
	ErrEmptyStudentID   = errors.New("student ID cannot be empty")
	ErrEmptyEmail       = errors.New("email cannot be empty")
	ErrEmptyFullName    = errors.New("full name cannot be empty")
	ErrEmptyPassword    = errors.New("password cannot be empty")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters long")
	ErrPasswordTooLong  = errors.New("password must be at most 72 characters long")
)

// Student represents a provisioned learner account together with the
// sales manager who granted access. The ID is the identity store's
// account ID; every dependent record is keyed by it.
type Student struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name"`
	HashedPassword string    `json:"-"` // never expose the hash
	GrantedBy      uuid.UUID `json:"granted_by"`
	ManagerName    string    `json:"manager_name"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewStudent builds a Student from a provisioning request and the account
// ID returned by the identity store. The plaintext password never lands
// on the entity; the caller supplies the hash.
func NewStudent(accountID uuid.UUID, req ProvisionRequest, hashedPassword string) (*Student, error) {
	now := time.Now().UTC()
	s := &Student{
		ID:             accountID,
		Email:          NormalizeEmail(req.Email),
		FullName:       req.FullName,
		HashedPassword: hashedPassword,
		GrantedBy:      req.RequestedByID,
		ManagerName:    req.RequestedByName,
		Status:         "active",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the Student for structural correctness.
func (s *Student) Validate() error {
	if s.ID == uuid.Nil {
		return ErrEmptyStudentID
	}
	if s.Email == "" {
		return ErrEmptyEmail
	}
	if !validEmailFormat(s.Email) {
		return ErrInvalidEmail
	}
	if s.FullName == "" {
		return ErrEmptyFullName
	}
	return nil
}

// NormalizeEmail lowercases and trims an email address. All contact-key
// comparisons in the idempotency guard go through this.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validEmailFormat performs basic email shape validation: a single @ with
// a dotted domain after it. Anything stricter belongs to the identity
// store, which is the authority on account addresses.
func validEmailFormat(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	if strings.Contains(domain, "@") {
		return false
	}
	dot := strings.Index(domain, ".")
	return dot > 0 && dot < len(domain)-1
}
