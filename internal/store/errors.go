package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in
	// the store.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity (e.g., a student with the same email).
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails a database
	// constraint before being stored.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrUndefinedObject is returned when a query references a table,
	// column, or procedure the schema layer does not (yet) recognize.
	// During schema-cache propagation this is an expected, transient-ish
	// condition that the health monitor waits out.
	ErrUndefinedObject = errors.New("undefined database object")

	// Entity-specific errors.

	ErrJobNotFound     = fmt.Errorf("%w: job", ErrNotFound)
	ErrStudentNotFound = fmt.Errorf("%w: student", ErrNotFound)
	ErrModeUnset       = fmt.Errorf("%w: system mode", ErrNotFound)
	ErrEmailExists     = fmt.Errorf("%w: email", ErrDuplicate)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate" error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
