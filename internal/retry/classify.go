package retry

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/funnelkit/provision-api/internal/domain"
	"github.com/funnelkit/provision-api/internal/store"
)

// Postgres error codes that indicate a permanent condition. Constraint
// violations and schema mismatches will not resolve by retrying.
var permanentPgCodes = map[string]bool{
	"23505": true, // unique_violation
	"23503": true, // foreign_key_violation
	"23514": true, // check_violation
	"42P01": true, // undefined_table
	"42703": true, // undefined_column
	"42883": true, // undefined_function
}

// Substrings that mark upstream API failures as permanent. The identity
// provider reports these conditions as plain message text.
var permanentMessages = []string{
	"already exists",
	"already registered",
	"duplicate key",
	"unauthorized",
	"forbidden",
	"not found",
	"invalid input",
}

// IsPermanent reports whether err should not be retried. Context
// cancellation of the outer request, validation failures, duplicate
// records, and authorization rejections are permanent; timeouts and
// connection failures are not.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}

	// A deadline on one attempt is worth retrying; outer cancellation
	// is handled by Do's select and never reaches here as permanent.
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrInvalidEmail) ||
		errors.Is(err, domain.ErrUnauthorized) {
		return true
	}
	if store.IsDuplicateError(err) || store.IsNotFoundError(err) ||
		errors.Is(err, store.ErrInvalidEntity) ||
		errors.Is(err, store.ErrUndefinedObject) ||
		errors.Is(err, store.ErrEmailExists) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return permanentPgCodes[pgErr.Code]
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range permanentMessages {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
