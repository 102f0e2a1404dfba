// Package postgres implements this service's store interfaces on top of
// PostgreSQL via database/sql with the pgx driver. It also maps
// PostgreSQL error codes onto the store package's sentinel errors so
// that callers (and the retry wrapper's classifier) never inspect
// driver-specific errors directly.
package postgres
