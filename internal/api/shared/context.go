package shared

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// ContextKey is the type for values this package stores on the request
// context.
type ContextKey string

const (
	// UserIDContextKey holds the authenticated user's UUID.
	UserIDContextKey ContextKey = "userID"

	// UserNameContextKey holds the authenticated user's display name.
	UserNameContextKey ContextKey = "userName"

	// RoleContextKey holds the authenticated user's role claim.
	RoleContextKey ContextKey = "role"

	// TraceIDKey holds the request trace ID.
	TraceIDKey ContextKey = "traceID"
)

// SetTraceID attaches a fresh trace ID to the context for log and
// error-response correlation.
func SetTraceID(ctx context.Context) context.Context {
	return context.WithValue(ctx, TraceIDKey, generateTraceID())
}

// GetTraceID returns the trace ID from the context, or "" if unset.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

func generateTraceID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// rand failure is effectively impossible; fall back to a UUID
		// rather than a static value.
		return uuid.NewString()
	}
	return hex.EncodeToString(b)
}
