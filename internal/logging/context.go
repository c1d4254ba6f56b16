package logging

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys defined by this package.
type ContextKey string

const (
	// CorrelationIDKey tags a value that identifies one inbound HTTP
	// request. It is not carried into the auction or across RPC to peers.
	CorrelationIDKey ContextKey = "correlation_id"
)

// NewCorrelationID mints a fresh correlation id, used by the HTTP
// middleware to tag a request that arrives without one.
func NewCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelationID attaches a correlation id to ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// CorrelationID retrieves the correlation id from ctx, or "" if absent.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}
