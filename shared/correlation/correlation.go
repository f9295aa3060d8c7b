// Package correlation carries the request trace id through a context.Context
// so producer and consumer log lines can be tied together.
package correlation

import (
	"context"

	"github.com/google/uuid"
)

// DefaultID is used when no trace id was propagated.
const DefaultID = "root"

// HeaderName is the HTTP header the API reads and echoes the trace id on.
const HeaderName = "X-Trace-ID"

// LogKey is the log attribute name for the trace id.
const LogKey = "trace_id"

type contextKey struct{}

// NewID returns a fresh trace id.
func NewID() string {
	return uuid.New().String()
}

// WithID returns a copy of ctx carrying id. An empty id leaves ctx unchanged.
func WithID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, id)
}

// ID returns the trace id stored in ctx, or DefaultID.
func ID(ctx context.Context) string {
	if ctx == nil {
		return DefaultID
	}
	if id, ok := ctx.Value(contextKey{}).(string); ok && id != "" {
		return id
	}
	return DefaultID
}

// FromContext returns the trace id and whether one was set explicitly.
func FromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}
