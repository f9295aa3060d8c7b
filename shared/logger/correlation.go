package logger

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/image-tasks/shared/correlation"
)

// CorrelationHandler adds the trace id found in the record's context.
type CorrelationHandler struct {
	next slog.Handler
}

// NewCorrelationHandler wraps next.
func NewCorrelationHandler(next slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{next: next}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := correlation.FromContext(ctx); ok {
		r.AddAttrs(slog.String(correlation.LogKey, id))
	}
	return h.next.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{next: h.next.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{next: h.next.WithGroup(name)}
}
