package logging

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type correlationKey struct{}

// NewCorrelationID returns a fresh short hex identifier used to tie together
// log entries emitted while handling one request or device event.
func NewCorrelationID() string {
	return uuid.NewString()[:8]
}

// WithCorrelation returns a logger that stamps every record with the given
// correlation id.
func WithCorrelation(logger *slog.Logger, correlationID string) *slog.Logger {
	return logger.With("correlation_id", correlationID)
}

// ContextWithCorrelation attaches a correlation id to the context.
func ContextWithCorrelation(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationKey{}, correlationID)
}

// CorrelationFromContext returns the attached correlation id, if any.
func CorrelationFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
