package logger

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext extracts the logger from context, falling back to the
// default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
		return l
	}
	return Default()
}

// WithConn returns a context whose logger is tagged with a connection's
// trace id and numeric origin.
func WithConn(ctx context.Context, traceID string, origin uint64) context.Context {
	l := FromContext(ctx).With(slog.String("conn", traceID), slog.Uint64("origin", origin))
	return WithLogger(ctx, l)
}
