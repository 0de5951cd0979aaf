package logger

import (
	"context"
)

// ContextKey type for storing context values
type contextKey string

const (
	// RequestIDKey carries the per-request correlation ID
	RequestIDKey contextKey = "request_id"
)

// ContextWithRequestID stores a request ID for later log calls
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestIDFromContext returns the request ID, or "" when none is set
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// WithContext returns a logger that tags every entry with the context's request ID
func (l *Logger) WithContext(ctx context.Context) *Logger {
	id := RequestIDFromContext(ctx)
	if id == "" {
		return l
	}
	return l.With(map[string]interface{}{"request_id": id})
}
