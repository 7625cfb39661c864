package logging

import (
	"context"
	"log/slog"
	"strings"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldConnID identifies one accepted client connection.
	FieldConnID = "conn_id"
	// FieldSweepID identifies one expiry pass.
	FieldSweepID = "sweep_id"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a log line for filtering and dashboards.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldSourcePath is the absolute path a client asked to trash.
	FieldSourcePath = "source_path"
	// FieldStoredName is the collision-free name inside the store.
	FieldStoredName = "stored_name"
	// FieldRemoteAddr is the peer address of a client connection.
	FieldRemoteAddr = "remote_addr"
)

type contextKey int

const (
	connIDKey contextKey = iota
	sweepIDKey
	requestIDKey
)

// WithConnID tags ctx with a connection identifier.
func WithConnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, connIDKey, id)
}

// WithSweepID tags ctx with a sweep identifier.
func WithSweepID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sweepIDKey, id)
}

// WithRequestID tags ctx with an API request identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func stringFromContext(ctx context.Context, key contextKey) (string, bool) {
	value, ok := ctx.Value(key).(string)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := stringFromContext(ctx, connIDKey); ok {
		fields = append(fields, slog.String(FieldConnID, id))
	}
	if id, ok := stringFromContext(ctx, sweepIDKey); ok {
		fields = append(fields, slog.String(FieldSweepID, id))
	}
	if id, ok := stringFromContext(ctx, requestIDKey); ok {
		fields = append(fields, slog.String(FieldCorrelationID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
