package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for common logging fields.
const (
	// ContextKeySessionID identifies the realtime session.
	ContextKeySessionID contextKey = "session_id"

	// ContextKeyConnectionID identifies one socket within a session.
	ContextKeyConnectionID contextKey = "connection_id"

	// ContextKeyComponent identifies the emitting component (e.g. "realtime", "audio").
	ContextKeyComponent contextKey = "component"

	// ContextKeyModel identifies the remote model.
	ContextKeyModel contextKey = "model"
)

// allContextKeys lists all context keys that should be extracted for logging.
var allContextKeys = []contextKey{
	ContextKeySessionID,
	ContextKeyConnectionID,
	ContextKeyComponent,
	ContextKeyModel,
}

// WithSessionID returns a new context with the session ID set.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, sessionID)
}

// WithConnectionID returns a new context with the connection ID set.
func WithConnectionID(ctx context.Context, connectionID string) context.Context {
	return context.WithValue(ctx, ContextKeyConnectionID, connectionID)
}

// WithComponent returns a new context with the component name set.
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, ContextKeyComponent, component)
}

// WithModel returns a new context with the model name set.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, ContextKeyModel, model)
}

// LoggingFields holds all standard logging context fields.
type LoggingFields struct {
	SessionID    string
	ConnectionID string
	Component    string
	Model        string
}

// WithLoggingContext returns a new context with multiple logging fields set at once.
// Only non-empty values are set.
func WithLoggingContext(ctx context.Context, fields *LoggingFields) context.Context {
	if fields == nil {
		return ctx
	}
	if fields.SessionID != "" {
		ctx = WithSessionID(ctx, fields.SessionID)
	}
	if fields.ConnectionID != "" {
		ctx = WithConnectionID(ctx, fields.ConnectionID)
	}
	if fields.Component != "" {
		ctx = WithComponent(ctx, fields.Component)
	}
	if fields.Model != "" {
		ctx = WithModel(ctx, fields.Model)
	}
	return ctx
}

// ExtractLoggingFields extracts all logging fields from a context.
func ExtractLoggingFields(ctx context.Context) LoggingFields {
	fields := LoggingFields{}
	fields.SessionID, _ = ctx.Value(ContextKeySessionID).(string)
	fields.ConnectionID, _ = ctx.Value(ContextKeyConnectionID).(string)
	fields.Component, _ = ctx.Value(ContextKeyComponent).(string)
	fields.Model, _ = ctx.Value(ContextKeyModel).(string)
	return fields
}
