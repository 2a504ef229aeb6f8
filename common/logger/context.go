package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within
// a context. Fields flow through context enrichment so conversation context
// (session_id, correlation_id, etc.) appears in every log statement without
// threading it through call sites.
type LogFields struct {
	SessionID     *string // Active session ID
	AgentID       *string // Agent the session targets
	CustomerID    *string // Resolved customer ID (or "guest")
	CorrelationID *string // Causal-chain correlation ID
	Offset        *int64  // Event offset being processed
	Component     string  // Component name (e.g., "widget.poller")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking
// precedence. Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.SessionID != nil {
		result.SessionID = next.SessionID
	}
	if next.AgentID != nil {
		result.AgentID = next.AgentID
	}
	if next.CustomerID != nil {
		result.CustomerID = next.CustomerID
	}
	if next.CorrelationID != nil {
		result.CorrelationID = next.CorrelationID
	}
	if next.Offset != nil {
		result.Offset = next.Offset
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{SessionID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
// Useful for logging potentially long strings like message bodies.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
