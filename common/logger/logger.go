package logger

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

// Setup installs the default slog handler: human-readable text in
// development, JSON elsewhere, both wrapped in the TraceHandler so trace ids
// and context fields flow into every record.
func Setup(env string) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if env == "development" {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if env == "development" {
		handler = NewTraceHandler(slog.NewTextHandler(os.Stdout, opts))
	} else {
		handler = NewTraceHandler(slog.NewJSONHandler(os.Stdout, opts))
	}

	slog.SetDefault(slog.New(handler))
}

type TraceHandler struct {
	slog.Handler
}

func NewTraceHandler(h slog.Handler) *TraceHandler {
	return &TraceHandler{Handler: h}
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	// Add OTel trace/span IDs from context
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	// Add structured fields from context (automatic enrichment)
	fields := GetLogFields(ctx)
	if fields.SessionID != nil {
		r.AddAttrs(slog.String("session_id", *fields.SessionID))
	}
	if fields.AgentID != nil {
		r.AddAttrs(slog.String("agent_id", *fields.AgentID))
	}
	if fields.CustomerID != nil {
		r.AddAttrs(slog.String("customer_id", *fields.CustomerID))
	}
	if fields.CorrelationID != nil {
		r.AddAttrs(slog.String("correlation_id", *fields.CorrelationID))
	}
	if fields.Offset != nil {
		r.AddAttrs(slog.Int64("offset", *fields.Offset))
	}
	if fields.Component != "" {
		r.AddAttrs(slog.String("component", fields.Component))
	}

	return h.Handler.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}
