package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// GuardMeta identifies a guarded operation for telemetry purposes.
type GuardMeta struct {
	ID        string // Fully qualified guard ID (component.name or just name)
	Component string // Component the operation belongs to (may be empty)
	Name      string // Operation name (required)
	Pattern   string // Resilience pattern guarding the call, e.g. "retry", "circuit" (optional)
	Version   string // Component version (optional)
}

// SpanName returns the deterministic span name for this guard.
// Format: guard.exec.<component>.<name> or guard.exec.<name>
func (m GuardMeta) SpanName() string {
	if m.Component != "" {
		return "guard.exec." + m.Component + "." + m.Name
	}
	return "guard.exec." + m.Name
}

// GuardID returns the fully qualified guard identifier.
// If ID field is set, returns it. Otherwise constructs from component and name.
func (m GuardMeta) GuardID() string {
	if m.ID != "" {
		return m.ID
	}
	if m.Component != "" {
		return m.Component + "." + m.Name
	}
	return m.Name
}

// Tracer wraps OpenTelemetry tracing with guard-specific span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: StartSpan must honor cancellation/deadlines and return ctx.Err() when canceled.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for a guarded operation.
	StartSpan(ctx context.Context, meta GuardMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

// tracerImpl is the concrete implementation of Tracer.
type tracerImpl struct {
	tracer trace.Tracer
}

// newTracer creates a new Tracer wrapping the given OpenTelemetry tracer.
func newTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// StartSpan starts a new span with guard metadata as attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, meta GuardMeta) (context.Context, trace.Span) {
	spanName := meta.SpanName()

	attrs := []attribute.KeyValue{
		attribute.String("guard.id", meta.GuardID()),
		attribute.String("guard.name", meta.Name),
		attribute.Bool("guard.error", false), // Will be updated in EndSpan if error
	}

	if meta.Component != "" {
		attrs = append(attrs, attribute.String("guard.component", meta.Component))
	}
	if meta.Pattern != "" {
		attrs = append(attrs, attribute.String("guard.pattern", meta.Pattern))
	}
	if meta.Version != "" {
		attrs = append(attrs, attribute.String("guard.version", meta.Version))
	}

	ctx, span := t.tracer.Start(ctx, spanName,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)

	return ctx, span
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.Bool("guard.error", true),
			attribute.String("guard.error_kind", ErrorKind(err)),
		)
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// noopTracer is a tracer that does nothing.
type noopTracer struct {
	noop trace.Tracer
}

// newNoopTracer creates a no-op tracer.
func newNoopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta GuardMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
