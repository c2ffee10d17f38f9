package observe

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/guardrail/resilience"
)

// Metrics records execution metrics for guarded operations.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines and return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordExecution records a guarded execution with duration and error status.
	RecordExecution(ctx context.Context, meta GuardMeta, duration time.Duration, err error)
}

// ErrorKind classifies an error into a low-cardinality label for metric
// attributes. Rejections by the guarding patterns get their own kinds so
// shed load is distinguishable from operation failures.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, resilience.ErrRateLimitExceeded):
		return "rate_limited"
	case errors.Is(err, resilience.ErrMaxRetriesExceeded):
		return "retries_exhausted"
	case errors.Is(err, resilience.ErrPoolTimeout):
		return "pool_timeout"
	case errors.Is(err, resilience.ErrPoolClosed):
		return "pool_closed"
	case errors.Is(err, resilience.ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	default:
		return "operation"
	}
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	meter        metric.Meter
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
}

// newMetrics creates a new Metrics instance with the given meter.
func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	totalCount, err := meter.Int64Counter(
		"guard.exec.total",
		metric.WithDescription("Total number of guarded executions"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"guard.exec.errors",
		metric.WithDescription("Total number of guarded execution errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"guard.exec.duration_ms",
		metric.WithDescription("Guarded execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		meter:        meter,
		totalCount:   totalCount,
		errorCount:   errorCount,
		durationHist: durationHist,
	}, nil
}

// RecordExecution records metrics for a guarded execution.
func (m *metricsImpl) RecordExecution(ctx context.Context, meta GuardMeta, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("guard.id", meta.GuardID()),
		attribute.String("guard.name", meta.Name),
	}
	if meta.Component != "" {
		attrs = append(attrs, attribute.String("guard.component", meta.Component))
	}
	if meta.Pattern != "" {
		attrs = append(attrs, attribute.String("guard.pattern", meta.Pattern))
	}

	opt := metric.WithAttributes(attrs...)

	// Always increment total counter
	m.totalCount.Add(ctx, 1, opt)

	// Increment error counter on failure, labeled with the error kind
	if err != nil {
		errAttrs := append(attrs, attribute.String("guard.error_kind", ErrorKind(err)))
		m.errorCount.Add(ctx, 1, metric.WithAttributes(errAttrs...))
	}

	// Record duration in milliseconds
	durationMs := float64(duration.Milliseconds())
	m.durationHist.Record(ctx, durationMs, opt)
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

func (m *noopMetrics) RecordExecution(ctx context.Context, meta GuardMeta, duration time.Duration, err error) {
}
