package observe

import (
	"context"
	"time"
)

// GuardFunc is the signature for guarded operations. It matches the
// operation shape the resilience primitives execute, so an instrumented
// function drops straight into Retry, CircuitBreaker, or Executor.
type GuardFunc func(ctx context.Context) error

// Middleware wraps guarded operations with observability (tracing, metrics, logging).
//
// Contract:
//   - Concurrency: Wrap() returns a thread-safe GuardFunc.
//   - Context: Propagates context through tracing spans.
//   - Errors: Errors from the wrapped function are recorded and propagated unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a new Middleware with the given observability components.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// Wrap wraps a GuardFunc with tracing, metrics, and logging under the
// given guard identity.
func (m *Middleware) Wrap(meta GuardMeta, fn GuardFunc) GuardFunc {
	return func(ctx context.Context) error {
		ctx, span := m.tracer.StartSpan(ctx, meta)

		start := time.Now()
		err := fn(ctx)
		duration := time.Since(start)

		// End span (records error status if err != nil)
		m.tracer.EndSpan(span, err)

		m.metrics.RecordExecution(ctx, meta, duration, err)

		guardLogger := m.logger.WithGuard(meta)
		fields := []Field{
			{Key: "duration_ms", Value: float64(duration.Milliseconds())},
		}

		if err != nil {
			fields = append(fields,
				Field{Key: "error", Value: err.Error()},
				Field{Key: "error_kind", Value: ErrorKind(err)},
			)
			guardLogger.Error(ctx, "guarded execution failed", fields...)
		} else {
			guardLogger.Info(ctx, "guarded execution completed", fields...)
		}

		return err
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
// This is a convenience function for common use cases.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	tracer := newTracer(obs.Tracer())

	metrics, err := newMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(tracer, metrics, obs.Logger()), nil
}
