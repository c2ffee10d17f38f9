// Package resilience is an in-process concurrency and resilience kernel.
//
// It provides the coordination primitives an application composes around
// operations that can fail, stall, or contend: mutual exclusion, counted
// permits, token-bucket admission control, bounded retry, circuit breaking,
// and resource pooling. All primitives share one execution model (suspended
// callers parked on explicit FIFO wait queues) and one failure vocabulary
// (timeout, exhaustion, rejection), expressed as sentinel errors in this
// package.
//
// # Primitives
//
//   - Mutex: exclusive-access lock with a FIFO wait queue and a
//     RunExclusive helper that releases on every exit path.
//
//   - Semaphore: N-permit generalization of Mutex. Doubles as a bulkhead:
//     Execute limits concurrent operations to the permit count.
//
//   - RateLimiter: token bucket with whole-window refill and an optional
//     bounded FIFO queue for rejected callers.
//
//   - Retry: bounded re-execution with exponential backoff, jitter, a
//     per-attempt timeout, and a retry predicate.
//
//   - CircuitBreaker: failure-aware proxy that trips open after a threshold
//     of failures within a sliding window, probes recovery through
//     half-open trial calls, and supports a fallback.
//
//   - Pool: bounded set of externally-created resources with creation,
//     validation, and destruction hooks, idle eviction, and bounded-wait
//     acquisition.
//
// # Composition
//
// No primitive calls into another; composition is the caller's
// responsibility. Each primitive is constructed explicitly and owned by the
// caller; there are no package-level shared instances. The Executor
// composes the stateless patterns in a fixed order for convenience:
//
//	sem := resilience.NewSemaphore(10)
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//	    FailureThreshold: 5,
//	    ResetTimeout:     30 * time.Second,
//	})
//	retry := resilience.NewRetry(resilience.RetryConfig{
//	    MaxAttempts:  3,
//	    InitialDelay: 100 * time.Millisecond,
//	})
//
//	executor := resilience.NewExecutor(
//	    resilience.WithSemaphore(sem),
//	    resilience.WithCircuitBreaker(cb),
//	    resilience.WithRetry(retry),
//	    resilience.WithTimeout(5*time.Second),
//	)
//
//	err := executor.Execute(ctx, func(ctx context.Context) error {
//	    return callExternalService(ctx)
//	})
//
// Pooled resources compose the same way at the call site:
//
//	err := retry.Execute(ctx, func(ctx context.Context) error {
//	    return cb.Execute(ctx, func(ctx context.Context) error {
//	        return pool.Use(ctx, func(ctx context.Context, conn *Conn) error {
//	            return conn.Query(ctx, q)
//	        })
//	    })
//	})
//
// # Fairness
//
// Every wait queue in this package is an explicit data structure served in
// strict arrival order. A caller whose context is canceled or whose timeout
// elapses is removed from its queue and can never be spuriously granted
// later.
package resilience
