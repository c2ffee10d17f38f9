package resilience

import "errors"

// Sentinel errors for resilience operations. Each primitive raises exactly
// one of its own kinds at its boundary and never swallows the caller's
// operation errors.
var (
	// ErrTimeout is returned when an operation or attempt exceeds its
	// allotted time.
	ErrTimeout = errors.New("resilience: operation timed out")

	// ErrMaxRetriesExceeded is returned when retry attempts are exhausted.
	// It wraps the last underlying error, so errors.Is matches both.
	ErrMaxRetriesExceeded = errors.New("resilience: max retries exceeded")

	// ErrCircuitOpen is returned when the circuit breaker rejects a call
	// while open and no fallback is configured.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrRateLimitExceeded is returned when the rate limiter rejects a
	// call, or when its overflow queue is full.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")

	// ErrPoolTimeout is returned when pool acquisition exceeds the
	// configured acquire timeout.
	ErrPoolTimeout = errors.New("resilience: pool acquire timed out")

	// ErrPoolClosed is returned for operations attempted after the pool
	// has been drained or closed.
	ErrPoolClosed = errors.New("resilience: pool is closed")
)
