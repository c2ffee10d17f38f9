package resilience

import (
	"context"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is blocking all requests.
	StateOpen
	// StateHalfOpen means the circuit is testing if the service recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures within
	// FailureWindow before the circuit opens.
	// Default: 5
	FailureThreshold int

	// SuccessThreshold is the number of consecutive successful trial calls
	// required to close a half-open circuit.
	// Default: 1
	SuccessThreshold int

	// ResetTimeout is how long an open circuit waits before admitting a
	// trial call.
	// Default: 30 seconds
	ResetTimeout time.Duration

	// FailureWindow bounds how far back failures count toward the
	// threshold. Records older than the window are pruned lazily.
	// Default: 60 seconds
	FailureWindow time.Duration

	// Timeout bounds each guarded call. A timed-out call counts as a
	// failure and is surfaced as ErrTimeout.
	// Default: 0 (no per-call timeout)
	Timeout time.Duration

	// Fallback, if set, runs instead of the guarded call while the circuit
	// is open; its result is returned in place of ErrCircuitOpen.
	Fallback func(ctx context.Context, err error) error

	// OnStateChange is called when the circuit state changes.
	OnStateChange func(from, to State)

	// OnFailure is called after each counted failure.
	OnFailure func(err error)

	// OnSuccess is called after each successful guarded call.
	OnSuccess func()

	// IsFailure determines if an error should count as a failure.
	// Default: all non-nil errors are failures.
	IsFailure func(err error) bool
}

// CircuitBreaker implements the circuit breaker pattern with a sliding
// failure window.
//
// State transitions: Closed opens once FailureThreshold failures accumulate
// within FailureWindow. Open rejects calls until ResetTimeout elapses, then
// admits trial calls in the HalfOpen state. HalfOpen closes after
// SuccessThreshold consecutive successes; any half-open failure reopens the
// circuit and restarts the reset clock.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu           sync.Mutex
	state        State
	failureTimes []time.Time // sliding window, pruned lazily
	successes    int         // consecutive half-open successes
	trialCalls   int         // in-flight half-open trial calls
	openedAt     time.Time

	// Lifetime counters, distinct from the sliding window.
	totalCalls     int64
	totalSuccesses int64
	totalFailures  int64
	lastSuccess    time.Time
	lastFailure    time.Time
}

// NewCircuitBreaker creates a new circuit breaker in the closed state.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	// Apply defaults
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.FailureWindow <= 0 {
		config.FailureWindow = 60 * time.Second
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
	}
}

// Execute runs the operation through the circuit breaker. While the
// circuit is open it returns ErrCircuitOpen without running the operation,
// or the fallback's result if one is configured.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.beforeCall(); err != nil {
		if cb.config.Fallback != nil {
			return cb.config.Fallback(ctx, err)
		}
		return err
	}

	var err error
	if cb.config.Timeout > 0 {
		err = ExecuteWithTimeout(ctx, cb.config.Timeout, op)
	} else {
		err = op(ctx)
	}

	cb.afterCall(err)
	return err
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentStateLocked()
}

// IsClosed reports whether the circuit is closed.
func (cb *CircuitBreaker) IsClosed() bool { return cb.State() == StateClosed }

// IsOpen reports whether the circuit is open.
func (cb *CircuitBreaker) IsOpen() bool { return cb.State() == StateOpen }

// IsHalfOpen reports whether the circuit is half-open.
func (cb *CircuitBreaker) IsHalfOpen() bool { return cb.State() == StateHalfOpen }

// Open forces the circuit open, restarting the reset clock. Opening an
// already-open circuit is a no-op.
func (cb *CircuitBreaker) Open() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		return
	}
	from := cb.state
	cb.state = StateOpen
	cb.openedAt = time.Now()
	cb.successes = 0
	cb.trialCalls = 0

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, StateOpen)
	}
}

// Reset returns the circuit to the closed state and clears the sliding
// failure window. Resetting a closed circuit is a no-op.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	from := cb.state
	cb.state = StateClosed
	cb.failureTimes = cb.failureTimes[:0]
	cb.successes = 0
	cb.trialCalls = 0

	if from != StateClosed && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, StateClosed)
	}
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalCalls++

	switch cb.currentStateLocked() {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.trialCalls >= cb.config.SuccessThreshold {
			return ErrCircuitOpen
		}
		cb.trialCalls++
	}

	return nil
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	isFailure := cb.config.IsFailure(err)
	from := cb.state

	if isFailure {
		cb.totalFailures++
		cb.lastFailure = now
	} else {
		cb.totalSuccesses++
		cb.lastSuccess = now
	}

	switch cb.state {
	case StateClosed:
		if isFailure {
			cb.failureTimes = append(cb.failureTimes, now)
			cb.pruneFailuresLocked(now)
			if len(cb.failureTimes) >= cb.config.FailureThreshold {
				cb.state = StateOpen
				cb.openedAt = now
				cb.failureTimes = cb.failureTimes[:0]
			}
		} else {
			// A success breaks the consecutive-failure run.
			cb.failureTimes = cb.failureTimes[:0]
		}

	case StateHalfOpen:
		if cb.trialCalls > 0 {
			cb.trialCalls--
		}
		if isFailure {
			// Failed trial call: reopen and restart the reset clock.
			cb.state = StateOpen
			cb.openedAt = now
			cb.successes = 0
			cb.trialCalls = 0
		} else {
			cb.successes++
			if cb.successes >= cb.config.SuccessThreshold {
				cb.state = StateClosed
				cb.failureTimes = cb.failureTimes[:0]
				cb.successes = 0
				cb.trialCalls = 0
			}
		}
	}

	if from != cb.state && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, cb.state)
	}
	if isFailure && cb.config.OnFailure != nil {
		cb.config.OnFailure(err)
	}
	if !isFailure && cb.config.OnSuccess != nil {
		cb.config.OnSuccess()
	}
}

// currentStateLocked resolves the Open -> HalfOpen transition, which is
// driven by the clock rather than by an event.
func (cb *CircuitBreaker) currentStateLocked() State {
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.config.ResetTimeout {
		cb.state = StateHalfOpen
		cb.successes = 0
		cb.trialCalls = 0
		if cb.config.OnStateChange != nil {
			cb.config.OnStateChange(StateOpen, StateHalfOpen)
		}
	}
	return cb.state
}

// pruneFailuresLocked drops failure records older than FailureWindow so
// transient bursts outside the window do not count toward the threshold.
func (cb *CircuitBreaker) pruneFailuresLocked(now time.Time) {
	cutoff := now.Add(-cb.config.FailureWindow)
	i := 0
	for i < len(cb.failureTimes) && cb.failureTimes[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		cb.failureTimes = append(cb.failureTimes[:0], cb.failureTimes[i:]...)
	}
}

// Stats returns cumulative lifetime counters alongside the current state.
// These are distinct from the sliding failure window used for transitions.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerStats{
		State:          cb.currentStateLocked(),
		TotalCalls:     cb.totalCalls,
		TotalSuccesses: cb.totalSuccesses,
		TotalFailures:  cb.totalFailures,
		LastSuccess:    cb.lastSuccess,
		LastFailure:    cb.lastFailure,
	}
}

// CircuitBreakerStats contains circuit breaker statistics.
type CircuitBreakerStats struct {
	State          State
	TotalCalls     int64
	TotalSuccesses int64
	TotalFailures  int64
	LastSuccess    time.Time
	LastFailure    time.Time
}
