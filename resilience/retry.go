package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy defines how delays increase between retries.
type BackoffStrategy int

const (
	// BackoffExponential multiplies the delay by Multiplier each attempt.
	BackoffExponential BackoffStrategy = iota
	// BackoffLinear increases delay linearly.
	BackoffLinear
	// BackoffConstant uses the same delay for all retries.
	BackoffConstant
)

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 3
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	// Default: 100ms
	InitialDelay time.Duration

	// MaxDelay caps the maximum delay between retries.
	// Default: 30s
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier for exponential backoff.
	// Default: 2.0
	Multiplier float64

	// Strategy is the backoff strategy.
	// Default: BackoffExponential
	Strategy BackoffStrategy

	// Jitter randomizes each delay uniformly in [0, delay) to prevent
	// thundering herds. The computed delay is an upper bound, not a floor.
	// Default: false
	Jitter bool

	// Timeout bounds each individual attempt. A timed-out attempt counts
	// as a failure and is reported as ErrTimeout.
	// Default: 0 (no per-attempt timeout)
	Timeout time.Duration

	// RetryIf determines if an error should trigger a retry.
	// Default: all non-nil errors trigger retry.
	RetryIf func(err error) bool

	// OnRetry is called before each retry attempt with the failed attempt
	// number, its error, and the delay about to be applied.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Retry implements bounded re-execution with backoff.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a new retry handler.
func NewRetry(config RetryConfig) *Retry {
	// Apply defaults
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.RetryIf == nil {
		config.RetryIf = func(err error) bool { return err != nil }
	}

	return &Retry{config: config}
}

// Execute runs the operation with retry logic. The first attempt runs
// immediately; each subsequent attempt waits for the computed backoff.
// When attempts are exhausted the returned error wraps both
// ErrMaxRetriesExceeded and the last underlying error. If RetryIf rejects
// an error it propagates unchanged.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err := r.attempt(ctx, op)

		if err == nil {
			return nil
		}

		lastErr = err

		// A non-retryable error propagates unchanged.
		if !r.config.RetryIf(err) {
			return err
		}

		if attempt >= r.config.MaxAttempts {
			break
		}

		delay := r.calculateDelay(attempt)

		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		if err := Sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, lastErr)
}

// Result reports the outcome of ExecuteWithResult.
type Result struct {
	Success   bool
	Err       error
	Attempts  int
	TotalTime time.Duration
}

// ExecuteWithResult is the non-failing variant of Execute. Instead of an
// error it returns a Result carrying the outcome, the number of attempts
// consumed, and the total elapsed time including backoff.
func (r *Retry) ExecuteWithResult(ctx context.Context, op func(context.Context) error) Result {
	start := time.Now()
	res := Result{}

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		res.Attempts = attempt
		err := r.attempt(ctx, op)

		if err == nil {
			res.Success = true
			res.TotalTime = time.Since(start)
			return res
		}

		res.Err = err

		if !r.config.RetryIf(err) {
			break
		}
		if attempt >= r.config.MaxAttempts {
			res.Err = fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, err)
			break
		}

		delay := r.calculateDelay(attempt)

		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		if serr := Sleep(ctx, delay); serr != nil {
			res.Err = serr
			break
		}
	}

	res.TotalTime = time.Since(start)
	return res
}

// attempt runs a single attempt, applying the per-attempt timeout and
// converting panics into errors so every failure has a consistent shape.
func (r *Retry) attempt(ctx context.Context, op func(context.Context) error) error {
	safe := func(ctx context.Context) (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("resilience: operation panicked: %v", rec)
			}
		}()
		return op(ctx)
	}

	if r.config.Timeout > 0 {
		return ExecuteWithTimeout(ctx, r.config.Timeout, safe)
	}
	return safe(ctx)
}

func (r *Retry) calculateDelay(attempt int) time.Duration {
	var delay time.Duration

	switch r.config.Strategy {
	case BackoffConstant:
		delay = r.config.InitialDelay

	case BackoffLinear:
		delay = r.config.InitialDelay * time.Duration(attempt)

	case BackoffExponential:
		multiplier := math.Pow(r.config.Multiplier, float64(attempt-1))
		delay = time.Duration(float64(r.config.InitialDelay) * multiplier)
	}

	// Cap at max delay
	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}

	// Full jitter: uniform in [0, delay)
	if r.config.Jitter && delay > 0 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay = time.Duration(rand.Int64N(int64(delay)))
	}

	return delay
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}
