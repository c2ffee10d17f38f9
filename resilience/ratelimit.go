package resilience

import (
	"context"
	"sync"
	"time"
)

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// Limit is the bucket capacity. A limit of 0 is a caller error: every
	// call is rejected (or queued forever). It is not validated here.
	Limit int

	// Window is the refill period.
	// Default: 1 second
	Window time.Duration

	// RefillAmount is the number of tokens added per elapsed window.
	// Default: Limit (full refill)
	RefillAmount int

	// QueueRequests enqueues rejected Execute calls instead of failing
	// them; queued calls run in FIFO order as later refills free tokens.
	// Default: false
	QueueRequests bool

	// MaxQueueSize bounds the overflow queue. When the queue is full the
	// newest request is rejected.
	// Default: 100
	MaxQueueSize int
}

// RateLimiter implements token-bucket admission control.
//
// Refill is windowed rather than continuous: elapsed whole windows each add
// RefillAmount tokens (clamped to Limit), and the refill clock advances by
// the consumed windows rather than resetting to now, so repeated short
// bursts do not drift the schedule. Partial windows contribute nothing.
type RateLimiter struct {
	config RateLimiterConfig

	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
	queue      waitQueue[struct{}]
	drainTimer *time.Timer

	allowed int64
	limited int64
}

// NewRateLimiter creates a new rate limiter with a full bucket.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	// Apply defaults
	if config.Limit < 0 {
		config.Limit = 0
	}
	if config.Window <= 0 {
		config.Window = time.Second
	}
	if config.RefillAmount <= 0 {
		config.RefillAmount = config.Limit
	}
	if config.MaxQueueSize <= 0 {
		config.MaxQueueSize = 100
	}

	return &RateLimiter{
		config:     config,
		tokens:     config.Limit,
		lastRefill: time.Now(),
	}
}

// Allow consumes one token and returns true if one is available after
// refill, else false without blocking.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.allowLocked()
}

func (rl *RateLimiter) allowLocked() bool {
	rl.refillLocked(time.Now())

	if rl.tokens > 0 {
		rl.tokens--
		rl.allowed++
		return true
	}
	rl.limited++
	return false
}

// refillLocked adds RefillAmount tokens per whole elapsed window, clamped
// to Limit. lastRefill advances by the consumed windows, not to now.
func (rl *RateLimiter) refillLocked(now time.Time) {
	elapsed := now.Sub(rl.lastRefill)
	if elapsed < rl.config.Window {
		return
	}

	windows := int64(elapsed / rl.config.Window)
	rl.tokens += int(windows) * rl.config.RefillAmount
	if rl.tokens > rl.config.Limit {
		rl.tokens = rl.config.Limit
	}
	rl.lastRefill = rl.lastRefill.Add(time.Duration(windows) * rl.config.Window)
}

// Wait blocks until a token is consumed or ctx is canceled. It polls at a
// sub-interval of the window, so admission is eventual rather than
// precisely timed.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	interval := rl.config.Window / 10
	if interval < time.Millisecond {
		interval = time.Millisecond
	}

	for {
		if rl.Allow() {
			return nil
		}
		if err := Sleep(ctx, interval); err != nil {
			return err
		}
	}
}

// Execute runs the operation if a token is available. When the bucket is
// empty and QueueRequests is enabled, the call is parked in a bounded FIFO
// queue and runs once a later refill reaches it; with queueing disabled, or
// when the queue is full, Execute returns ErrRateLimitExceeded immediately.
func (rl *RateLimiter) Execute(ctx context.Context, op func(context.Context) error) error {
	rl.mu.Lock()
	if rl.allowLocked() {
		rl.mu.Unlock()
		return op(ctx)
	}

	if !rl.config.QueueRequests || rl.queue.len() >= rl.config.MaxQueueSize {
		rl.mu.Unlock()
		return ErrRateLimitExceeded
	}

	w := rl.queue.push()
	rl.scheduleDrainLocked()
	rl.mu.Unlock()

	select {
	case <-w.ready:
		return op(ctx)
	case <-ctx.Done():
		rl.mu.Lock()
		removed := rl.queue.remove(w)
		rl.mu.Unlock()
		if !removed {
			// A token was granted concurrently with cancellation; give it
			// back so the next refill cycle can hand it out again.
			<-w.ready
			rl.mu.Lock()
			rl.tokens++
			rl.allowed--
			rl.mu.Unlock()
		}
		return ctx.Err()
	}
}

// scheduleDrainLocked arms a timer for the next refill boundary so queued
// calls are granted without an admission call having to come in first.
func (rl *RateLimiter) scheduleDrainLocked() {
	if rl.drainTimer != nil {
		return
	}

	next := rl.lastRefill.Add(rl.config.Window)
	wait := time.Until(next)
	if wait < 0 {
		wait = 0
	}
	rl.drainTimer = time.AfterFunc(wait, rl.drainQueue)
}

// drainQueue grants refilled tokens to queued waiters in FIFO order and
// re-arms the timer while waiters remain.
func (rl *RateLimiter) drainQueue() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.drainTimer = nil
	rl.refillLocked(time.Now())

	for rl.tokens > 0 {
		w := rl.queue.pop()
		if w == nil {
			break
		}
		rl.tokens--
		rl.allowed++
		w.ready <- struct{}{}
	}

	if rl.queue.len() > 0 {
		rl.scheduleDrainLocked()
	}
}

// Stats returns current rate limiter statistics.
func (rl *RateLimiter) Stats() RateLimiterStats {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillLocked(time.Now())

	return RateLimiterStats{
		Tokens:  rl.tokens,
		Queued:  rl.queue.len(),
		Allowed: rl.allowed,
		Limited: rl.limited,
	}
}

// RateLimiterStats contains rate limiter statistics. Allowed and Limited
// are cumulative admission counts; a queued call counts as limited on
// entry and as allowed once granted.
type RateLimiterStats struct {
	Tokens  int
	Queued  int
	Allowed int64
	Limited int64
}

// Reset refills the bucket to capacity and restarts the refill clock.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.tokens = rl.config.Limit
	rl.lastRefill = time.Now()
}
