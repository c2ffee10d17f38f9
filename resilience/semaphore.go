package resilience

import (
	"context"
	"sync"
)

// Semaphore is an N-permit generalization of Mutex with the same FIFO
// fairness guarantee: never more than N concurrent holders, and suspended
// callers are granted permits strictly in arrival order.
//
// A semaphore with a small permit count also serves as a bulkhead, limiting
// concurrent operations to prevent resource exhaustion; Execute wraps an
// operation in an acquire/release pair for that use.
type Semaphore struct {
	mu        sync.Mutex
	permits   int // currently available
	size      int // total permits
	waiters   waitQueue[struct{}]
	maxActive int
	rejected  int64
}

// NewSemaphore creates a semaphore with the given number of permits.
// Permit counts below 1 are raised to 1.
func NewSemaphore(permits int) *Semaphore {
	if permits < 1 {
		permits = 1
	}
	return &Semaphore{permits: permits, size: permits}
}

// Acquire takes a permit, blocking in FIFO order if none is available.
// It returns ctx.Err() if the context is canceled while waiting, in which
// case no permit is held.
func (s *Semaphore) Acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.permits > 0 {
		s.permits--
		s.noteActiveLocked()
		s.mu.Unlock()
		return nil
	}
	w := s.waiters.push()
	s.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		removed := s.waiters.remove(w)
		s.mu.Unlock()
		if !removed {
			// Granted concurrently with cancellation; return the permit.
			<-w.ready
			s.Release()
		}
		return ctx.Err()
	}
}

// TryAcquire takes a permit without blocking.
// It returns false if no permit is available.
func (s *Semaphore) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.permits == 0 {
		s.rejected++
		return false
	}
	s.permits--
	s.noteActiveLocked()
	return true
}

// Release returns a permit, waking the longest-waiting caller if any.
// Releasing beyond the permit count is a no-op.
func (s *Semaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w := s.waiters.pop(); w != nil {
		// The permit transfers directly to the head waiter.
		s.noteActiveLocked()
		w.ready <- struct{}{}
		return
	}
	if s.permits < s.size {
		s.permits++
	}
}

// Permits returns the number of currently available permits. The value is
// a point-in-time snapshot and may be stale by the time it is read.
func (s *Semaphore) Permits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permits
}

// Execute runs the operation while holding a permit, releasing it on every
// exit path.
func (s *Semaphore) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := s.Acquire(ctx); err != nil {
		return err
	}
	defer s.Release()

	return op(ctx)
}

// noteActiveLocked updates the high-water mark after a permit is taken.
func (s *Semaphore) noteActiveLocked() {
	active := s.size - s.permits
	if active > s.maxActive {
		s.maxActive = active
	}
}

// Metrics returns current semaphore statistics.
func (s *Semaphore) Metrics() SemaphoreMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SemaphoreMetrics{
		Permits:   s.size,
		Available: s.permits,
		Active:    s.size - s.permits,
		MaxActive: s.maxActive,
		Waiting:   s.waiters.len(),
		Rejected:  s.rejected,
	}
}

// SemaphoreMetrics contains semaphore statistics.
type SemaphoreMetrics struct {
	Permits   int
	Available int
	Active    int
	MaxActive int
	Waiting   int
	Rejected  int64
}
