package resilience

import (
	"context"
	"sync"
)

// Mutex is an exclusive-access lock with a FIFO wait queue.
//
// Unlike sync.Mutex, acquisition is context-aware and waiters are served
// strictly in arrival order. At most one holder exists at a time.
type Mutex struct {
	mu      sync.Mutex
	locked  bool
	waiters waitQueue[struct{}]
}

// NewMutex creates a new unlocked mutex.
func NewMutex() *Mutex {
	return &Mutex{}
}

// Acquire blocks until the lock is free, then marks it held.
// It returns ctx.Err() if the context is canceled while waiting, in which
// case the caller does not hold the lock.
func (m *Mutex) Acquire(ctx context.Context) error {
	m.mu.Lock()
	if !m.locked {
		m.locked = true
		m.mu.Unlock()
		return nil
	}
	w := m.waiters.push()
	m.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		removed := m.waiters.remove(w)
		m.mu.Unlock()
		if !removed {
			// The grant raced with cancellation; accept it and hand the
			// lock to the next waiter so it is not lost.
			<-w.ready
			m.Release()
		}
		return ctx.Err()
	}
}

// TryAcquire acquires the lock without blocking.
// It returns false if the lock is held.
func (m *Mutex) TryAcquire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locked {
		return false
	}
	m.locked = true
	return true
}

// Release hands the lock to the longest-waiting caller, or marks it free
// if no one is waiting. Releasing an unheld mutex is a no-op.
func (m *Mutex) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.locked {
		return
	}
	if w := m.waiters.pop(); w != nil {
		// Lock stays held; ownership transfers to the head waiter.
		w.ready <- struct{}{}
		return
	}
	m.locked = false
}

// RunExclusive acquires the lock, runs fn, and releases on every exit path.
// Errors from fn propagate after release.
func (m *Mutex) RunExclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := m.Acquire(ctx); err != nil {
		return err
	}
	defer m.Release()

	return fn(ctx)
}

// Locked reports whether the lock is currently held.
func (m *Mutex) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}
