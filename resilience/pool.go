package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// PoolConfig configures a resource pool.
type PoolConfig[T any] struct {
	// New creates a resource. Required.
	New func(ctx context.Context) (T, error)

	// Destroy releases a resource. Optional; called on eviction, failed
	// validation, and pool close.
	Destroy func(ctx context.Context, resource T) error

	// Validate is a health check run before a pooled resource is handed
	// out. A resource that fails validation is destroyed and replaced.
	// Optional; when nil every pooled resource is considered healthy.
	Validate func(ctx context.Context, resource T) bool

	// Min is the number of resources created eagerly and kept through
	// idle eviction.
	// Default: 0
	Min int

	// Max bounds the total number of resources.
	// Default: 10
	Max int

	// IdleTimeout evicts resources idle beyond this duration, down to Min.
	// Default: 0 (no idle eviction)
	IdleTimeout time.Duration

	// AcquireTimeout bounds how long Acquire waits for a resource before
	// failing with ErrPoolTimeout.
	// Default: 0 (wait until ctx is canceled)
	AcquireTimeout time.Duration

	// SweepInterval is how often the idle sweeper runs.
	// Default: IdleTimeout / 2
	SweepInterval time.Duration
}

// poolEntry tracks one pooled resource through its lifecycle.
type poolEntry[T any] struct {
	resource  T
	createdAt time.Time
	lastUsed  time.Time
	inUse     bool
}

// poolGrant is what a queued acquirer is woken with: a handed-off entry, a
// closed notice, or neither, which means capacity freed up and the waiter
// should retry.
type poolGrant[T any] struct {
	entry  *poolEntry[T]
	closed bool
}

// Resource is a handle to an acquired pool resource. The holder owns it
// exclusively until it is returned with Pool.Release.
type Resource[T any] struct {
	entry *poolEntry[T]
}

// Value returns the underlying resource.
func (r *Resource[T]) Value() T {
	return r.entry.resource
}

// Pool manages a bounded set of externally-created resources with FIFO
// bounded-wait acquisition and idle eviction.
//
// The pool never inspects resource internals beyond calling the configured
// Validate and Destroy hooks.
type Pool[T any] struct {
	config PoolConfig[T]

	mu      sync.Mutex
	entries map[*poolEntry[T]]struct{} // all live entries, in use or idle
	idle    []*poolEntry[T]            // FIFO of idle entries
	waiters waitQueue[poolGrant[T]]

	draining  bool
	closed    bool
	drainedCh chan struct{} // closed when draining and no entry is in use

	sweepStop chan struct{}
	sweepDone chan struct{}

	timeouts int64
}

// NewPool creates a pool and eagerly fills it to Min resources. It fails
// if the factory is missing or any eager creation fails; resources created
// before the failure are destroyed.
func NewPool[T any](ctx context.Context, config PoolConfig[T]) (*Pool[T], error) {
	if config.New == nil {
		return nil, errors.New("resilience: pool requires a New factory")
	}
	// Apply defaults
	if config.Max <= 0 {
		config.Max = 10
	}
	if config.Min < 0 {
		config.Min = 0
	}
	if config.Min > config.Max {
		config.Min = config.Max
	}
	if config.SweepInterval <= 0 && config.IdleTimeout > 0 {
		config.SweepInterval = config.IdleTimeout / 2
	}

	p := &Pool[T]{
		config:  config,
		entries: make(map[*poolEntry[T]]struct{}),
	}

	for i := 0; i < config.Min; i++ {
		entry, err := p.create(ctx)
		if err != nil {
			_ = p.Close(ctx)
			return nil, err
		}
		p.mu.Lock()
		entry.inUse = false
		p.idle = append(p.idle, entry)
		p.mu.Unlock()
	}

	if config.IdleTimeout > 0 {
		p.sweepStop = make(chan struct{})
		p.sweepDone = make(chan struct{})
		go p.sweep()
	}

	return p, nil
}

// Acquire returns an idle, validated resource, creating one if the pool is
// below Max. When the pool is at capacity the caller joins a FIFO wait
// queue until a resource is released, AcquireTimeout elapses
// (ErrPoolTimeout), or ctx is canceled.
func (p *Pool[T]) Acquire(ctx context.Context) (*Resource[T], error) {
	var deadline <-chan time.Time
	if p.config.AcquireTimeout > 0 {
		timer := time.NewTimer(p.config.AcquireTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		p.mu.Lock()
		if p.closed || p.draining {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		// Idle resources are handed out first, oldest first.
		if entry := p.popIdleLocked(); entry != nil {
			p.mu.Unlock()
			if p.validateEntry(ctx, entry) {
				return &Resource[T]{entry: entry}, nil
			}
			continue
		}

		if len(p.entries) < p.config.Max {
			p.mu.Unlock()
			entry, err := p.create(ctx)
			if errors.Is(err, errPoolAtCapacity) {
				// Lost the capacity race; go around and queue.
				continue
			}
			if err != nil {
				return nil, err
			}
			return &Resource[T]{entry: entry}, nil
		}

		w := p.waiters.push()
		p.mu.Unlock()

		select {
		case grant := <-w.ready:
			if grant.closed {
				return nil, ErrPoolClosed
			}
			if grant.entry == nil {
				// Capacity freed up; retry, which will create a
				// replacement resource.
				continue
			}
			if p.validateEntry(ctx, grant.entry) {
				return &Resource[T]{entry: grant.entry}, nil
			}
			// The handed-off resource went bad while idle; retry.

		case <-deadline:
			grant, removed := p.abandonWait(w)
			if removed || grant.entry == nil {
				p.mu.Lock()
				p.timeouts++
				if !removed && !grant.closed {
					// Pass a raced retry signal on to the next waiter.
					p.wakeOneLocked()
				}
				p.mu.Unlock()
				if grant.closed {
					return nil, ErrPoolClosed
				}
				return nil, ErrPoolTimeout
			}
			// A handoff raced with the deadline; use it rather than reject.
			if p.validateEntry(ctx, grant.entry) {
				return &Resource[T]{entry: grant.entry}, nil
			}

		case <-ctx.Done():
			if grant, removed := p.abandonWait(w); !removed {
				// The caller is gone; pass a raced grant on.
				if grant.entry != nil {
					p.releaseEntry(grant.entry)
				} else if !grant.closed {
					p.mu.Lock()
					p.wakeOneLocked()
					p.mu.Unlock()
				}
			}
			return nil, ctx.Err()
		}
	}
}

// abandonWait removes w from the wait queue. When removal fails a grant
// raced with the abandonment; that grant is returned for the caller to
// dispose of.
func (p *Pool[T]) abandonWait(w *waiter[poolGrant[T]]) (poolGrant[T], bool) {
	p.mu.Lock()
	removed := p.waiters.remove(w)
	p.mu.Unlock()
	if removed {
		return poolGrant[T]{}, true
	}
	return <-w.ready, false
}

// Release returns an acquired resource to the pool. If a caller is
// waiting, the resource is handed to the longest-waiting one; otherwise it
// becomes idle, subject to idle eviction. Releasing into a closed pool
// destroys the resource. Releasing a handle twice is a no-op.
func (p *Pool[T]) Release(r *Resource[T]) {
	if r == nil || r.entry == nil {
		return
	}
	entry := r.entry
	r.entry = nil
	p.releaseEntry(entry)
}

func (p *Pool[T]) releaseEntry(entry *poolEntry[T]) {
	p.mu.Lock()
	if !entry.inUse {
		p.mu.Unlock()
		return
	}
	entry.lastUsed = time.Now()

	if p.closed {
		delete(p.entries, entry)
		p.mu.Unlock()
		p.destroy(entry)
		return
	}

	if w := p.waiters.pop(); w != nil {
		// Direct handoff: the entry stays in use and ownership moves to
		// the head waiter.
		p.mu.Unlock()
		w.ready <- poolGrant[T]{entry: entry}
		return
	}

	entry.inUse = false
	p.idle = append(p.idle, entry)

	if p.draining && p.drainedCh != nil && p.inUseCountLocked() == 0 {
		close(p.drainedCh)
		p.drainedCh = nil
	}
	p.mu.Unlock()
}

// Use acquires a resource, runs fn with it, and releases it on every exit
// path. Errors from fn propagate after release.
func (p *Pool[T]) Use(ctx context.Context, fn func(ctx context.Context, resource T) error) error {
	r, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(r)

	return fn(ctx, r.Value())
}

// Drain stops issuing resources and waits until every in-use resource has
// been released or ctx is canceled. Queued acquirers are rejected with
// ErrPoolClosed. Draining an already-drained pool returns immediately.
func (p *Pool[T]) Drain(ctx context.Context) error {
	p.mu.Lock()
	p.draining = true

	for {
		w := p.waiters.pop()
		if w == nil {
			break
		}
		w.ready <- poolGrant[T]{closed: true}
	}

	if p.inUseCountLocked() == 0 {
		p.mu.Unlock()
		return nil
	}
	if p.drainedCh == nil {
		p.drainedCh = make(chan struct{})
	}
	drained := p.drainedCh
	p.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the pool and destroys every pooled resource. It is
// idempotent; after Close all operations fail with ErrPoolClosed. The
// first Destroy error is returned after all resources are destroyed.
func (p *Pool[T]) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.Drain(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = nil
	for _, entry := range idle {
		delete(p.entries, entry)
	}
	sweepStop := p.sweepStop
	p.sweepStop = nil
	p.mu.Unlock()

	if sweepStop != nil {
		close(sweepStop)
		<-p.sweepDone
	}

	var firstErr error
	for _, entry := range idle {
		if err := p.destroyCtx(ctx, entry); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stats returns current pool statistics.
func (p *Pool[T]) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{
		Size:     len(p.entries),
		InUse:    p.inUseCountLocked(),
		Idle:     len(p.idle),
		Waiting:  p.waiters.len(),
		Timeouts: p.timeouts,
	}
}

// PoolStats contains pool statistics.
type PoolStats struct {
	Size     int
	InUse    int
	Idle     int
	Waiting  int
	Timeouts int64
}

// errPoolAtCapacity reports a lost capacity race inside create.
var errPoolAtCapacity = errors.New("resilience: pool at capacity")

// create makes a new entry, reserving a capacity slot up front so
// concurrent creators cannot exceed Max.
func (p *Pool[T]) create(ctx context.Context) (*poolEntry[T], error) {
	entry := &poolEntry[T]{inUse: true}

	p.mu.Lock()
	if p.closed || p.draining {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if len(p.entries) >= p.config.Max {
		p.mu.Unlock()
		return nil, errPoolAtCapacity
	}
	p.entries[entry] = struct{}{}
	p.mu.Unlock()

	resource, err := p.config.New(ctx)
	if err != nil {
		p.mu.Lock()
		delete(p.entries, entry)
		p.wakeOneLocked()
		p.mu.Unlock()
		return nil, err
	}

	now := time.Now()
	entry.resource = resource
	entry.createdAt = now
	entry.lastUsed = now
	return entry, nil
}

// validateEntry health-checks an entry about to be handed out. A failing
// entry is removed and destroyed; the entry is marked in use on success.
func (p *Pool[T]) validateEntry(ctx context.Context, entry *poolEntry[T]) bool {
	if p.config.Validate != nil && !p.config.Validate(ctx, entry.resource) {
		p.mu.Lock()
		delete(p.entries, entry)
		p.wakeOneLocked()
		p.mu.Unlock()
		p.destroy(entry)
		return false
	}
	entry.inUse = true
	return true
}

// wakeOneLocked tells the head waiter that capacity freed up so it can
// retry acquisition instead of waiting for a release that may never come.
func (p *Pool[T]) wakeOneLocked() {
	if w := p.waiters.pop(); w != nil {
		w.ready <- poolGrant[T]{}
	}
}

// popIdleLocked removes and returns the oldest idle entry, or nil.
func (p *Pool[T]) popIdleLocked() *poolEntry[T] {
	if len(p.idle) == 0 {
		return nil
	}
	entry := p.idle[0]
	p.idle[0] = nil
	p.idle = p.idle[1:]
	return entry
}

func (p *Pool[T]) inUseCountLocked() int {
	n := len(p.entries) - len(p.idle)
	if n < 0 {
		n = 0
	}
	return n
}

// sweep periodically evicts resources idle beyond IdleTimeout, down to Min.
func (p *Pool[T]) sweep() {
	defer close(p.sweepDone)

	ticker := time.NewTicker(p.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.sweepStop:
			return
		case <-ticker.C:
			p.evictIdle(time.Now())
		}
	}
}

// evictIdle removes idle entries whose lastUsed is older than IdleTimeout
// while the pool stays at or above Min.
func (p *Pool[T]) evictIdle(now time.Time) {
	cutoff := now.Add(-p.config.IdleTimeout)

	p.mu.Lock()
	var evicted []*poolEntry[T]
	kept := p.idle[:0]
	for _, entry := range p.idle {
		if len(p.entries)-len(evicted) > p.config.Min && entry.lastUsed.Before(cutoff) {
			evicted = append(evicted, entry)
		} else {
			kept = append(kept, entry)
		}
	}
	p.idle = kept
	for _, entry := range evicted {
		delete(p.entries, entry)
	}
	p.mu.Unlock()

	for _, entry := range evicted {
		p.destroy(entry)
	}
}

func (p *Pool[T]) destroy(entry *poolEntry[T]) {
	_ = p.destroyCtx(context.Background(), entry)
}

func (p *Pool[T]) destroyCtx(ctx context.Context, entry *poolEntry[T]) error {
	if p.config.Destroy == nil {
		return nil
	}
	return p.config.Destroy(ctx, entry.resource)
}
