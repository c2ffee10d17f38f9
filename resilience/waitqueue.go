package resilience

// waiter is a suspended caller parked on a waitQueue. The owner grants it
// by sending on ready; the channel is buffered so a grant never blocks the
// granter.
type waiter[T any] struct {
	ready chan T
}

// waitQueue is an explicit FIFO queue of suspended callers. Fairness is a
// structural invariant: grants always go to the head, and a canceled waiter
// is removed so it cannot be spuriously granted later.
//
// waitQueue is not safe for concurrent use on its own; the owning primitive
// guards it with its own mutex.
type waitQueue[T any] struct {
	waiters []*waiter[T]
}

// push appends a new waiter to the tail and returns its handle.
func (q *waitQueue[T]) push() *waiter[T] {
	w := &waiter[T]{ready: make(chan T, 1)}
	q.waiters = append(q.waiters, w)
	return w
}

// pop removes and returns the head waiter, or nil if the queue is empty.
func (q *waitQueue[T]) pop() *waiter[T] {
	if len(q.waiters) == 0 {
		return nil
	}
	w := q.waiters[0]
	q.waiters[0] = nil
	q.waiters = q.waiters[1:]
	return w
}

// remove deletes w from the queue, preserving order of the remaining
// waiters. It returns false if w is no longer queued, which means the
// owner has already granted it; the caller must then consume the grant.
func (q *waitQueue[T]) remove(w *waiter[T]) bool {
	for i, qw := range q.waiters {
		if qw == w {
			copy(q.waiters[i:], q.waiters[i+1:])
			q.waiters[len(q.waiters)-1] = nil
			q.waiters = q.waiters[:len(q.waiters)-1]
			return true
		}
	}
	return false
}

// len returns the number of queued waiters.
func (q *waitQueue[T]) len() int {
	return len(q.waiters)
}
