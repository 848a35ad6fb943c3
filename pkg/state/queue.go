package state

import "sync"

// fifo is an unbounded queue. Push never blocks, so work can be scheduled from any goroutine,
// including the one draining the queue.
type fifo[T any] struct {
	mu     sync.Mutex
	items  []T
	signal chan struct{}
	closed bool
}

func newFIFO[T any]() *fifo[T] {
	return &fifo[T]{signal: make(chan struct{}, 1)}
}

func (q *fifo[T]) push(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()

		return false
	}

	q.items = append(q.items, v)
	q.mu.Unlock()

	q.wake()

	return true
}

// pop blocks until an item is available. It returns false once the queue is closed and drained.
func (q *fifo[T]) pop() (T, bool) {
	for {
		q.mu.Lock()

		if len(q.items) > 0 {
			v := q.items[0]

			var zero T

			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()

			return v, true
		}

		if q.closed {
			q.mu.Unlock()

			var zero T

			return zero, false
		}

		q.mu.Unlock()

		<-q.signal
	}
}

func (q *fifo[T]) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.wake()
}

func (q *fifo[T]) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
