package bus

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrQueueFull   = errors.New("event queue full")
	ErrQueueClosed = errors.New("event queue closed")
)

// Queue is a per-subscriber event queue preserving publication order. The
// capacity bounds TryPublish only; Publish always accepts, so a handler
// publishing to its own full queue never blocks the goroutine that drains
// it.
type Queue struct {
	mu     sync.Mutex
	buf    []Event
	head   int
	limit  int
	closed bool

	wake chan struct{}
}

// NewQueue allocates a queue with the given capacity bound.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{limit: capacity, wake: make(chan struct{}, 1)}
}

// TryPublish enqueues an event unless the queue is at capacity.
func (q *Queue) TryPublish(e Event) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if len(q.buf)-q.head >= q.limit {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.buf = append(q.buf, e)
	q.mu.Unlock()
	q.notify()
	return nil
}

// Publish enqueues an event past the capacity bound.
func (q *Queue) Publish(e Event) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.buf = append(q.buf, e)
	q.mu.Unlock()
	q.notify()
	return nil
}

// Close stops the queue from accepting new events.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notify()
}

// Run consumes events until the context is done or the queue is closed and
// drained.
func (q *Queue) Run(ctx context.Context, handler func(Event)) {
	for {
		e, ok, done := q.next()
		if ok {
			handler(e)
			continue
		}
		if done {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}
	}
}

func (q *Queue) next() (Event, bool, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head < len(q.buf) {
		e := q.buf[q.head]
		q.buf[q.head] = Event{}
		q.head++
		if q.head == len(q.buf) {
			q.buf = q.buf[:0]
			q.head = 0
		}
		return e, true, false
	}
	return Event{}, false, q.closed
}

func (q *Queue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
