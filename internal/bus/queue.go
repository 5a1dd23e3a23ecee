// Package bus carries tagged input events from every producer (channel
// pollers, scheduler) to the single dispatcher goroutine. The queue is
// unbounded so producers never block; per-producer FIFO order is
// preserved because each producer pushes from a single goroutine.
package bus

import (
	"context"
	"sync"
)

// Queue is a multi-producer, single-consumer FIFO.
type Queue struct {
	mu     sync.Mutex
	items  []Event
	wake   chan struct{}
	closed bool
}

func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Push enqueues an event without blocking. Pushes after Close are
// dropped.
func (q *Queue) Push(event Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, event)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pop blocks until an event is available, the queue is closed, or the
// context is cancelled.
func (q *Queue) Pop(ctx context.Context) (Event, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			event := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return event, nil
		} else if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.wake:
		}
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close wakes a blocked consumer; queued events remain readable until
// drained.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
