// Package service wires the domain together: session runtimes, the
// orchestration runner, and asynchronous approval arbitration.
package service

import (
	"context"
	"sync"

	"github.com/Strob0t/ForgeAgent/internal/domain/event"
)

// EventQueue is the unbounded per-session event channel. The writer
// (the runner) never blocks on the reader; a disconnected reader just
// leaves events buffered for the next one.
type EventQueue struct {
	mu     sync.Mutex
	items  []event.StreamEvent
	wake   chan struct{}
	closed bool
}

// NewEventQueue creates an empty queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{wake: make(chan struct{}, 1)}
}

// Send implements broadcast.Sink. It never blocks.
func (q *EventQueue) Send(_ context.Context, ev event.StreamEvent) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pull blocks until an event is available or ctx is cancelled.
// The second return is false when the queue is closed and drained, or
// the context fired.
func (q *EventQueue) Pull(ctx context.Context) (event.StreamEvent, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return ev, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return event.StreamEvent{}, false
		}

		select {
		case <-ctx.Done():
			return event.StreamEvent{}, false
		case <-q.wake:
		}
	}
}

// Close marks the queue closed; buffered events remain pullable.
func (q *EventQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of buffered events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
