package eventbus

import (
	"sync"

	"github.com/smallbiznis/procurelink/internal/integrationevent/domain"
)

// eventQueue is an unbounded FIFO shared by every publisher and drained by a
// single dispatcher. Unbounded so that rule cascades never block a publisher.
type eventQueue struct {
	mu     sync.Mutex
	events []domain.IntegrationEvent
	closed bool
	signal chan struct{} // buffered, size 1; coalesces wakeups
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]domain.IntegrationEvent, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// enqueue stamps and appends the event under the queue lock so that id order
// matches queue order. Returns false once the queue is closed.
func (q *eventQueue) enqueue(e domain.IntegrationEvent, stamp func(*domain.IntegrationEvent)) (domain.IntegrationEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return domain.IntegrationEvent{}, false
	}
	if stamp != nil {
		stamp(&e)
	}
	q.events = append(q.events, e)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return e, true
}

// tryDequeue pops the front event without blocking.
func (q *eventQueue) tryDequeue() (domain.IntegrationEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return domain.IntegrationEvent{}, false
	}

	e := q.events[0]
	// Release the payload map held by the backing array.
	q.events[0] = domain.IntegrationEvent{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

func (q *eventQueue) wait() <-chan struct{} {
	return q.signal
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// close rejects further publishes; queued events stay drainable.
func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

func (q *eventQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
