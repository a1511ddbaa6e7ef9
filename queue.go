package agentrelay

import (
	"context"
	"errors"
	"sync"
)

var errQueueClosed = errors.New("event queue closed")

// closedSignal is returned by ready when the queue needs no waiting.
var closedSignal = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// eventQueue is the unbounded queue between a run's producer and its
// consumers. Closing it keeps already queued events poppable.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	closed bool
	// signal is closed and replaced whenever the queue changes.
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{})}
}

func (q *eventQueue) notifyLocked() {
	close(q.signal)
	q.signal = make(chan struct{})
}

// push enqueues ev. It reports false when the queue is already closed.
func (q *eventQueue) push(ev Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, ev)
	q.notifyLocked()
	return true
}

func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notifyLocked()
}

// ready returns a channel that is closed once tryPop has something to report.
func (q *eventQueue) ready() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) > 0 || q.closed {
		return closedSignal
	}
	return q.signal
}

// tryPop never blocks. ok is false when nothing is queued; err is
// errQueueClosed once the queue is closed and drained.
func (q *eventQueue) tryPop() (ev Event, ok bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) > 0 {
		ev = q.items[0]
		q.items[0] = Event{}
		q.items = q.items[1:]
		return ev, true, nil
	}
	if q.closed {
		return Event{}, false, errQueueClosed
	}
	return Event{}, false, nil
}

// pop blocks until an event is available, the queue is closed and drained, or
// ctx is done.
func (q *eventQueue) pop(ctx context.Context) (Event, error) {
	for {
		ev, ok, err := q.tryPop()
		if ok || err != nil {
			return ev, err
		}
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-q.ready():
		}
	}
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
