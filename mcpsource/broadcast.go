package mcpsource

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/boat-builder/agentrelay"
)

// ErrSubscriptionClosed is returned by Next after the subscription was closed.
var ErrSubscriptionClosed = errors.New("mcpsource: subscription closed")

// broadcaster fans notifications out to every live subscription. Publish
// blocks while a subscriber's buffer is full, but never past the close of that
// subscriber or of the broadcaster.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[*subscription]struct{}
	buf    int
	closed bool
	err    error
	done   chan struct{}
}

func newBroadcaster(buf int) *broadcaster {
	if buf <= 0 {
		buf = 1
	}
	return &broadcaster{
		subs: make(map[*subscription]struct{}),
		buf:  buf,
		done: make(chan struct{}),
	}
}

// subscribe registers a subscription. It is closed automatically when ctx is
// done. Subscribing to a closed broadcaster yields a subscription that reports
// the end of the stream right away.
func (b *broadcaster) subscribe(ctx context.Context) *subscription {
	s := &subscription{
		parent: b,
		ch:     make(chan agentrelay.Notification, b.buf),
		done:   make(chan struct{}),
	}
	b.mu.Lock()
	if !b.closed {
		b.subs[s] = struct{}{}
	}
	b.mu.Unlock()
	s.stop = context.AfterFunc(ctx, s.release)
	return s
}

func (b *broadcaster) publish(n agentrelay.Notification) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	subs := make([]*subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- n:
		case <-s.done:
		case <-b.done:
			return
		}
	}
}

// close ends the stream for every subscription. err is what subscriptions
// report once drained; nil means a clean end.
func (b *broadcaster) close(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.err = err
	clear(b.subs)
	close(b.done)
}

func (b *broadcaster) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

var _ agentrelay.NotificationSource = &subscription{}

type subscription struct {
	parent *broadcaster
	ch     chan agentrelay.Notification
	done   chan struct{}
	once   sync.Once
	stop   func() bool
}

// Next returns buffered notifications first, then io.EOF once the MCP session
// ended cleanly or the session's error if it failed.
func (s *subscription) Next(ctx context.Context) (agentrelay.Notification, error) {
	select {
	case n := <-s.ch:
		return n, nil
	default:
	}

	select {
	case n := <-s.ch:
		return n, nil
	case <-s.done:
		return agentrelay.Notification{}, ErrSubscriptionClosed
	case <-s.parent.done:
		select {
		case n := <-s.ch:
			return n, nil
		default:
		}
		if s.parent.err != nil {
			return agentrelay.Notification{}, s.parent.err
		}
		return agentrelay.Notification{}, io.EOF
	case <-ctx.Done():
		return agentrelay.Notification{}, ctx.Err()
	}
}

func (s *subscription) Close() error {
	s.stop()
	s.release()
	return nil
}

func (s *subscription) release() {
	s.once.Do(func() {
		s.parent.mu.Lock()
		delete(s.parent.subs, s)
		s.parent.mu.Unlock()
		close(s.done)
	})
}
