package mcpsource

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/boat-builder/agentrelay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func note(text string) agentrelay.Notification {
	return agentrelay.Notification{
		Method: "notifications/message",
		Data:   &agentrelay.TypedData{Type: "text", Text: text},
	}
}

func TestBroadcasterFansOut(t *testing.T) {
	ctx := context.Background()
	b := newBroadcaster(4)
	s1 := b.subscribe(ctx)
	s2 := b.subscribe(ctx)
	require.Equal(t, 2, b.len())

	b.publish(note("a"))
	b.publish(note("b"))

	for _, s := range []*subscription{s1, s2} {
		n, err := s.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a", n.Data.Text)
		n, err = s.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, "b", n.Data.Text)
	}
}

func TestBroadcasterCloseDrainsThenReportsEnd(t *testing.T) {
	ctx := context.Background()

	b := newBroadcaster(4)
	s := b.subscribe(ctx)
	b.publish(note("last"))
	b.close(nil)

	n, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "last", n.Data.Text)
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)

	boom := errors.New("session lost")
	b = newBroadcaster(4)
	s = b.subscribe(ctx)
	b.close(boom)
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, boom)

	// late subscribers see the end right away
	_, err = b.subscribe(ctx).Next(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestBroadcasterPublishDoesNotBlockOnClosedSubscriber(t *testing.T) {
	ctx := context.Background()
	b := newBroadcaster(1)
	s := b.subscribe(ctx)
	b.publish(note("fills the buffer"))

	published := make(chan struct{})
	go func() {
		b.publish(note("blocks until the subscriber goes away"))
		close(published)
	}()

	select {
	case <-published:
		t.Fatal("publish must apply back-pressure")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, s.Close())
	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("publish still blocked after subscriber closed")
	}

	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
	assert.Equal(t, 0, b.len())
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	b := newBroadcaster(1)
	ctx, cancel := context.WithCancel(context.Background())
	s := b.subscribe(ctx)
	cancel()

	require.Eventually(t, func() bool { return b.len() == 0 }, time.Second, 5*time.Millisecond)
	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
}
