package agentrelay

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAppendQueuesItemEventWhileLive(t *testing.T) {
	run := NewRun(UserItem("hi"))
	require.NotEmpty(t, run.ID)

	item := NotificationItem("notif_1", "progress")
	run.Append(item)

	ev, ok, err := run.TryNext()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, EventTypeRunItem, ev.Type)
	assert.Equal(t, RunItemMessageOutputCreated, ev.Name)
	assert.Equal(t, "notif_1", ev.ItemID)

	run.Finish(nil)
	run.Append(NotificationItem("notif_2", "after"))

	// no event once complete, but the history still grows
	_, err = run.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	assert.Len(t, run.History(), 3)
}

func TestRunHistoryIsACopy(t *testing.T) {
	run := NewRun(UserItem("hi"))
	history := run.History()
	history[0].Text = "changed"
	assert.Equal(t, "hi", run.History()[0].Text)
}

func TestRunFinishOnce(t *testing.T) {
	boom := errors.New("boom")
	run := NewRun()
	run.Finish(boom)
	run.Finish(nil)

	assert.True(t, run.IsComplete())
	assert.Equal(t, boom, run.Err())
	select {
	case <-run.Done():
	default:
		t.Fatal("done must be closed")
	}

	_, err := run.Next(context.Background())
	var taskErr *AgentTaskError
	require.ErrorAs(t, err, &taskErr)
	assert.ErrorIs(t, err, boom)
}

func TestRunMessagesSkipInProgressItems(t *testing.T) {
	run := NewRun(
		UserItem("hi"),
		Item{ID: "x", Kind: ItemKindMessage, Role: RoleAssistant, Status: ItemStatusInProgress},
		NotificationItem("notif_1", "1"),
	)
	msgs := run.Messages()
	require.Len(t, msgs, 2)
	assert.NotNil(t, msgs[0].OfUser)
	assert.NotNil(t, msgs[1].OfAssistant)
}

func TestRunMessagesKeepToolOutputsAfterToolCalls(t *testing.T) {
	calls := Item{
		ID:     "msg_1",
		Kind:   ItemKindMessage,
		Role:   RoleAssistant,
		Status: ItemStatusCompleted,
		ToolCalls: []ToolCall{
			{ID: "call_1", Name: "stream_numbers", Arguments: `{"count":2}`},
			{ID: "call_2", Name: "add", Arguments: `{"a":1,"b":2}`},
		},
	}
	run := NewRun(
		UserItem("go"),
		calls,
		NotificationItem("notif_1", "1"),
		ToolOutputItem("call_2", "add", "3"),
		NotificationItem("notif_2", "2"),
		ToolOutputItem("call_1", "stream_numbers", "streamed"),
		UserItem("again"),
	)

	var got []string
	for _, item := range replayOrder(run.History()) {
		got = append(got, item.ID)
	}
	history := run.History()
	assert.Equal(t, []string{
		history[0].ID, "msg_1", history[3].ID, history[5].ID, "notif_1", "notif_2", history[6].ID,
	}, got)

	msgs := run.Messages()
	require.Len(t, msgs, 7)
	assert.NotNil(t, msgs[1].OfAssistant)
	require.NotNil(t, msgs[2].OfTool)
	assert.Equal(t, "call_2", msgs[2].OfTool.ToolCallID)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "call_1", msgs[3].OfTool.ToolCallID)
	assert.NotNil(t, msgs[4].OfAssistant)
	assert.NotNil(t, msgs[5].OfAssistant)
	assert.NotNil(t, msgs[6].OfUser)

	// the stored order is left alone
	assert.Equal(t, "notif_1", history[2].ID)
}

func TestRunMessagesWithUnansweredToolCalls(t *testing.T) {
	calls := Item{
		ID:        "msg_1",
		Kind:      ItemKindMessage,
		Role:      RoleAssistant,
		Status:    ItemStatusCompleted,
		ToolCalls: []ToolCall{{ID: "call_1", Name: "stream_numbers"}},
	}
	items := []Item{UserItem("go"), calls, NotificationItem("notif_1", "1")}

	var got []string
	for _, item := range replayOrder(items) {
		got = append(got, item.ID)
	}
	assert.Equal(t, []string{items[0].ID, "msg_1", "notif_1"}, got)
}

func TestAdvance(t *testing.T) {
	t.Run("pending event", func(t *testing.T) {
		run := NewRun()
		run.Emit(Event{Type: EventTypeRawResponse, Delta: "x"})

		ev, err := Advance(testContext(t), run)
		require.NoError(t, err)
		assert.Equal(t, "x", ev.Delta)
		assert.Empty(t, run.History())
	})

	t.Run("already complete", func(t *testing.T) {
		run := NewRun(UserItem("hi"))
		run.Emit(Event{Type: EventTypeRawResponse, Delta: "x"})
		run.Finish(nil)

		before := run.History()

		// completion is checked before popping
		_, err := Advance(testContext(t), run)
		assert.ErrorIs(t, err, ErrAlreadyComplete)
		_, err = Advance(testContext(t), run)
		assert.ErrorIs(t, err, ErrAlreadyComplete)
		assert.Equal(t, before, run.History())
	})

	t.Run("failure wins over completion", func(t *testing.T) {
		boom := errors.New("boom")
		run := NewRun()
		run.Finish(boom)

		_, err := Advance(testContext(t), run)
		var taskErr *AgentTaskError
		require.ErrorAs(t, err, &taskErr)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("finishes while waiting", func(t *testing.T) {
		run := NewRun()
		go func() {
			time.Sleep(10 * time.Millisecond)
			run.Finish(nil)
		}()

		_, err := Advance(testContext(t), run)
		assert.ErrorIs(t, err, ErrAlreadyComplete)
	})

	t.Run("fails while waiting", func(t *testing.T) {
		boom := errors.New("boom")
		run := NewRun()
		go func() {
			time.Sleep(10 * time.Millisecond)
			run.Finish(boom)
		}()

		_, err := Advance(testContext(t), run)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("context cancelled", func(t *testing.T) {
		run := NewRun()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := Advance(ctx, run)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
