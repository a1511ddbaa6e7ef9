package ssesource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/boat-builder/agentrelay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSourceReadsNotifications(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: ping\ndata: {}\n\n")
		fmt.Fprint(w, "data: not json\n\n")
		fmt.Fprint(w, `data: {"jsonrpc":"2.0","id":1,"result":{}}`+"\n\n")
		fmt.Fprint(w, `data: {"jsonrpc":"2.0","method":"notifications/message","params":{"data":{"type":"text","text":"1"}}}`+"\n\n")
		fmt.Fprint(w, "event: message\n"+`data: {"jsonrpc":"2.0","method":"notifications/message","params":{"content":[{"type":"text","text":"2"}]}}`+"\n\n")
		fmt.Fprint(w, `data: {"jsonrpc":"2.0","method":"notifications/stream_end","params":{}}`+"\n\n")
	}))
	defer srv.Close()

	ctx := testContext(t)
	src, err := Dial(ctx, srv.URL, WithHeader("Authorization", "Bearer token"))
	require.NoError(t, err)
	defer src.Close()

	n, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, agentrelay.TextFragments(n))

	n, err = src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, agentrelay.TextFragments(n))

	n, err = src.Next(ctx)
	require.NoError(t, err)
	assert.True(t, n.IsStreamEnd())

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestSourceEndsWithResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"method":"notifications/message","params":{"data":{"type":"text","text":"only"}}}`+"\n\n")
	}))
	defer srv.Close()

	ctx := testContext(t)
	src, err := Dial(ctx, srv.URL)
	require.NoError(t, err)
	defer src.Close()

	n, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "only", n.Data.Text)

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestDialRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := Dial(testContext(t), srv.URL)
	assert.ErrorContains(t, err, "401")
}

func TestSourceCloseUnblocksNext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx := testContext(t)
	notifier := &Notifier{URL: srv.URL}
	src, err := notifier.Subscribe(ctx)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		src.Close()
	}()

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestRunStreamOverSSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 1; i <= 3; i++ {
			fmt.Fprintf(w, `data: {"method":"notifications/message","params":{"data":{"type":"text","text":"%d "}}}`+"\n\n", i)
		}
	}))
	defer srv.Close()

	ctx := testContext(t)
	src, err := Dial(ctx, srv.URL)
	require.NoError(t, err)

	run := agentrelay.NewRun()
	run.Finish(nil)

	var text string
	for ev, err := range agentrelay.NewRunStream(run, src).Events(ctx) {
		require.NoError(t, err)
		if delta, ok := ev.TextDelta(); ok {
			text += delta
		}
	}
	assert.Equal(t, "1 2 3 ", text)
	assert.Len(t, run.History(), 3)
}
