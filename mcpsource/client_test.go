package mcpsource

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/boat-builder/agentrelay"
	"github.com/boat-builder/agentrelay/demoserver"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectDemo(t *testing.T) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	server := demoserver.New(demoserver.Options{SecretWord: "banana"})
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { serverSession.Close() })

	client, err := ConnectTransport(ctx, clientTransport, Config{Name: "mcpsource-test"})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func findTool(t *testing.T, tools []agentrelay.Tool, name string) agentrelay.Tool {
	t.Helper()
	for _, tool := range tools {
		if tool.Name() == name {
			return tool
		}
	}
	t.Fatalf("tool %s not found", name)
	return nil
}

func TestClientTools(t *testing.T) {
	client := connectDemo(t)
	ctx := context.Background()

	tools, err := client.Tools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 4)

	add := findTool(t, tools, "add")
	params := add.OpenAI()
	require.Len(t, params, 1)
	assert.Equal(t, "object", params[0].Function.Parameters["type"])

	out, err := add.Execute(ctx, map[string]interface{}{"a": 7, "b": 22})
	require.NoError(t, err)
	assert.Equal(t, "29", out)

	out, err = findTool(t, tools, "get_secret_word").Execute(ctx, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "banana", out)

	_, err = findTool(t, tools, "get_weather").Execute(ctx, map[string]interface{}{"city": ""})
	var retryable *agentrelay.RetryableError
	require.ErrorAs(t, err, &retryable)
	assert.Equal(t, "city is required", retryable.Message)
}

func TestClientRelaysToolNotifications(t *testing.T) {
	client := connectDemo(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	source, err := client.Subscribe(ctx)
	require.NoError(t, err)
	defer source.Close()

	tools, err := client.Tools(ctx)
	require.NoError(t, err)
	out, err := findTool(t, tools, "stream_numbers").Execute(ctx, map[string]interface{}{"count": 3})
	require.NoError(t, err)
	assert.Equal(t, "Streamed 3 numbers.", out)

	var texts []string
	var methods []string
	for len(texts) < 3 {
		n, err := source.Next(ctx)
		require.NoError(t, err)
		methods = append(methods, n.Method)
		texts = append(texts, agentrelay.TextFragments(n)...)
	}
	assert.ElementsMatch(t, []string{"1\n", "2\n", "3\n"}, texts)
	assert.Contains(t, methods, "notifications/message")
}

func TestClientCloseEndsSubscriptions(t *testing.T) {
	client := connectDemo(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	source, err := client.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, client.Close())

	for {
		_, err := source.Next(ctx)
		if err != nil {
			assert.True(t, errors.Is(err, io.EOF), "unexpected error: %v", err)
			return
		}
	}
}

func TestClientStreamsIntoRunStream(t *testing.T) {
	client := connectDemo(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	source, err := client.Subscribe(ctx)
	require.NoError(t, err)

	tools, err := client.Tools(ctx)
	require.NoError(t, err)
	stream := findTool(t, tools, "stream_numbers")

	// a run whose background task calls the tool directly
	run := agentrelay.NewRun(agentrelay.UserItem("stream 2 numbers"))
	go func() {
		_, err := stream.Execute(ctx, map[string]interface{}{"count": 2})
		run.Finish(err)
	}()

	var text string
	rs := agentrelay.NewRunStream(run, source, agentrelay.WithTickInterval(20*time.Millisecond))
	for ev, err := range rs.Events(ctx) {
		require.NoError(t, err)
		if delta, ok := ev.TextDelta(); ok {
			text += delta
		}
	}
	// notification handlers may interleave, so only the content is fixed
	assert.Len(t, text, 4)
	assert.Contains(t, text, "1\n")
	assert.Contains(t, text, "2\n")
	assert.Len(t, run.History(), 3)
}
