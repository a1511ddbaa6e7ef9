// Package demoserver is a small MCP server whose tools report progress
// through log notifications while they run. The CLI serves it for local
// experiments and the tests use it as the remote end of the relay.
package demoserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	DefaultSecretWord = "apple"
	loggerName        = "demoserver"
)

type Options struct {
	// Delay between two streamed numbers.
	Delay      time.Duration
	SecretWord string
	Logger     *slog.Logger
}

type StreamNumbersInput struct {
	Count int `json:"count" jsonschema:"how many numbers to stream, at most 100"`
}

type AddInput struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

type WeatherInput struct {
	City string `json:"city" jsonschema:"the city to report the weather for"`
}

type SecretWordInput struct{}

type server struct {
	opts   Options
	logger *slog.Logger
}

// New builds the MCP server with its tools registered.
func New(opts Options) *mcp.Server {
	if opts.SecretWord == "" {
		opts.SecretWord = DefaultSecretWord
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &server{opts: opts, logger: opts.Logger.With("component", "demoserver")}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "agentrelay-demo",
		Version: "0.1.0",
	}, &mcp.ServerOptions{
		HasTools: true,
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "stream_numbers",
		Description: "Stream the numbers from 1 to count. Each number is sent as a notification while the tool runs.",
	}, s.streamNumbers)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "add",
		Description: "Add two numbers.",
	}, s.add)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_weather",
		Description: "Get the current weather in a city.",
	}, s.weather)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_secret_word",
		Description: "Get the secret word.",
	}, s.secretWord)

	return srv
}

// Handler serves srv over SSE at /sse and over streamable HTTP at /mcp.
func Handler(srv *mcp.Server) http.Handler {
	getServer := func(*http.Request) *mcp.Server { return srv }
	mux := http.NewServeMux()
	mux.Handle("/sse", mcp.NewSSEHandler(getServer, nil))
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(getServer, nil))
	return mux
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func (s *server) streamNumbers(ctx context.Context, req *mcp.CallToolRequest, in StreamNumbersInput) (*mcp.CallToolResult, any, error) {
	count := min(max(in.Count, 0), 100)
	token := req.Params.Meta["progressToken"]
	s.logger.Info("Streaming numbers", "count", count)

	for i := 1; i <= count; i++ {
		err := req.Session.Log(ctx, &mcp.LoggingMessageParams{
			Logger: loggerName,
			Level:  "info",
			Data:   map[string]any{"type": "text", "text": fmt.Sprintf("%d\n", i)},
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to send notification: %w", err)
		}
		if token != nil {
			// progress without a message carries no text for the relay
			_ = req.Session.NotifyProgress(ctx, &mcp.ProgressNotificationParams{
				ProgressToken: token,
				Progress:      float64(i),
				Total:         float64(count),
			})
		}
		if s.opts.Delay > 0 && i < count {
			select {
			case <-time.After(s.opts.Delay):
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			}
		}
	}
	return textResult(fmt.Sprintf("Streamed %d numbers.", count)), nil, nil
}

func (s *server) add(ctx context.Context, req *mcp.CallToolRequest, in AddInput) (*mcp.CallToolResult, any, error) {
	return textResult(fmt.Sprintf("%g", in.A+in.B)), nil, nil
}

func (s *server) weather(ctx context.Context, req *mcp.CallToolRequest, in WeatherInput) (*mcp.CallToolResult, any, error) {
	if in.City == "" {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: "city is required"}},
		}, nil, nil
	}
	return textResult(fmt.Sprintf("The weather in %s is sunny.", in.City)), nil, nil
}

func (s *server) secretWord(ctx context.Context, req *mcp.CallToolRequest, in SecretWordInput) (*mcp.CallToolResult, any, error) {
	return textResult(s.opts.SecretWord), nil, nil
}
