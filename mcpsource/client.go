// Package mcpsource connects to an MCP server and exposes the notifications it
// pushes while tools run as agentrelay notification sources, along with the
// server's tools as agentrelay tools.
package mcpsource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/boat-builder/agentrelay"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	TransportSSE        = "sse"
	TransportStreamable = "streamable"

	DefaultBuffer = 64
)

type Config struct {
	// URL of the MCP endpoint, e.g. http://localhost:8000/sse.
	URL string
	// Transport is TransportSSE (default) or TransportStreamable.
	Transport  string
	HTTPClient *http.Client

	Name    string
	Version string

	// Buffer is the per-subscription notification buffer.
	Buffer int
	Logger *slog.Logger
}

var _ agentrelay.Notifier = &Client{}

// Client is one MCP client session. Every notification the server sends on it
// is delivered to all current subscriptions.
type Client struct {
	session     *mcp.ClientSession
	broadcaster *broadcaster
	logger      *slog.Logger

	closing atomic.Bool
	calls   atomic.Uint64
}

// Connect dials cfg.URL over the configured HTTP transport.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// no timeout, tool calls may stream for a long time
		httpClient = &http.Client{}
	}

	var transport mcp.Transport
	switch cfg.Transport {
	case "", TransportSSE:
		transport = &mcp.SSEClientTransport{Endpoint: cfg.URL, HTTPClient: httpClient}
	case TransportStreamable:
		transport = &mcp.StreamableClientTransport{Endpoint: cfg.URL, HTTPClient: httpClient}
	default:
		return nil, fmt.Errorf("mcpsource: unknown transport %q", cfg.Transport)
	}
	return ConnectTransport(ctx, transport, cfg)
}

// ConnectTransport connects over an already built transport. cfg.URL and
// cfg.Transport are ignored.
func ConnectTransport(ctx context.Context, transport mcp.Transport, cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name, version := cfg.Name, cfg.Version
	if name == "" {
		name = "agentrelay"
	}
	if version == "" {
		version = "0.1.0"
	}
	buf := cfg.Buffer
	if buf <= 0 {
		buf = DefaultBuffer
	}

	c := &Client{
		broadcaster: newBroadcaster(buf),
		logger:      logger.With("component", "mcpsource"),
	}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    name,
		Version: version,
	}, &mcp.ClientOptions{
		LoggingMessageHandler:       c.onLoggingMessage,
		ProgressNotificationHandler: c.onProgress,
	})

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	c.session = session

	// servers drop log notifications until a level is set
	if err := session.SetLoggingLevel(ctx, &mcp.SetLoggingLevelParams{Level: "debug"}); err != nil {
		c.logger.Warn("Server rejected logging level, log notifications may be missing", "error", err)
	}

	go c.watch()
	return c, nil
}

// watch ends every subscription when the session goes away.
func (c *Client) watch() {
	err := c.session.Wait()
	if c.closing.Load() {
		err = nil
	}
	if err != nil {
		c.logger.Error("MCP session ended", "error", err)
	} else {
		c.logger.Debug("MCP session ended")
	}
	c.broadcaster.close(err)
}

// Subscribe returns a fresh subscription. Notifications sent before it was
// created are not replayed.
func (c *Client) Subscribe(ctx context.Context) (agentrelay.NotificationSource, error) {
	return c.broadcaster.subscribe(ctx), nil
}

// Close ends the MCP session. Subscriptions drain and then report io.EOF.
func (c *Client) Close() error {
	c.closing.Store(true)
	err := c.session.Close()
	c.broadcaster.close(nil)
	return err
}

func (c *Client) onLoggingMessage(ctx context.Context, req *mcp.LoggingMessageRequest) {
	params := map[string]any{
		"level":  req.Params.Level,
		"logger": req.Params.Logger,
		"data":   req.Params.Data,
	}
	c.publish("notifications/message", params)
}

// onProgress normalizes progress messages into the flat typed text shape.
func (c *Client) onProgress(ctx context.Context, req *mcp.ProgressNotificationClientRequest) {
	params := map[string]any{
		"progressToken": req.Params.ProgressToken,
		"progress":      req.Params.Progress,
	}
	if req.Params.Total > 0 {
		params["total"] = req.Params.Total
	}
	if req.Params.Message != "" {
		params["message"] = req.Params.Message
		params["data"] = map[string]any{"type": "text", "text": req.Params.Message}
	}
	c.publish("notifications/progress", params)
}

func (c *Client) publish(method string, params map[string]any) {
	raw, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	})
	if err != nil {
		c.logger.Warn("Dropping notification that cannot be encoded", "method", method, "error", err)
		return
	}
	c.broadcaster.publish(agentrelay.ParseNotification(raw))
}
