package agentrelay

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

// LLM is the part of a chat completion provider the agent engine relies on.
type LLM interface {
	// New issues a non-streaming chat completion request.
	New(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)

	// NewStreaming issues a streaming chat completion request.
	NewStreaming(ctx context.Context, params openai.ChatCompletionNewParams) *ssestream.Stream[openai.ChatCompletionChunk]
}

type ContextKey string

const (
	ContextKeySessionID  ContextKey = "sessionID"
	ContextKeyCustomerID ContextKey = "customerID"
	ContextKeyExtra      ContextKey = "extra"
)

// WithSessionID tags ctx so requests made with it carry the session id.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, sessionID)
}

var _ LLM = &Client{}

// Client is the openai-go backed LLM. It works against any OpenAI compatible
// endpoint.
type Client struct {
	client openai.Client
}

func NewClient(apiKey, baseURL string, opts ...option.RequestOption) *Client {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)
	return &Client{client: openai.NewClient(reqOpts...)}
}

func optsWithIds(ctx context.Context, opts []option.RequestOption) []option.RequestOption {
	if sessionID, ok := ctx.Value(ContextKeySessionID).(string); ok {
		opts = append(opts, option.WithJSONSet("custom_identifier", sessionID))
	}

	if customerID, ok := ctx.Value(ContextKeyCustomerID).(string); ok {
		opts = append(opts, option.WithJSONSet("customer_identifier", customerID))
	}

	if extraMeta, ok := ctx.Value(ContextKeyExtra).(map[string]string); ok {
		for key, value := range extraMeta {
			opts = append(opts, option.WithJSONSet(key, value))
		}
	}

	return opts
}

func (c *Client) New(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params, optsWithIds(ctx, nil)...)
}

func (c *Client) NewStreaming(ctx context.Context, params openai.ChatCompletionNewParams) *ssestream.Stream[openai.ChatCompletionChunk] {
	return c.client.Chat.Completions.NewStreaming(ctx, params, optsWithIds(ctx, nil)...)
}
