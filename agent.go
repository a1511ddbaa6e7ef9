package agentrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/openai/openai-go"
)

const DefaultMaxTurns = 10

// Agent drives the chat completion turn loop of a run: stream the model's
// answer, execute the tools it asks for, feed their output back, and repeat
// until the model answers without tool calls.
type Agent struct {
	name     string
	prompt   string
	tools    []Tool
	maxTurns int
	logger   *slog.Logger
}

// NewAgent creates an Agent. The prompt is sent as a developer message ahead of
// the history on every turn.
func NewAgent(name, prompt string, tools []Tool) *Agent {
	return &Agent{
		name:     name,
		prompt:   prompt,
		tools:    tools,
		maxTurns: DefaultMaxTurns,
		logger:   slog.Default(),
	}
}

func (a *Agent) Name() string {
	return a.name
}

func (a *Agent) GetLogger() *slog.Logger {
	return a.logger
}

func (a *Agent) SetLogger(logger *slog.Logger) {
	a.logger = logger
}

// SetMaxTurns bounds the number of model calls of one run.
func (a *Agent) SetMaxTurns(n int) {
	if n > 0 {
		a.maxTurns = n
	}
}

// AddTools registers more tools, e.g. the ones discovered on an MCP server.
func (a *Agent) AddTools(tools ...Tool) {
	a.tools = append(a.tools, tools...)
}

func (a *Agent) GetTool(name string) (Tool, error) {
	for _, tool := range a.tools {
		if tool.Name() == name {
			return tool, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
}

func (a *Agent) ConvertToolsToParams() []openai.ChatCompletionToolParam {
	tools := []openai.ChatCompletionToolParam{}
	for _, tool := range a.tools {
		tools = append(tools, tool.OpenAI()...)
	}
	return tools
}

// Start launches the run in the background and returns it immediately. The
// run finishes when the model stops calling tools, when ctx is cancelled, or
// on the first model error.
func (a *Agent) Start(ctx context.Context, llm LLM, model, input string, history ...Item) *Run {
	items := append([]Item(nil), history...)
	if input != "" {
		items = append(items, UserItem(input))
	}
	run := NewRun(items...)
	go func() {
		err := a.loop(ctx, llm, model, run)
		if err != nil {
			a.logger.Error("Agent run failed", "agent", a.name, "run_id", run.ID, "error", err)
		}
		run.Finish(err)
	}()
	return run
}

func (a *Agent) loop(ctx context.Context, llm LLM, model string, run *Run) error {
	logger := a.logger.With("agent", a.name, "run_id", run.ID)
	tools := a.ConvertToolsToParams()

	for turn := 1; ; turn++ {
		if turn > a.maxTurns {
			return ErrMaxTurnsExceeded
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		messages := make([]openai.ChatCompletionMessageParamUnion, 0)
		if a.prompt != "" {
			messages = append(messages, openai.DeveloperMessage(a.prompt))
		}
		messages = append(messages, run.Messages()...)

		params := openai.ChatCompletionNewParams{
			Messages: messages,
			Model:    openai.ChatModel(model),
			StreamOptions: openai.ChatCompletionStreamOptionsParam{
				IncludeUsage: openai.Bool(true),
			},
		}
		if len(tools) > 0 {
			params.Tools = tools
		}

		logger.Debug("Calling model", "turn", turn, "messages", len(messages))
		message, err := a.streamTurn(ctx, llm, params, run)
		if err != nil {
			return err
		}

		if message.ToolCalls != nil && message.Content != "" {
			logger.Warn("Model returned both content and tool calls")
		}

		item := assistantItem(newItemID("msg_"), message)
		run.Append(item)
		if len(item.ToolCalls) == 0 {
			return nil
		}

		for _, tc := range item.ToolCalls {
			run.Emit(runItemEvent(RunItemToolCalled, toolCallItem(tc)))
		}
		for _, output := range a.callTools(ctx, item.ToolCalls, logger) {
			run.Append(output)
		}
	}
}

// streamTurn streams one completion into run and returns the accumulated
// assistant message.
func (a *Agent) streamTurn(ctx context.Context, llm LLM, params openai.ChatCompletionNewParams, run *Run) (openai.ChatCompletionMessage, error) {
	stream := llm.NewStreaming(ctx, params)
	defer stream.Close()

	completion := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		completion.AddChunk(chunk)
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			run.Emit(rawResponseEvent(chunk))
		}
	}
	if err := stream.Err(); err != nil {
		return openai.ChatCompletionMessage{}, fmt.Errorf("completion stream: %w", err)
	}
	if len(completion.Choices) == 0 {
		return openai.ChatCompletionMessage{}, errors.New("completion stream: no choices returned")
	}
	run.addUsage(completion.Usage)
	return completion.Choices[0].Message, nil
}

// callTools runs the calls concurrently and returns their outputs in call
// order. Failures are reported to the model, never to the run.
func (a *Agent) callTools(ctx context.Context, calls []ToolCall, logger *slog.Logger) []Item {
	outputs := make([]Item, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call ToolCall) {
			defer wg.Done()
			outputs[i] = ToolOutputItem(call.ID, call.Name, a.callTool(ctx, call, logger))
		}(i, call)
	}
	wg.Wait()
	return outputs
}

func (a *Agent) callTool(ctx context.Context, call ToolCall, logger *slog.Logger) string {
	tool, err := a.GetTool(call.Name)
	if err != nil {
		logger.Error("Error getting tool", "error", err)
		return MessageWhenToolError(err)
	}

	logger.Info("Tool", "tool", tool.Name(), "arguments", call.Arguments)
	arguments := map[string]interface{}{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &arguments); err != nil {
			logger.Error("Error unmarshalling tool arguments", "error", err)
			return MessageWhenToolErrorWithRetry(err.Error())
		}
	}

	output, err := tool.Execute(ctx, arguments)
	if err != nil {
		logger.Error("Error executing tool", "tool", tool.Name(), "error", err)
		var retErr *RetryableError
		if errors.As(err, &retErr) {
			return MessageWhenToolErrorWithRetry(err.Error())
		}
		return MessageWhenToolError(err)
	}
	return output
}

func MessageWhenToolError(err error) string {
	return fmt.Sprintf("Error occurred while running: %v. Do not retry", err)
}

func MessageWhenToolErrorWithRetry(errorString string) string {
	return fmt.Sprintf("Error: %s.\nRetry", errorString)
}
