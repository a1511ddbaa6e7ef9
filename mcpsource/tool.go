package mcpsource

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/boat-builder/agentrelay"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/openai/openai-go"
)

// Tools lists the server's tools as agentrelay tools. Calling one runs
// tools/call on this session with a progress token, so the server's progress
// and log notifications reach the subscriptions while it runs.
func (c *Client) Tools(ctx context.Context) ([]agentrelay.Tool, error) {
	result, err := c.session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	tools := make([]agentrelay.Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		params, err := inputSchema(t.InputSchema)
		if err != nil {
			c.logger.Warn("Skipping tool with unusable input schema", "tool", t.Name, "error", err)
			continue
		}
		tools = append(tools, &remoteTool{
			client:      c,
			name:        t.Name,
			description: t.Description,
			params:      params,
		})
	}
	return tools, nil
}

func inputSchema(schema any) (openai.FunctionParameters, error) {
	params := openai.FunctionParameters{"type": "object", "properties": map[string]any{}}
	if schema == nil {
		return params, nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}
	return params, nil
}

var _ agentrelay.Tool = &remoteTool{}

type remoteTool struct {
	client      *Client
	name        string
	description string
	params      openai.FunctionParameters
}

func (t *remoteTool) Name() string        { return t.name }
func (t *remoteTool) Description() string { return t.description }

func (t *remoteTool) OpenAI() []openai.ChatCompletionToolParam {
	return []openai.ChatCompletionToolParam{{
		Function: openai.FunctionDefinitionParam{
			Name:        t.name,
			Description: openai.String(t.description),
			Parameters:  t.params,
		},
	}}
}

func (t *remoteTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	token := fmt.Sprintf("%s-%d", t.name, t.client.calls.Add(1))
	t.client.logger.Info("Calling MCP tool", "tool", t.name, "progress_token", token)

	result, err := t.client.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      t.name,
		Arguments: args,
		Meta:      mcp.Meta{"progressToken": token},
	})
	if err != nil {
		return "", fmt.Errorf("failed to call tool: %w", err)
	}

	text := contentText(result.Content)
	if result.IsError {
		return "", &agentrelay.RetryableError{Message: text}
	}
	return text, nil
}

// contentText joins the text parts of a tool result.
func contentText(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		if textContent, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, textContent.Text)
		}
	}
	return strings.Join(parts, "\n")
}
