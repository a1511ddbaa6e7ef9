package agentrelay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type weatherInput struct {
	City  string `json:"city" jsonschema:"description=The city to look up"`
	Units string `json:"units,omitempty" jsonschema:"enum=metric,enum=imperial"`
}

func TestFuncToolSchema(t *testing.T) {
	tool := NewFuncTool("get_weather", "Get the weather", func(ctx context.Context, in weatherInput) (string, error) {
		return in.City + " " + in.Units, nil
	})

	params := tool.OpenAI()
	require.Len(t, params, 1)
	fn := params[0].Function
	assert.Equal(t, "get_weather", fn.Name)
	assert.Equal(t, "Get the weather", fn.Description.Value)

	assert.Equal(t, "object", fn.Parameters["type"])
	assert.NotContains(t, fn.Parameters, "$schema")
	props, ok := fn.Parameters["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "city")
	assert.Contains(t, props, "units")
	assert.Equal(t, []any{"city"}, fn.Parameters["required"])
}

func TestFuncToolExecute(t *testing.T) {
	tool := NewFuncTool("get_weather", "Get the weather", func(ctx context.Context, in weatherInput) (string, error) {
		return in.City + " " + in.Units, nil
	})

	out, err := tool.Execute(context.Background(), map[string]interface{}{"city": "Tokyo", "units": "metric"})
	require.NoError(t, err)
	assert.Equal(t, "Tokyo metric", out)

	_, err = tool.Execute(context.Background(), map[string]interface{}{"city": 42})
	assert.ErrorContains(t, err, "invalid arguments for get_weather")
}

func TestAgentGetTool(t *testing.T) {
	tool := NewFuncTool("noop", "", func(ctx context.Context, in struct{}) (string, error) { return "", nil })
	agent := NewAgent("a", "", []Tool{tool})

	got, err := agent.GetTool("noop")
	require.NoError(t, err)
	assert.Equal(t, "noop", got.Name())

	_, err = agent.GetTool("other")
	assert.ErrorIs(t, err, ErrToolNotFound)
	assert.Len(t, agent.ConvertToolsToParams(), 1)
}
