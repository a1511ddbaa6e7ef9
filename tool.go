// Package agentrelay - tool.go
// Defines the Tool interface and a reflection based function tool.
package agentrelay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
)

type Tool interface {
	Name() string
	Description() string
	OpenAI() []openai.ChatCompletionToolParam
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// FunctionParameters converts a reflected schema into the map form openai-go
// sends on the wire.
func FunctionParameters(schema *jsonschema.Schema) (openai.FunctionParameters, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool schema: %w", err)
	}
	params := openai.FunctionParameters{}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tool schema: %w", err)
	}
	// the reflector's $schema key is rejected by some providers
	delete(params, "$schema")
	return params, nil
}

var _ Tool = &FuncTool[struct{}]{}

// FuncTool exposes a typed Go function as a model tool. Its parameter schema
// is reflected from T.
type FuncTool[T any] struct {
	name        string
	description string
	fn          func(ctx context.Context, args T) (string, error)
	params      openai.FunctionParameters
}

func NewFuncTool[T any](name, description string, fn func(ctx context.Context, args T) (string, error)) *FuncTool[T] {
	params, err := FunctionParameters(GenerateSchema[T]())
	if err != nil {
		// reflection of a Go type cannot produce invalid JSON
		panic(err)
	}
	return &FuncTool[T]{name: name, description: description, fn: fn, params: params}
}

func (t *FuncTool[T]) Name() string        { return t.name }
func (t *FuncTool[T]) Description() string { return t.description }

func (t *FuncTool[T]) OpenAI() []openai.ChatCompletionToolParam {
	return []openai.ChatCompletionToolParam{{
		Function: openai.FunctionDefinitionParam{
			Name:        t.name,
			Description: openai.String(t.description),
			Parameters:  t.params,
		},
	}}
}

func (t *FuncTool[T]) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	var in T
	if err := json.Unmarshal(raw, &in); err != nil {
		return "", fmt.Errorf("invalid arguments for %s: %w", t.name, err)
	}
	return t.fn(ctx, in)
}
