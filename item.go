package agentrelay

import (
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/openai/openai-go"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleDeveloper Role = "developer"
	RoleTool      Role = "tool"
)

type ItemKind string

const (
	ItemKindMessage    ItemKind = "message"
	ItemKindToolCall   ItemKind = "tool_call"
	ItemKindToolOutput ItemKind = "tool_output"
)

type ItemStatus string

const (
	ItemStatusInProgress ItemStatus = "in_progress"
	ItemStatusCompleted  ItemStatus = "completed"
)

// ToolCall is a function call requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Item is one entry of a run's conversation history.
type Item struct {
	ID         string     `json:"id"`
	Kind       ItemKind   `json:"kind"`
	Role       Role       `json:"role"`
	Status     ItemStatus `json:"status"`
	Text       string     `json:"text,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func newItemID(prefix string) string {
	return prefix + gonanoid.Must()
}

func UserItem(text string) Item {
	return Item{
		ID:        newItemID("user_"),
		Kind:      ItemKindMessage,
		Role:      RoleUser,
		Status:    ItemStatusCompleted,
		Text:      text,
		CreatedAt: time.Now(),
	}
}

// NotificationItem is the completed assistant message synthesized from the
// text fragments of one tool notification.
func NotificationItem(id, text string) Item {
	return Item{
		ID:        id,
		Kind:      ItemKindMessage,
		Role:      RoleAssistant,
		Status:    ItemStatusCompleted,
		Text:      text,
		CreatedAt: time.Now(),
	}
}

func ToolOutputItem(toolCallID, toolName, output string) Item {
	return Item{
		ID:         newItemID("tool_"),
		Kind:       ItemKindToolOutput,
		Role:       RoleTool,
		Status:     ItemStatusCompleted,
		Text:       output,
		ToolCallID: toolCallID,
		ToolName:   toolName,
		CreatedAt:  time.Now(),
	}
}

// toolCallItem describes one call of an assistant message. It is announced on
// the stream only; the call itself lives in the assistant item.
func toolCallItem(tc ToolCall) Item {
	return Item{
		ID:        tc.ID,
		Kind:      ItemKindToolCall,
		Role:      RoleAssistant,
		Status:    ItemStatusCompleted,
		Text:      tc.Arguments,
		ToolCalls: []ToolCall{tc},
		ToolName:  tc.Name,
		CreatedAt: time.Now(),
	}
}

// assistantItem converts an accumulated model message into a history item.
func assistantItem(id string, msg openai.ChatCompletionMessage) Item {
	item := Item{
		ID:        id,
		Kind:      ItemKindMessage,
		Role:      RoleAssistant,
		Status:    ItemStatusCompleted,
		Text:      msg.Content,
		CreatedAt: time.Now(),
	}
	for _, tc := range msg.ToolCalls {
		item.ToolCalls = append(item.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return item
}

// runItemName is the name of the event announcing that item was appended.
func (i Item) runItemName() RunItemName {
	switch i.Kind {
	case ItemKindToolCall:
		return RunItemToolCalled
	case ItemKindToolOutput:
		return RunItemToolOutput
	}
	return RunItemMessageOutputCreated
}

// Message converts the item into the chat message replayed to the model.
func (i Item) Message() openai.ChatCompletionMessageParamUnion {
	switch i.Role {
	case RoleUser:
		return openai.UserMessage(i.Text)
	case RoleDeveloper:
		return openai.DeveloperMessage(i.Text)
	case RoleTool:
		return openai.ToolMessage(i.Text, i.ToolCallID)
	}
	assistant := openai.ChatCompletionAssistantMessageParam{}
	if i.Text != "" {
		assistant.Content.OfString = openai.String(i.Text)
	}
	for _, tc := range i.ToolCalls {
		assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: tc.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

// Messages converts history items into chat completion input, skipping items
// that are still in progress. Items that landed between an assistant message's
// tool calls and their outputs, such as relayed notifications, are replayed
// after the last of those outputs: the API requires tool messages to follow
// the message that requested them.
func Messages(items []Item) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(items))
	for _, item := range replayOrder(items) {
		msgs = append(msgs, item.Message())
	}
	return msgs
}

// replayOrder returns the completed items of history with every tool output
// moved up to directly follow its tool calls. Everything else keeps its
// relative order.
func replayOrder(items []Item) []Item {
	ordered := make([]Item, 0, len(items))
	var held []Item
	pending := map[string]bool{}
	for _, item := range items {
		if item.Status != ItemStatusCompleted {
			continue
		}
		switch {
		case item.Kind == ItemKindToolOutput && pending[item.ToolCallID]:
			ordered = append(ordered, item)
			delete(pending, item.ToolCallID)
			if len(pending) == 0 {
				ordered = append(ordered, held...)
				held = nil
			}
		case len(pending) > 0:
			held = append(held, item)
		default:
			ordered = append(ordered, item)
			for _, tc := range item.ToolCalls {
				pending[tc.ID] = true
			}
		}
	}
	// calls that never got an output
	return append(ordered, held...)
}
