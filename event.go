package agentrelay

import "github.com/openai/openai-go"

type EventType string

const (
	// Events synthesized from tool notifications. Names follow the Responses
	// streaming vocabulary so renderers can share one code path.
	EventTypeOutputItemAdded  EventType = "response.output_item.added"
	EventTypeContentPartAdded EventType = "response.content_part.added"
	EventTypeTextDelta        EventType = "response.output_text.delta"
	EventTypeContentPartDone  EventType = "response.content_part.done"

	// Events produced natively by the agent run.
	EventTypeRawResponse EventType = "raw_response_event"
	EventTypeRunItem     EventType = "run_item_stream_event"
)

// RunItemName qualifies an EventTypeRunItem event.
type RunItemName string

const (
	RunItemMessageOutputCreated RunItemName = "message_output_created"
	RunItemToolCalled           RunItemName = "tool_called"
	RunItemToolOutput           RunItemName = "tool_output"
)

// Event is one unit of the merged stream handed to the caller/UI.
type Event struct {
	Type EventType

	// Set on the four notification events.
	ItemID       string
	OutputIndex  int
	ContentIndex int

	// Delta carries incremental text for EventTypeTextDelta and for raw model
	// chunks that contain content.
	Delta string
	// Text is the finalized text of a content part (EventTypeContentPartDone).
	Text string

	// Item is set for EventTypeOutputItemAdded (in progress) and for run items.
	Item *Item
	Name RunItemName

	// Chunk is the untouched model chunk of an EventTypeRawResponse event.
	Chunk *openai.ChatCompletionChunk
}

// TextDelta returns the incremental text carried by the event, whether it was
// relayed from a tool notification or streamed by the model.
func (e Event) TextDelta() (string, bool) {
	switch e.Type {
	case EventTypeTextDelta, EventTypeRawResponse:
		return e.Delta, e.Delta != ""
	}
	return "", false
}

func rawResponseEvent(chunk openai.ChatCompletionChunk) Event {
	ev := Event{Type: EventTypeRawResponse, Chunk: &chunk}
	if len(chunk.Choices) > 0 {
		ev.Delta = chunk.Choices[0].Delta.Content
	}
	return ev
}

func runItemEvent(name RunItemName, item Item) Event {
	return Event{Type: EventTypeRunItem, Name: name, ItemID: item.ID, Item: &item}
}
