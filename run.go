package agentrelay

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
)

// Usage is the token usage reported by the model over a run.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Run is one in-flight agent conversation turn. The agent engine produces its
// events; a RunStream consumes them and owns the run while it streams.
type Run struct {
	ID string

	mu       sync.Mutex
	history  []Item
	complete bool
	err      error
	usage    Usage

	queue *eventQueue
	done  chan struct{}
	once  sync.Once
}

// NewRun creates an open run seeded with history.
func NewRun(history ...Item) *Run {
	return &Run{
		ID:      uuid.NewString(),
		history: append([]Item(nil), history...),
		queue:   newEventQueue(),
		done:    make(chan struct{}),
	}
}

// Emit queues a native event. It reports false once the run has finished.
func (r *Run) Emit(ev Event) bool {
	return r.queue.push(ev)
}

// Finish marks the run complete and records err as the background failure,
// if any. Events still queued remain readable. Only the first call counts.
func (r *Run) Finish(err error) {
	r.once.Do(func() {
		r.mu.Lock()
		r.complete = true
		r.err = err
		r.mu.Unlock()
		r.queue.close()
		close(r.done)
	})
}

// Done is closed when the run's background task has finished.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

func (r *Run) IsComplete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.complete
}

// Err returns the failure the run's background task finished with.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Append adds item to the history. While the run is live, the matching
// run-item event is queued so the agent side observes the new item.
func (r *Run) Append(item Item) {
	r.mu.Lock()
	r.history = append(r.history, item)
	complete := r.complete
	r.mu.Unlock()
	if !complete {
		r.queue.push(runItemEvent(item.runItemName(), item))
	}
}

// History returns a copy of the conversation history.
func (r *Run) History() []Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Item(nil), r.history...)
}

// Messages returns the history as chat completion input.
func (r *Run) Messages() []openai.ChatCompletionMessageParamUnion {
	return Messages(r.History())
}

func (r *Run) addUsage(u openai.CompletionUsage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage.InputTokens += u.PromptTokens
	r.usage.OutputTokens += u.CompletionTokens
}

func (r *Run) Usage() Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usage
}

// Next blocks for the next native event. It returns io.EOF once the run has
// finished and its queue is drained, or an *AgentTaskError if it failed.
func (r *Run) Next(ctx context.Context) (Event, error) {
	ev, err := r.queue.pop(ctx)
	if err == errQueueClosed {
		return Event{}, r.endErr()
	}
	return ev, err
}

// Ready returns a channel closed when TryNext has something to report.
func (r *Run) Ready() <-chan struct{} {
	return r.queue.ready()
}

// TryNext is the non-blocking form of Next; ok is false when no event is
// queued yet.
func (r *Run) TryNext() (ev Event, ok bool, err error) {
	ev, ok, err = r.queue.tryPop()
	if err == errQueueClosed {
		return Event{}, false, r.endErr()
	}
	return ev, ok, err
}

func (r *Run) endErr() error {
	if err := r.Err(); err != nil {
		return &AgentTaskError{RunID: r.ID, Err: err}
	}
	return io.EOF
}
