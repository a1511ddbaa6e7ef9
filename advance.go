package agentrelay

import (
	"context"
	"errors"
)

// Advance pulls exactly one pending event out of run, waiting for the agent's
// background task to produce it. It never touches the history.
//
// It fails with ErrAlreadyComplete when the run has finished, and with an
// *AgentTaskError when the background task failed. A failure is reported in
// preference to completion so it cannot be masked.
func Advance(ctx context.Context, run *Run) (Event, error) {
	if err := run.Err(); err != nil {
		return Event{}, &AgentTaskError{RunID: run.ID, Err: err}
	}
	if run.IsComplete() {
		return Event{}, ErrAlreadyComplete
	}

	ev, err := run.queue.pop(ctx)
	if err == nil {
		return ev, nil
	}
	if !errors.Is(err, errQueueClosed) {
		return Event{}, err
	}

	// The queue only closes from Finish; wait for the final outcome so a
	// deferred failure is surfaced.
	select {
	case <-run.Done():
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
	if err := run.Err(); err != nil {
		return Event{}, &AgentTaskError{RunID: run.ID, Err: err}
	}
	return Event{}, ErrAlreadyComplete
}
