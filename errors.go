// Package agentrelay - errors.go
// Defines relay-specific errors.

package agentrelay

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyComplete  = errors.New("run already complete")
	ErrStreamConsumed   = errors.New("run stream already consumed")
	ErrMaxTurnsExceeded = errors.New("max turns exceeded")
	ErrToolNotFound     = errors.New("tool not found")
)

// TransportError reports that the notification transport failed. It is fatal
// to the merged stream.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("notification transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AgentTaskError reports that a run's background task terminated abnormally.
type AgentTaskError struct {
	RunID string
	Err   error
}

func (e *AgentTaskError) Error() string {
	return fmt.Sprintf("agent run %s failed: %v", e.RunID, e.Err)
}

func (e *AgentTaskError) Unwrap() error { return e.Err }

// RetryableError is returned by tools whose failure the model may fix by
// calling again with different arguments.
type RetryableError struct {
	Message string
}

func (e *RetryableError) Error() string {
	return e.Message
}
