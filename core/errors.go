package core

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrStrategiesExhausted is returned when the last strategy in the
	// global ordering has failed and no fallback remains.
	ErrStrategiesExhausted = errors.New("all execution strategies exhausted")

	// ErrCancelled is returned when the task producer cancelled the task.
	ErrCancelled = errors.New("task cancelled by producer")
)

// TaskError is the terminal error surfaced to the task producer when a task
// cannot be completed. It carries the full fallback chain for diagnosis.
type TaskError struct {
	TaskID string        `json:"task_id"`
	Reason string        `json:"reason"`
	Class  FailureClass  `json:"failure_class,omitempty"`
	Chain  FallbackChain `json:"fallback_chain"`
	// Err is the underlying cause, if any.
	Err error `json:"-"`
}

func (e *TaskError) Error() string {
	if e.Class != FailureNone {
		return fmt.Sprintf("task %s failed [%s]: %s", e.TaskID, e.Class, e.Reason)
	}
	return fmt.Sprintf("task %s failed: %s", e.TaskID, e.Reason)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *TaskError) Unwrap() error { return e.Err }

// EscalationError signals that the 3-Strike Protocol fired: the same failure
// class occurred three times in one session, so automatic retrying for that
// class halts and the failure is surfaced as non-retryable.
type EscalationError struct {
	Class FailureClass  `json:"failure_class"`
	Count int           `json:"count"`
	Chain FallbackChain `json:"fallback_chain"`
}

func (e *EscalationError) Error() string {
	return fmt.Sprintf("repeated failure escalation: class %q occurred %d times, automatic retry halted", e.Class, e.Count)
}

// ClassifiedError lets collaborators report a failure class alongside the
// error. The orchestrator tags the attempt with the class; unclassified
// errors fall back to FailureExecution.
type ClassifiedError struct {
	Class FailureClass
	Err   error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("[%s] %v", e.Class, e.Err)
}

// Unwrap exposes the wrapped error.
func (e *ClassifiedError) Unwrap() error { return e.Err }

// Classify returns the failure class of err: the class of a wrapped
// ClassifiedError if present, FailureTimeout for deadline expiry, otherwise
// FailureExecution.
func Classify(err error) FailureClass {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureExecution
}
