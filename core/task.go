package core

import (
	"strings"

	"github.com/google/uuid"
)

// Hints carries optional structured hints submitted alongside a task, such as
// references to prior turns the producer considers relevant. All fields are
// optional; the zero value means "no hints".
type Hints struct {
	PriorTurnIDs []string          `json:"prior_turn_ids,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Task is an opaque task description submitted by a task producer. A task is
// immutable once submitted: the orchestrator and router read it but never
// write to it.
type Task struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Hints Hints  `json:"hints,omitempty"`
}

// NewTask creates a task with a fresh ID and the given description text.
func NewTask(text string) Task {
	return Task{ID: NewID(), Text: text}
}

// NewTaskWithHints creates a task carrying structured hints.
func NewTaskWithHints(text string, hints Hints) Task {
	return Task{ID: NewID(), Text: text, Hints: hints}
}

// VariableKey derives the shared-variable-space key under which the
// normalized output of a successful attempt for this task is stored. The key
// is stable for the lifetime of the task so later strategies in the same
// session can read earlier results.
func (t Task) VariableKey() string {
	return "task:" + t.ID
}

// NormalizedText returns the task text lowercased and whitespace-trimmed for
// signal matching. Routing operates on this form so matching is not sensitive
// to producer formatting.
func (t Task) NormalizedText() string {
	return strings.ToLower(strings.TrimSpace(t.Text))
}

// NewID generates a new unique identifier for tasks, attempts and runs.
func NewID() string { return uuid.NewString() }
