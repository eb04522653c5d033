// Package reasoning defines the boundary to the language reasoning service:
// an opaque call-and-response text generator with unbounded, adaptive
// latency. Prompting strategy is out of scope; the core passes the task text
// plus the current context window and consumes the generated text. Real
// adapters over the Anthropic and OpenAI APIs live in subpackages.
package reasoning

import (
	"context"
	"fmt"
)

// Service generates a textual response for a task given the conversational
// context window. The call blocks; the caller supplies cancellation and
// timeout through ctx (session execution is sequential, so no concurrent
// suspension points are needed).
type Service interface {
	Generate(ctx context.Context, taskText string, contextWindow string) (string, error)
}

// Mock is a lightweight in-memory Service useful for tests and examples.
// Responses are keyed by exact task text.
type Mock struct {
	responses map[string]string
	errs      map[string]error
}

// NewMock constructs an empty mock reasoning service.
func NewMock() *Mock {
	return &Mock{responses: make(map[string]string), errs: make(map[string]error)}
}

// AddResponse registers a deterministic canned response for a task text.
func (m *Mock) AddResponse(taskText, response string) { m.responses[taskText] = response }

// AddError registers a canned error for a task text.
func (m *Mock) AddError(taskText string, err error) { m.errs[taskText] = err }

// Generate implements Service.
func (m *Mock) Generate(ctx context.Context, taskText string, contextWindow string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	if err, ok := m.errs[taskText]; ok {
		return "", err
	}
	if resp, ok := m.responses[taskText]; ok {
		return resp, nil
	}
	return fmt.Sprintf("Mock response to: %s", taskText), nil
}
