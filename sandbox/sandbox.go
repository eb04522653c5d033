// Package sandbox defines the boundary to the sandboxed code runner. The
// isolation mechanism is out of scope; the core only depends on the Runner
// contract and interprets its results.
package sandbox

import (
	"context"
	"fmt"
)

// Execution is the observable outcome of running generated code.
type Execution struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// Succeeded reports whether the execution exited cleanly.
func (e Execution) Succeeded() bool { return e.ExitCode == 0 }

// Runner executes generated code in isolation. Implementations must honor
// context cancellation and deadlines; the orchestrator bounds every call
// with the generated-code latency budget.
type Runner interface {
	Execute(ctx context.Context, code string) (Execution, error)
}

// Mock is a canned-outcome Runner for tests and demos. Outcomes are keyed by
// exact code string; unknown code echoes to stdout.
type Mock struct {
	executions map[string]Execution
	errs       map[string]error
}

// NewMock constructs an empty mock runner.
func NewMock() *Mock {
	return &Mock{executions: make(map[string]Execution), errs: make(map[string]error)}
}

// AddExecution registers a canned execution result for a code string.
func (m *Mock) AddExecution(code string, exec Execution) { m.executions[code] = exec }

// AddError registers a canned error for a code string.
func (m *Mock) AddError(code string, err error) { m.errs[code] = err }

// Execute implements Runner.
func (m *Mock) Execute(ctx context.Context, code string) (Execution, error) {
	select {
	case <-ctx.Done():
		return Execution{}, ctx.Err()
	default:
	}
	if err, ok := m.errs[code]; ok {
		return Execution{}, err
	}
	if exec, ok := m.executions[code]; ok {
		return exec, nil
	}
	return Execution{Stdout: fmt.Sprintf("mock execution of: %s", code)}, nil
}
