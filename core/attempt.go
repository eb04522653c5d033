package core

import "time"

// Outcome classifies the terminal state of an execution attempt.
type Outcome string

const (
	// OutcomeSuccess means the collaborator returned a usable result within
	// budget.
	OutcomeSuccess Outcome = "success"
	// OutcomeFailure means the collaborator errored or exceeded its budget;
	// the attempt carries a FailureClass tag.
	OutcomeFailure Outcome = "failure"
	// OutcomeCancelled means the task producer cancelled the task while the
	// attempt was in flight. Cancellation is not a failure and never feeds
	// the 3-Strike Protocol.
	OutcomeCancelled Outcome = "cancelled"
)

// FailureClass tags a failed attempt with the reason category. The set is
// open: collaborators may report their own classes (for example
// "network_unreachable"), which the 3-Strike Protocol tracks verbatim.
type FailureClass string

const (
	// FailureNone is the class of non-failed attempts.
	FailureNone FailureClass = ""
	// FailureTimeout means the strategy's latency budget was exceeded.
	FailureTimeout FailureClass = "timeout"
	// FailureExecution means the collaborator returned an error.
	FailureExecution FailureClass = "execution_error"
	// FailurePermissionDenied means the session's capability permission
	// table denied the invocation before it started.
	FailurePermissionDenied FailureClass = "permission_denied"
)

// ExecutionAttempt records one invocation of one strategy for one task,
// including the routing decision that selected it. Attempts are immutable
// once appended to a session's history.
type ExecutionAttempt struct {
	ID           string          `json:"id"`
	TaskID       string          `json:"task_id"`
	Strategy     Strategy        `json:"strategy"`
	Start        time.Time       `json:"start"`
	End          time.Time       `json:"end"`
	Outcome      Outcome         `json:"outcome"`
	FailureClass FailureClass    `json:"failure_class,omitempty"`
	Decision     RoutingDecision `json:"decision"`
}

// Duration returns the wall-clock duration of the attempt.
func (a ExecutionAttempt) Duration() time.Duration { return a.End.Sub(a.Start) }

// Failed reports whether the attempt ended in failure.
func (a ExecutionAttempt) Failed() bool { return a.Outcome == OutcomeFailure }

// FallbackChain is the ordered, append-only sequence of execution attempts
// made for a single task, terminating either in success or in exhaustion of
// all strategies.
type FallbackChain []ExecutionAttempt

// Strategies returns the strategy of each attempt in chain order.
func (c FallbackChain) Strategies() []Strategy {
	out := make([]Strategy, len(c))
	for i, a := range c {
		out[i] = a.Strategy
	}
	return out
}

// Valid reports whether the chain honors its invariants: the strategy
// sequence is a subsequence of StrategyOrder and no strategy appears twice.
func (c FallbackChain) Valid() bool {
	last := -1
	for _, a := range c {
		idx := a.Strategy.OrderIndex()
		if idx <= last {
			return false
		}
		last = idx
	}
	return true
}

// Terminal returns the final attempt of the chain, if any.
func (c FallbackChain) Terminal() (ExecutionAttempt, bool) {
	if len(c) == 0 {
		return ExecutionAttempt{}, false
	}
	return c[len(c)-1], true
}
