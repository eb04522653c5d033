package core

// Result is the value returned to the task producer when a task completes
// successfully. Output is the normalized collaborator output that was also
// written into the shared variable space.
type Result struct {
	TaskID       string        `json:"task_id"`
	StrategyUsed Strategy      `json:"strategy_used"`
	Output       string        `json:"output"`
	Chain        FallbackChain `json:"fallback_chain"`
}

// Reliability reports the declared reliability class of the strategy that
// produced the result. Reporting metadata only.
func (r Result) Reliability() string { return r.StrategyUsed.ReliabilityClass() }
