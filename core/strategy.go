package core

import "time"

// Strategy identifies one of the closed set of execution strategies. The set
// is fixed; adding a variant means touching the router, the orchestrator and
// the fallback ordering below.
type Strategy string

const (
	// StrategyCapability routes to a pre-built, high-confidence intent
	// handler from the capability registry.
	StrategyCapability Strategy = "capability"
	// StrategyGeneratedCode routes to the sandboxed code runner.
	StrategyGeneratedCode Strategy = "generated_code"
	// StrategyReasoning routes to the language reasoning service. It is the
	// default when nothing else matches and the last resort of every
	// fallback chain.
	StrategyReasoning Strategy = "reasoning"
)

// StrategyOrder is the fixed global fallback ordering. Every fallback chain
// is a subsequence of this ordering with no element repeated.
var StrategyOrder = []Strategy{StrategyCapability, StrategyGeneratedCode, StrategyReasoning}

// Valid reports whether s is one of the known strategy variants.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyCapability, StrategyGeneratedCode, StrategyReasoning:
		return true
	}
	return false
}

// LatencyBudget returns the strategy's declared latency budget. Zero means
// unbounded. These are declarations carried by the variant; deployments can
// override them via config.Budgets.
func (s Strategy) LatencyBudget() time.Duration {
	switch s {
	case StrategyCapability:
		return 100 * time.Millisecond
	case StrategyGeneratedCode:
		return 5 * time.Second
	default:
		return 0
	}
}

// ReliabilityClass returns the strategy's declared reliability class. The
// class is reporting metadata only; routing never consults it.
func (s Strategy) ReliabilityClass() string {
	switch s {
	case StrategyCapability:
		return "high"
	case StrategyGeneratedCode:
		return "medium"
	case StrategyReasoning:
		return "adaptive"
	default:
		return "unknown"
	}
}

// OrderIndex returns the strategy's position in StrategyOrder, or -1 for an
// unknown strategy.
func (s Strategy) OrderIndex() int {
	for i, v := range StrategyOrder {
		if v == s {
			return i
		}
	}
	return -1
}
