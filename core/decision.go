package core

import "time"

// RoutingDecision is the immutable record of one routing evaluation. It is
// created once per evaluation and never mutated; the orchestrator attaches it
// to the execution attempt it selects.
type RoutingDecision struct {
	Strategy Strategy `json:"strategy"`
	// Confidence is the score in [0,1] behind the decision. For capability
	// routes it is the registry match confidence; for signal routes it is
	// 1.0; for the reasoning default it is the best sub-threshold capability
	// confidence (or 0) and signals low confidence rather than an error.
	Confidence float64 `json:"confidence"`
	// MatchedSignals names what fired: a capability id, a keyword or a shape
	// pattern. Empty for the reasoning default.
	MatchedSignals []string `json:"matched_signals,omitempty"`
	// CapabilityID is set when Strategy is StrategyCapability.
	CapabilityID string    `json:"capability_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
