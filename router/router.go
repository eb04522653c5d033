// Package router implements the execution router: a pure decision function
// mapping a task and a capability registry snapshot onto one of the three
// execution strategies. The router is the only component shared across
// sessions, so it carries no per-call mutable state: its fields are immutable
// configuration set at construction (thresholds, signal set, clock) and every
// evaluation works exclusively on its inputs.
package router

import (
	"regexp"
	"time"

	"taskcore/core"
	"taskcore/registry"
)

// defaultKeywords is the built-in structural keyword list indicating a
// well-specified, mechanically solvable task.
var defaultKeywords = []string{
	"script",
	"compute",
	"calculate",
	"parse",
	"extract",
	"sum",
	"sort",
	"count",
	"csv",
	"json",
	"regex",
}

// defaultPatterns is the built-in set of shape patterns. Patterns run against
// the normalized (lowercased, trimmed) task text.
var defaultPatterns = []string{
	`^(write|generate|create)\s+(a\s+|an\s+)?(script|program|function|snippet|one-liner)`,
	`\b(column|row|field|cell)s?\s+[a-z0-9]+\b`,
	`\b(every|each|all)\s+\w+\s+(in|of|from)\s+(this|the)\s+(file|list|table|input)\b`,
}

// Options configures a Router.
type Options struct {
	// CapabilityThreshold is the minimum registry confidence for a
	// capability route. Inclusive boundary.
	CapabilityThreshold float64
	// ExtraKeywords extends the built-in keyword list.
	ExtraKeywords []string
	// ExtraPatterns extends the built-in shape patterns (regular
	// expressions applied to the normalized task text).
	ExtraPatterns []string
	// Clock supplies decision timestamps. Injectable so tests get
	// bit-identical decisions for identical inputs.
	Clock func() time.Time
}

// keywordSignal pairs a keyword with its precompiled word-boundary matcher.
type keywordSignal struct {
	name string
	re   *regexp.Regexp
}

// Router decides which strategy handles a task. Safe for concurrent use from
// any number of sessions: all fields are immutable after construction.
type Router struct {
	threshold float64
	keywords  []keywordSignal
	patterns  []*regexp.Regexp
	now       func() time.Time
}

// New constructs a Router with optional overrides. Invalid extra patterns
// are skipped rather than failing construction; the built-in set always
// applies.
func New(optFns ...func(o *Options)) *Router {
	opts := Options{
		CapabilityThreshold: 0.80,
		Clock:               time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	names := make([]string, 0, len(defaultKeywords)+len(opts.ExtraKeywords))
	names = append(names, defaultKeywords...)
	names = append(names, opts.ExtraKeywords...)
	keywords := make([]keywordSignal, 0, len(names))
	for _, kw := range names {
		// Word-boundary match so "script" does not fire on "description".
		keywords = append(keywords, keywordSignal{name: kw, re: regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)})
	}

	raw := make([]string, 0, len(defaultPatterns)+len(opts.ExtraPatterns))
	raw = append(raw, defaultPatterns...)
	raw = append(raw, opts.ExtraPatterns...)
	patterns := make([]*regexp.Regexp, 0, len(raw))
	for _, p := range raw {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		patterns = append(patterns, re)
	}

	return &Router{threshold: opts.CapabilityThreshold, keywords: keywords, patterns: patterns, now: opts.Clock}
}

// Decide evaluates the routing algorithm for a task against a registry
// snapshot. It cannot fail: it always returns a decision, signalling low
// confidence through the recorded confidence value rather than an error.
// Given identical inputs (and a fixed clock) it returns identical decisions.
//
// exclude lists strategies already tried in the current fallback chain; the
// router skips them while preserving the global ordering, so re-routing after
// a failure continues down [Capability, GeneratedCode, Reasoning].
func (r *Router) Decide(task core.Task, snapshot registry.Snapshot, exclude ...core.Strategy) core.RoutingDecision {
	excluded := map[core.Strategy]bool{}
	for _, s := range exclude {
		excluded[s] = true
	}

	text := task.NormalizedText()

	// Step 1: capability match at or above threshold.
	match, matched := snapshot.Match(task.Text)
	if !excluded[core.StrategyCapability] && matched && match.Confidence >= r.threshold {
		return core.RoutingDecision{
			Strategy:       core.StrategyCapability,
			Confidence:     match.Confidence,
			MatchedSignals: []string{"capability:" + match.CapabilityID},
			CapabilityID:   match.CapabilityID,
			Timestamp:      r.now(),
		}
	}

	// Step 2: structural signals.
	if !excluded[core.StrategyGeneratedCode] {
		if signals := r.matchSignals(text); len(signals) > 0 {
			return core.RoutingDecision{
				Strategy:       core.StrategyGeneratedCode,
				Confidence:     1.0,
				MatchedSignals: signals,
				Timestamp:      r.now(),
			}
		}
	}

	// Step 3: reasoning default. A sub-threshold capability match is
	// reported through the confidence value, not as an error.
	confidence := 0.0
	if matched && match.Confidence < r.threshold {
		confidence = match.Confidence
	}
	return core.RoutingDecision{
		Strategy:   core.StrategyReasoning,
		Confidence: confidence,
		Timestamp:  r.now(),
	}
}

// matchSignals returns every structural signal that fires on the normalized
// task text, keywords first then patterns, in fixed configuration order.
func (r *Router) matchSignals(text string) []string {
	var signals []string
	for _, kw := range r.keywords {
		if kw.re.MatchString(text) {
			signals = append(signals, "keyword:"+kw.name)
		}
	}
	for _, re := range r.patterns {
		if re.MatchString(text) {
			signals = append(signals, "pattern:"+re.String())
		}
	}
	return signals
}
