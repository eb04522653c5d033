// Package window models the model-facing conversational context window as an
// ordered list of text segments with a running token estimate, and implements
// the compaction routine that keeps the window under a token budget. The most
// recent plan-recitation segment and the most recent N failure segments are
// pinned: they are excluded from summarization so long-context degradation
// does not erase the plan or recent failure evidence.
package window

import (
	"fmt"
	"strings"
	"sync"

	"taskcore/core"
	"taskcore/logging"
)

// Kind labels a segment's role within the window.
type Kind string

const (
	// KindUser is producer-submitted content.
	KindUser Kind = "user"
	// KindAssistant is collaborator output.
	KindAssistant Kind = "assistant"
	// KindTool is capability / sandbox output.
	KindTool Kind = "tool"
	// KindPlan is a plan-recitation block. The most recent one is pinned.
	KindPlan Kind = "plan"
	// KindFailure is a recorded failure entry. The most recent N are pinned.
	KindFailure Kind = "failure"
	// KindSummary is a segment produced by compaction. Summaries are never
	// re-summarized, which makes compaction idempotent.
	KindSummary Kind = "summary"
)

// Segment is one unit of window content.
type Segment struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	Text string `json:"text"`
}

// Summarizer reduces a run of segments to a single summary text. The default
// is extractive and deterministic; deployments can plug a reasoning-backed
// implementation.
type Summarizer func(segments []Segment) string

// OverflowError is the fatal variant of context overflow: the pinned plan
// alone exceeds the token budget, so nothing can be truncated to recover.
type OverflowError struct {
	PlanTokens int
	Budget     int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("context overflow: pinned plan (%d tokens) exceeds budget (%d tokens)", e.PlanTokens, e.Budget)
}

// Result reports what one compaction pass did.
type Result struct {
	TokensBefore      int
	TokensAfter       int
	SummarizedRuns    int
	DroppedSummaries  int
	TruncatedFailures int
	Overflow          bool
}

// Options configures a Window.
type Options struct {
	// PinnedFailures is the number of most recent failure segments excluded
	// from summarization. Default 5.
	PinnedFailures int
	// Summarize produces summary segments during compaction.
	Summarize Summarizer
	// EstimateTokens converts text to a token estimate. The default is the
	// usual chars/4 heuristic.
	EstimateTokens func(text string) int
	// Logger for compaction events.
	Logger logging.Logger
}

// Window is an ordered, mutex-guarded segment list. One window belongs to one
// session; windows are never shared.
type Window struct {
	mu             sync.Mutex
	segments       []Segment
	pinnedFailures int
	summarize      Summarizer
	estimate       func(string) int
	logger         logging.Logger
}

// New constructs an empty window with optional overrides.
func New(optFns ...func(o *Options)) *Window {
	opts := Options{
		PinnedFailures: 5,
		Summarize:      ExtractiveSummarizer,
		EstimateTokens: EstimateTokens,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Window{
		pinnedFailures: opts.PinnedFailures,
		summarize:      opts.Summarize,
		estimate:       opts.EstimateTokens,
		logger:         opts.Logger,
	}
}

// Append adds a segment to the end of the window and returns its id.
func (w *Window) Append(kind Kind, text string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	seg := Segment{ID: core.NewID(), Kind: kind, Text: text}
	w.segments = append(w.segments, seg)
	return seg.ID
}

// RecitePlan appends a plan-recitation segment. Keeping the current plan at
// the end of the window resists "lost in the middle" degradation; the most
// recent recitation is pinned during compaction.
func (w *Window) RecitePlan(planText string) string {
	return w.Append(KindPlan, planText)
}

// Segments returns a defensive copy of the current segment list.
func (w *Window) Segments() []Segment {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Segment, len(w.segments))
	copy(out, w.segments)
	return out
}

// Len returns the current segment count.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.segments)
}

// TokenEstimate returns the running token estimate for the whole window.
func (w *Window) TokenEstimate() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.estimateLocked(w.segments)
}

// Render joins all segment texts into the prompt-facing window text.
func (w *Window) Render() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var b strings.Builder
	for i, seg := range w.segments {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(seg.Text)
	}
	return b.String()
}

// NeedsCompaction reports whether the window exceeds the budget.
func (w *Window) NeedsCompaction(budget int) bool {
	return w.TokenEstimate() > budget
}

// Compact reduces the window under the token budget. Oldest non-pinned,
// non-summary runs are replaced by single summary segments; existing summary
// segments are never re-summarized, so calling Compact twice with no new
// segments in between is a no-op the second time.
//
// Hard failure handling: when pinned content plus summaries still exceed the
// budget, the oldest summaries are dropped first, then pinned failure
// segments are truncated least-recent-first (the plan is never truncated) and
// the overflow condition is logged. If the plan alone exceeds the budget an
// OverflowError is returned.
func (w *Window) Compact(budget int) (Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	res := Result{TokensBefore: w.estimateLocked(w.segments)}
	if res.TokensBefore <= budget {
		res.TokensAfter = res.TokensBefore
		return res, nil
	}

	// Summarize oldest non-pinned runs until under budget or nothing left
	// to summarize.
	for w.estimateLocked(w.segments) > budget {
		start, end := w.oldestCompactableRunLocked()
		if start < 0 {
			break
		}
		run := make([]Segment, end-start)
		copy(run, w.segments[start:end])
		summary := Segment{ID: core.NewID(), Kind: KindSummary, Text: w.summarize(run)}
		w.segments = append(w.segments[:start], append([]Segment{summary}, w.segments[end:]...)...)
		res.SummarizedRuns++
	}

	// Drop oldest summaries before touching pinned content.
	for w.estimateLocked(w.segments) > budget {
		idx := w.oldestOfKindLocked(KindSummary)
		if idx < 0 {
			break
		}
		w.segments = append(w.segments[:idx], w.segments[idx+1:]...)
		res.DroppedSummaries++
	}

	// Pinned content alone exceeds the budget: truncate pinned failures
	// least-recent-first. The plan is never truncated.
	overflowLogged := false
	for w.estimateLocked(w.segments) > budget {
		idx := w.oldestOfKindLocked(KindFailure)
		if idx < 0 {
			break
		}
		if !overflowLogged {
			res.Overflow = true
			overflowLogged = true
		}
		w.segments = append(w.segments[:idx], w.segments[idx+1:]...)
		res.TruncatedFailures++
	}

	res.TokensAfter = w.estimateLocked(w.segments)
	if res.Overflow {
		w.logger.Error("context overflow: pinned content exceeded budget, truncated %d failure entries (budget=%d tokens=%d)", res.TruncatedFailures, budget, res.TokensAfter)
	}

	if res.TokensAfter > budget {
		// Only the plan (and any unpinnable remainder) is left.
		res.Overflow = true
		return res, &OverflowError{PlanTokens: res.TokensAfter, Budget: budget}
	}
	return res, nil
}

// estimateLocked sums token estimates over segments. Caller holds the mutex.
func (w *Window) estimateLocked(segments []Segment) int {
	total := 0
	for _, seg := range segments {
		total += w.estimate(seg.Text)
	}
	return total
}

// oldestCompactableRunLocked finds the oldest maximal run of segments that
// are neither pinned nor summaries. Returns [-1,-1) when none exists.
func (w *Window) oldestCompactableRunLocked() (int, int) {
	pinned := w.pinnedLocked()
	start := -1
	for i, seg := range w.segments {
		if seg.Kind == KindSummary || pinned[seg.ID] {
			if start >= 0 {
				return start, i
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		return start, len(w.segments)
	}
	return -1, -1
}

// oldestOfKindLocked returns the index of the oldest segment of the kind, or
// -1 when absent.
func (w *Window) oldestOfKindLocked(kind Kind) int {
	for i, seg := range w.segments {
		if seg.Kind == kind {
			return i
		}
	}
	return -1
}

// pinnedLocked computes the pinned id set: the most recent plan segment and
// the most recent pinnedFailures failure segments.
func (w *Window) pinnedLocked() map[string]bool {
	pinned := map[string]bool{}
	planSeen := false
	failures := 0
	for i := len(w.segments) - 1; i >= 0; i-- {
		seg := w.segments[i]
		switch seg.Kind {
		case KindPlan:
			if !planSeen {
				pinned[seg.ID] = true
				planSeen = true
			}
		case KindFailure:
			if failures < w.pinnedFailures {
				pinned[seg.ID] = true
				failures++
			}
		}
	}
	return pinned
}

// EstimateTokens is the default chars/4 token heuristic.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(text)/4 + 1
}

// ExtractiveSummarizer is the default deterministic summarizer: it keeps the
// first line of each segment, prefixed with a summary marker.
func ExtractiveSummarizer(segments []Segment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[summary of %d earlier segments]", len(segments))
	for _, seg := range segments {
		line := seg.Text
		if idx := strings.IndexByte(line, '\n'); idx >= 0 {
			line = line[:idx]
		}
		const maxLine = 120
		if len(line) > maxLine {
			line = line[:maxLine]
		}
		if line != "" {
			b.WriteString(" ")
			b.WriteString(line)
		}
	}
	return b.String()
}
