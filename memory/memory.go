// Package memory implements the working memory store: three named,
// session-scoped text artifacts (plan, findings, progress) that externalize
// working state outside the model-facing context window, plus the two policy
// rules the orchestrator is driven by — the 2-Action Rule forcing findings
// externalization after every two qualifying information-gathering attempts,
// and the 3-Strike Protocol halting automatic retry of a failure class after
// its third occurrence in a session.
package memory

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"taskcore/artifact"
	"taskcore/core"
	"taskcore/logging"
)

// Artifact names. Each is an independently retrievable, independently
// appendable text blob per session.
const (
	ArtifactPlan     = "plan"
	ArtifactFindings = "findings"
	ArtifactProgress = "progress"
)

// Phase is the per-session state of the 2-Action Rule machine.
type Phase string

const (
	// PhaseIdle means no qualifying attempt has happened yet.
	PhaseIdle Phase = "idle"
	// PhaseAccumulating means qualifying attempts are being counted toward
	// the next forced externalization.
	PhaseAccumulating Phase = "accumulating"
	// PhaseExternalizationDue means the quota is spent: the next qualifying
	// attempt is blocked until a finding is recorded.
	PhaseExternalizationDue Phase = "externalization_due"
)

// ErrExternalizationDue is returned by BeginQualifying when the 2-Action Rule
// blocks the attempt: a finding must be recorded before it may start.
var ErrExternalizationDue = errors.New("externalization due: record a finding before the next qualifying attempt")

// ProgressEntry is one chronological progress log entry.
type ProgressEntry struct {
	Time         time.Time
	Kind         string // "info" | "failure"
	FailureClass core.FailureClass
	Text         string
}

// String renders the entry as a single log line.
func (e ProgressEntry) String() string {
	if e.Kind == "failure" {
		return fmt.Sprintf("%s failure [%s] %s\n", e.Time.UTC().Format(time.RFC3339), e.FailureClass, e.Text)
	}
	return fmt.Sprintf("%s %s %s\n", e.Time.UTC().Format(time.RFC3339), e.Kind, e.Text)
}

// sessionState is the mutable per-session policy state. Artifact text itself
// lives in the artifact store; only counters and the phase live here.
type sessionState struct {
	phase      Phase
	qualifying int // qualifying attempts since last externalization
	blocked    int // attempts blocked by the gate, for observability
	strikes    map[core.FailureClass]int
}

// Options configures a working memory Store.
type Options struct {
	// ActionsPerFinding is the qualifying-attempt quota between findings
	// externalizations. Default 2 (the 2-Action Rule).
	ActionsPerFinding int
	// StrikeLimit is the per-class failure count at which automatic retry
	// halts. Default 3 (the 3-Strike Protocol).
	StrikeLimit int
	// Artifacts persists the plan/findings/progress blobs.
	Artifacts core.ArtifactStore
	// Logger for policy events.
	Logger logging.Logger
}

// Store is the working memory store. Safe for concurrent use across
// sessions; per-session policy state is independent.
type Store struct {
	mu                sync.Mutex
	actionsPerFinding int
	strikeLimit       int
	artifacts         core.ArtifactStore
	logger            logging.Logger
	sessions          map[string]*sessionState
}

// NewStore constructs a working memory store with optional overrides.
func NewStore(optFns ...func(o *Options)) *Store {
	opts := Options{
		ActionsPerFinding: 2,
		StrikeLimit:       3,
		Artifacts:         artifact.NewInMemoryStore(),
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{
		actionsPerFinding: opts.ActionsPerFinding,
		strikeLimit:       opts.StrikeLimit,
		artifacts:         opts.Artifacts,
		logger:            opts.Logger,
		sessions:          make(map[string]*sessionState),
	}
}

// BeginQualifying gates the start of a qualifying information-gathering
// attempt. It returns ErrExternalizationDue when the quota since the last
// externalization is spent; the caller must record a finding and retry. On
// success the attempt is counted.
func (s *Store) BeginQualifying(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateLocked(sessionID)
	if st.qualifying >= s.actionsPerFinding {
		st.phase = PhaseExternalizationDue
		st.blocked++
		s.logger.Debug("qualifying attempt blocked by 2-action rule session_id=%s blocked=%d", sessionID, st.blocked)
		return ErrExternalizationDue
	}
	st.qualifying++
	st.phase = PhaseAccumulating
	return nil
}

// RecordFinding appends a discrete findings entry and resets the 2-Action
// Rule gate, unblocking any queued qualifying attempt.
func (s *Store) RecordFinding(sessionID, text string) error {
	s.mu.Lock()
	st := s.stateLocked(sessionID)
	st.qualifying = 0
	st.phase = PhaseAccumulating
	s.mu.Unlock()

	entry := fmt.Sprintf("- [%s] %s\n", time.Now().UTC().Format(time.RFC3339), text)
	if err := s.artifacts.Append(sessionID, ArtifactFindings, entry); err != nil {
		return fmt.Errorf("append finding: %w", err)
	}
	return nil
}

// RecordProgress appends one chronological progress entry. The progress log
// is append-only; entries, failures included, are never pruned.
func (s *Store) RecordProgress(sessionID string, e ProgressEntry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if e.Kind == "" {
		e.Kind = "info"
	}
	if err := s.artifacts.Append(sessionID, ArtifactProgress, e.String()); err != nil {
		return fmt.Errorf("append progress: %w", err)
	}
	return nil
}

// RecordFailure records a failure in the progress log and advances the
// 3-Strike counter for its class. It returns the class count and whether the
// strike limit has been reached, in which case the caller must stop silent
// retrying for that class and surface the failure.
func (s *Store) RecordFailure(sessionID string, class core.FailureClass, text string) (int, bool, error) {
	if err := s.RecordProgress(sessionID, ProgressEntry{Kind: "failure", FailureClass: class, Text: text}); err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	st := s.stateLocked(sessionID)
	st.strikes[class]++
	count := st.strikes[class]
	s.mu.Unlock()

	halted := count >= s.strikeLimit
	if halted {
		s.logger.Warn("3-strike protocol fired session_id=%s class=%s count=%d", sessionID, class, count)
	}
	return count, halted, nil
}

// Strikes returns the current failure count for a class in the session.
func (s *Store) Strikes(sessionID string, class core.FailureClass) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return 0
	}
	return st.strikes[class]
}

// Halted reports whether the 3-Strike Protocol has halted automatic retry
// for the class in this session.
func (s *Store) Halted(sessionID string, class core.FailureClass) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	return ok && st.strikes[class] >= s.strikeLimit
}

// Phase returns the 2-Action Rule phase for the session.
func (s *Store) Phase(sessionID string) Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return PhaseIdle
	}
	return st.phase
}

// Plan returns the current plan artifact (empty when never set).
func (s *Store) Plan(sessionID string) (string, error) {
	return s.artifactText(sessionID, ArtifactPlan)
}

// SetPlan rewrites the plan artifact. The plan is append-mostly in practice;
// a full rewrite represents explicit re-planning.
func (s *Store) SetPlan(sessionID, text string) error {
	if err := s.artifacts.Set(sessionID, ArtifactPlan, text); err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	return nil
}

// AppendPlan appends to the plan artifact without rewriting it.
func (s *Store) AppendPlan(sessionID, text string) error {
	if err := s.artifacts.Append(sessionID, ArtifactPlan, text); err != nil {
		return fmt.Errorf("append plan: %w", err)
	}
	return nil
}

// Findings returns the findings artifact (empty when none recorded).
func (s *Store) Findings(sessionID string) (string, error) {
	return s.artifactText(sessionID, ArtifactFindings)
}

// Progress returns the progress artifact (empty when none recorded).
func (s *Store) Progress(sessionID string) (string, error) {
	return s.artifactText(sessionID, ArtifactProgress)
}

func (s *Store) artifactText(sessionID, name string) (string, error) {
	text, err := s.artifacts.Get(sessionID, name)
	if errors.Is(err, artifact.ErrNotFound) {
		return "", nil
	}
	return text, err
}

// stateLocked returns the policy state for the session, creating it when
// absent. Caller must hold the mutex.
func (s *Store) stateLocked(sessionID string) *sessionState {
	st, ok := s.sessions[sessionID]
	if !ok {
		st = &sessionState{phase: PhaseIdle, strikes: make(map[core.FailureClass]int)}
		s.sessions[sessionID] = st
	}
	return st
}
