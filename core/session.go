package core

import (
	"sync"
	"time"
)

// Session is the shared execution context owned exclusively by one session
// for its lifetime. It tracks the shared variable space, the append-only
// execution history and the capability permission table. It is safe for
// concurrent access.
//
// Contract:
//   - Variables, once written, are overwritten only by a later execution
//     attempt and never deleted
//   - History is append-only and ordered by non-decreasing attempt start time
//   - History and Variables reads return defensive copies
//   - Clone performs deep copies of maps/slices for safe divergence.
type Session struct {
	ID          string             `json:"id"`
	Variables   map[string]string  `json:"variables"`
	History     []ExecutionAttempt `json:"history"`
	Permissions map[string]bool    `json:"permissions"`
	Created     time.Time          `json:"created"`
	Updated     time.Time          `json:"updated"`
	mu          sync.RWMutex
}

// NewSession creates a new empty session with the given ID.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{ID: id, Variables: map[string]string{}, History: []ExecutionAttempt{}, Permissions: map[string]bool{}, Created: now, Updated: now}
}

// GetVariable returns the value and existence flag for a shared variable.
func (s *Session) GetVariable(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.Variables[key]
	return v, ok
}

// SetVariable writes a shared variable. Keys are only ever overwritten by
// later attempts; there is deliberately no delete operation.
func (s *Session) SetVariable(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Variables[key] = value
	s.Updated = time.Now()
}

// VariableSnapshot returns a copy of the full shared variable space.
func (s *Session) VariableSnapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.Variables))
	for k, v := range s.Variables {
		out[k] = v
	}
	return out
}

// AppendAttempt appends an execution attempt to the history. Attempts arrive
// in start-time order because execution within a session is sequential; the
// session preserves the order it is given.
func (s *Session) AppendAttempt(a ExecutionAttempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.History = append(s.History, a)
	s.Updated = time.Now()
}

// Attempts returns a defensive copy of the full execution history.
func (s *Session) Attempts() []ExecutionAttempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ExecutionAttempt, len(s.History))
	copy(out, s.History)
	return out
}

// AttemptsForTask returns the attempts belonging to one task, in history
// order. This is the task's fallback chain.
func (s *Session) AttemptsForTask(taskID string) FallbackChain {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var chain FallbackChain
	for _, a := range s.History {
		if a.TaskID == taskID {
			chain = append(chain, a)
		}
	}
	return chain
}

// SetPermission records whether a capability may be invoked in this session.
func (s *Session) SetPermission(capability string, allowed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Permissions[capability] = allowed
	s.Updated = time.Now()
}

// CapabilityAllowed consults the permission table. Capabilities without an
// entry are allowed; only an explicit deny blocks invocation.
func (s *Session) CapabilityAllowed(capability string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	allowed, ok := s.Permissions[capability]
	return !ok || allowed
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{ID: s.ID, Variables: make(map[string]string, len(s.Variables)), History: make([]ExecutionAttempt, len(s.History)), Permissions: make(map[string]bool, len(s.Permissions)), Created: s.Created, Updated: s.Updated}
	for k, v := range s.Variables {
		clone.Variables[k] = v
	}
	copy(clone.History, s.History)
	for k, v := range s.Permissions {
		clone.Permissions[k] = v
	}
	return clone
}

// SessionStore persists sessions and their evolving state and history.
// Sessions are keyed by session identifier and never shared across sessions.
type SessionStore interface {
	Create(id string) (*Session, error)
	Get(id string) (*Session, error)
	AppendAttempt(sessionID string, a ExecutionAttempt) error
	SetVariable(sessionID, key, value string) error
	SetPermission(sessionID, capability string, allowed bool) error
}

// ArtifactStore persists named text artifacts keyed by session identifier.
// Each artifact is independently retrievable and independently appendable;
// the working memory store keeps its plan, findings and progress blobs here.
type ArtifactStore interface {
	Set(sessionID, name, text string) error
	Append(sessionID, name, text string) error
	Get(sessionID, name string) (string, error)
	List(sessionID string) ([]string, error)
}
