// Package artifact provides stores for named, session-scoped text artifacts.
// The working memory store keeps its plan, findings and progress blobs here;
// each blob is independently retrievable and independently appendable.
package artifact

import (
	"sort"
	"strings"
	"sync"
)

// InMemoryStore is a process-local ArtifactStore keeping all artifacts in a
// nested map guarded by an RWMutex. Layout: sessionID -> name -> text.
//
// This implementation is intentionally minimal; it does not enforce retention
// limits or size quotas. For durability across process restarts, supply a
// disk or database backed implementation of core.ArtifactStore instead.
type InMemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]map[string]*strings.Builder
}

// NewInMemoryStore returns an empty in-memory artifact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{artifacts: make(map[string]map[string]*strings.Builder)}
}

// Set stores (or overwrites) the artifact text for the given session and name.
func (a *InMemoryStore) Set(sessionID, name, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := &strings.Builder{}
	b.WriteString(text)
	a.sessionLocked(sessionID)[name] = b
	return nil
}

// Append adds text to the end of the artifact, creating it when absent.
func (a *InMemoryStore) Append(sessionID, name, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	m := a.sessionLocked(sessionID)
	b, ok := m[name]
	if !ok {
		b = &strings.Builder{}
		m[name] = b
	}
	b.WriteString(text)
	return nil
}

// Get returns the artifact text or ErrNotFound.
func (a *InMemoryStore) Get(sessionID, name string) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	m, ok := a.artifacts[sessionID]
	if !ok {
		return "", ErrNotFound
	}
	b, ok := m[name]
	if !ok {
		return "", ErrNotFound
	}
	return b.String(), nil
}

// List returns the artifact names stored for the session, sorted for
// deterministic iteration. The slice is a snapshot safe for caller mutation.
func (a *InMemoryStore) List(sessionID string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	m, ok := a.artifacts[sessionID]
	if !ok {
		return []string{}, nil
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// sessionLocked returns the artifact map for the session, creating it when
// absent. Caller must hold the write lock.
func (a *InMemoryStore) sessionLocked(sessionID string) map[string]*strings.Builder {
	m, ok := a.artifacts[sessionID]
	if !ok {
		m = make(map[string]*strings.Builder)
		a.artifacts[sessionID] = m
	}
	return m
}
