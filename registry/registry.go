// Package registry implements the capability registry boundary: a catalog of
// pre-built, high-confidence intent handlers the router can match tasks
// against and the orchestrator can invoke. The matching algorithm of a real
// registry is out of scope here; the package defines the contract plus an
// in-memory implementation whose matchers are supplied at registration time.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Capability is a pre-built intent handler registered with the registry.
type Capability struct {
	// ID uniquely identifies the capability within a registry.
	ID string
	// Description is human-readable documentation; never consulted by code.
	Description string
	// Matcher scores how well the capability matches a task text, in [0,1].
	Matcher func(taskText string) float64
	// Handler executes the capability for a task text.
	Handler func(ctx context.Context, taskText string) (string, error)
}

// Match is the outcome of a registry match query.
type Match struct {
	CapabilityID string  `json:"capability_id"`
	Confidence   float64 `json:"confidence"`
}

// Registry is the boundary contract the core depends on.
type Registry interface {
	// Match returns the best capability match for the task text, or false
	// when no capability matches at all (confidence 0 across the board).
	Match(taskText string) (Match, bool)

	// Invoke executes a capability by id. The caller bounds the invocation
	// with a context deadline.
	Invoke(ctx context.Context, capabilityID, taskText string) (string, error)

	// Snapshot returns an immutable view for one routing evaluation.
	Snapshot() Snapshot
}

// Snapshot is an immutable, ordered view of registered capabilities taken at
// one point in time. The router evaluates against snapshots so a decision is
// reproducible even while the live registry changes.
type Snapshot struct {
	capabilities []Capability
}

// Match evaluates every capability matcher in registration order and returns
// the best match. Ties are broken by registration order: only a strictly
// higher confidence displaces an earlier capability.
func (s Snapshot) Match(taskText string) (Match, bool) {
	best := Match{}
	found := false
	for _, c := range s.capabilities {
		conf := c.Matcher(taskText)
		if conf <= 0 {
			continue
		}
		if !found || conf > best.Confidence {
			best = Match{CapabilityID: c.ID, Confidence: conf}
			found = true
		}
	}
	return best, found
}

// Len returns the number of capabilities in the snapshot.
func (s Snapshot) Len() int { return len(s.capabilities) }

// InMemory is a process-local Registry guarded by an RWMutex. Registration
// order is preserved because it participates in match tie-breaking.
type InMemory struct {
	mu           sync.RWMutex
	capabilities []Capability
	index        map[string]int
}

// NewInMemory constructs an empty in-memory registry.
func NewInMemory() *InMemory {
	return &InMemory{index: make(map[string]int)}
}

// Register appends a capability. IDs must be unique; matcher and handler are
// required.
func (r *InMemory) Register(c Capability) error {
	if c.ID == "" {
		return fmt.Errorf("capability id must not be empty")
	}
	if c.Matcher == nil || c.Handler == nil {
		return fmt.Errorf("capability %s: matcher and handler are required", c.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.index[c.ID]; exists {
		return fmt.Errorf("capability %s already registered", c.ID)
	}
	r.index[c.ID] = len(r.capabilities)
	r.capabilities = append(r.capabilities, c)
	return nil
}

// Match implements Registry against the current contents.
func (r *InMemory) Match(taskText string) (Match, bool) {
	return r.Snapshot().Match(taskText)
}

// Invoke executes the handler of a registered capability.
func (r *InMemory) Invoke(ctx context.Context, capabilityID, taskText string) (string, error) {
	r.mu.RLock()
	idx, ok := r.index[capabilityID]
	var c Capability
	if ok {
		c = r.capabilities[idx]
	}
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("capability %s not registered", capabilityID)
	}
	out, err := c.Handler(ctx, taskText)
	if err != nil {
		return "", fmt.Errorf("capability %s: %w", capabilityID, err)
	}
	return out, nil
}

// Snapshot returns an immutable copy of the registered capabilities in
// registration order.
func (r *InMemory) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	caps := make([]Capability, len(r.capabilities))
	copy(caps, r.capabilities)
	return Snapshot{capabilities: caps}
}

// SubstringMatcher returns a matcher that reports the given confidence when
// the task text contains the phrase (case-insensitive), zero otherwise.
// Convenient for tests and demos; real registries plug semantic matchers.
func SubstringMatcher(phrase string, confidence float64) func(string) float64 {
	lowered := strings.ToLower(phrase)
	return func(taskText string) float64 {
		if strings.Contains(strings.ToLower(taskText), lowered) {
			return confidence
		}
		return 0
	}
}
