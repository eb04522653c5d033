package core

import (
	"sync"
	"testing"
	"time"
)

func TestSession_VariableRoundTrip(t *testing.T) {
	s := NewSession("s1")
	if _, ok := s.GetVariable("task:a"); ok {
		t.Fatalf("expected no value before write")
	}
	s.SetVariable("task:a", "42 EUR")
	v, ok := s.GetVariable("task:a")
	if !ok || v != "42 EUR" {
		t.Fatalf("expected round-trip value, got %q ok=%v", v, ok)
	}
	// overwrite by a later attempt is allowed; deletion does not exist
	s.SetVariable("task:a", "43 EUR")
	v, _ = s.GetVariable("task:a")
	if v != "43 EUR" {
		t.Fatalf("expected overwritten value, got %q", v)
	}
	// snapshot is a copy
	snap := s.VariableSnapshot()
	snap["task:a"] = "mutated"
	v, _ = s.GetVariable("task:a")
	if v != "43 EUR" {
		t.Fatalf("expected copy isolation, got %q", v)
	}
}

func TestSession_HistoryOrderAndCopy(t *testing.T) {
	s := NewSession("s2")
	base := time.Now()
	for i := 0; i < 4; i++ {
		s.AppendAttempt(ExecutionAttempt{
			ID:       NewID(),
			TaskID:   "t1",
			Strategy: StrategyReasoning,
			Start:    base.Add(time.Duration(i) * time.Millisecond),
			End:      base.Add(time.Duration(i+1) * time.Millisecond),
			Outcome:  OutcomeSuccess,
		})
	}
	attempts := s.Attempts()
	if len(attempts) != 4 {
		t.Fatalf("expected 4 attempts, got %d", len(attempts))
	}
	for i := 1; i < len(attempts); i++ {
		if attempts[i].Start.Before(attempts[i-1].Start) {
			t.Fatalf("history not ordered by start time at %d", i)
		}
	}
	// returned slice is a defensive copy
	attempts[0].TaskID = "mutated"
	if s.Attempts()[0].TaskID != "t1" {
		t.Fatalf("expected copy isolation on history")
	}
}

func TestSession_AttemptsForTask(t *testing.T) {
	s := NewSession("s3")
	s.AppendAttempt(ExecutionAttempt{ID: "a", TaskID: "t1", Strategy: StrategyCapability})
	s.AppendAttempt(ExecutionAttempt{ID: "b", TaskID: "t2", Strategy: StrategyReasoning})
	s.AppendAttempt(ExecutionAttempt{ID: "c", TaskID: "t1", Strategy: StrategyReasoning})
	chain := s.AttemptsForTask("t1")
	if len(chain) != 2 || chain[0].ID != "a" || chain[1].ID != "c" {
		t.Fatalf("unexpected chain %#v", chain)
	}
}

func TestSession_Permissions(t *testing.T) {
	s := NewSession("s4")
	if !s.CapabilityAllowed("currency_convert") {
		t.Fatalf("capabilities should default to allowed")
	}
	s.SetPermission("currency_convert", false)
	if s.CapabilityAllowed("currency_convert") {
		t.Fatalf("expected explicit deny to block")
	}
	s.SetPermission("currency_convert", true)
	if !s.CapabilityAllowed("currency_convert") {
		t.Fatalf("expected re-allow to unblock")
	}
}

func TestSession_ConcurrentAccess(t *testing.T) {
	s := NewSession("s5")
	wg := sync.WaitGroup{}
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.SetVariable(string(rune('A'+(i%5))), "v")
			s.AppendAttempt(ExecutionAttempt{ID: NewID(), TaskID: "t", Strategy: StrategyReasoning})
			_ = s.Attempts()
			_, _ = s.GetVariable("A")
		}(i)
	}
	wg.Wait()
	if len(s.Attempts()) != 25 {
		t.Fatalf("expected 25 attempts, got %d", len(s.Attempts()))
	}
}

func TestSession_Clone(t *testing.T) {
	s := NewSession("s6")
	s.SetVariable("k", "v")
	s.SetPermission("c", false)
	s.AppendAttempt(ExecutionAttempt{ID: "a", TaskID: "t"})
	clone := s.Clone()
	clone.SetVariable("k", "changed")
	clone.AppendAttempt(ExecutionAttempt{ID: "b", TaskID: "t"})
	if v, _ := s.GetVariable("k"); v != "v" {
		t.Fatalf("clone mutation leaked into original: %q", v)
	}
	if len(s.Attempts()) != 1 {
		t.Fatalf("clone append leaked into original")
	}
}
