// Package orchestrator drives one task at a time to completion: it consults
// the execution router, invokes the chosen collaborator under its latency
// budget, records every attempt into the shared execution context, and walks
// the fallback chain when a strategy fails. Execution within a session is
// strictly sequential; the collaborator invocation is the only suspension
// point. The orchestrator also enforces the working memory policies (2-Action
// Rule, 3-Strike Protocol) and triggers context compaction.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"taskcore/config"
	"taskcore/core"
	"taskcore/logging"
	"taskcore/memory"
	"taskcore/reasoning"
	"taskcore/registry"
	"taskcore/router"
	"taskcore/sandbox"
	"taskcore/session"
	"taskcore/window"
)

// CodeGenerator produces the code handed to the sandboxed runner for a
// generated-code attempt. The default hands the task text itself to the
// runner as the program specification; real deployments plug a model-backed
// generator.
type CodeGenerator func(ctx context.Context, task core.Task, contextWindow string) (string, error)

// FindingFunc synthesizes the findings entry recorded when the 2-Action Rule
// gate trips mid-task. It receives the fallback chain so far.
type FindingFunc func(task core.Task, chain core.FallbackChain) string

// Options holds dependency and configuration overrides passed to New().
type Options struct {
	// Registry resolves and invokes capabilities.
	Registry registry.Registry
	// Sandbox executes generated code.
	Sandbox sandbox.Runner
	// Reasoner is the language reasoning service.
	Reasoner reasoning.Service
	// Sessions persists shared execution contexts.
	Sessions core.SessionStore
	// Memory is the working memory store.
	Memory *memory.Store
	// Budgets overrides per-strategy latency budgets; zero fields fall back
	// to the strategy's declared budget.
	Budgets config.Budgets
	// WindowBudget is the token budget that triggers compaction after an
	// attempt. Zero disables compaction.
	WindowBudget int
	// PinnedFailures configures window pinning.
	PinnedFailures int
	// GenerateCode produces sandbox input.
	GenerateCode CodeGenerator
	// Finding synthesizes forced externalization entries.
	Finding FindingFunc
	// Qualifies reports whether an attempt of the strategy counts as a
	// qualifying information-gathering attempt under the 2-Action Rule.
	// Default: every strategy qualifies.
	Qualifies func(core.Strategy) bool
	// Logger for orchestration events.
	Logger logging.Logger
}

// Orchestrator coordinates task execution for any number of sessions. The
// router it holds is stateless and shared; everything session-scoped
// (sessions, working memory, context windows) is keyed by session identifier.
// Public methods are safe for concurrent use.
type Orchestrator struct {
	router   *router.Router
	registry registry.Registry
	sandbox  sandbox.Runner
	reasoner reasoning.Service
	sessions core.SessionStore
	memory   *memory.Store

	budgets        config.Budgets
	windowBudget   int
	pinnedFailures int
	generateCode   CodeGenerator
	finding        FindingFunc
	qualifies      func(core.Strategy) bool
	logger         logging.Logger

	windows    map[string]*window.Window
	activeRuns map[string]context.CancelFunc
	mu         sync.Mutex
}

// New constructs an Orchestrator around a shared router with optional
// overrides. Unset collaborators default to in-memory mocks so local setups
// work out of the box.
func New(r *router.Router, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Registry:     registry.NewInMemory(),
		Sandbox:      sandbox.NewMock(),
		Reasoner:     reasoning.NewMock(),
		Sessions:     session.NewInMemoryStore(),
		Memory:       memory.NewStore(),
		WindowBudget: 8192,

		PinnedFailures: 5,
		GenerateCode: func(_ context.Context, task core.Task, _ string) (string, error) {
			return task.Text, nil
		},
		Finding:   defaultFinding,
		Qualifies: func(core.Strategy) bool { return true },
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Orchestrator{
		router:         r,
		registry:       opts.Registry,
		sandbox:        opts.Sandbox,
		reasoner:       opts.Reasoner,
		sessions:       opts.Sessions,
		memory:         opts.Memory,
		budgets:        opts.Budgets,
		windowBudget:   opts.WindowBudget,
		pinnedFailures: opts.PinnedFailures,
		generateCode:   opts.GenerateCode,
		finding:        opts.Finding,
		qualifies:      opts.Qualifies,
		logger:         opts.Logger,
		windows:        make(map[string]*window.Window),
		activeRuns:     make(map[string]context.CancelFunc),
	}
}

// Memory exposes the working memory store (for producers inspecting plan,
// findings and progress artifacts).
func (o *Orchestrator) Memory() *memory.Store { return o.memory }

// Sessions exposes the session store.
func (o *Orchestrator) Sessions() core.SessionStore { return o.sessions }

// Window returns the session's context window, creating it lazily.
func (o *Orchestrator) Window(sessionID string) *window.Window {
	o.mu.Lock()
	defer o.mu.Unlock()
	w, ok := o.windows[sessionID]
	if !ok {
		w = window.New(func(wo *window.Options) {
			wo.PinnedFailures = o.pinnedFailures
			wo.Logger = o.logger
		})
		o.windows[sessionID] = w
	}
	return w
}

// Cancel aborts an in-flight task by id. The in-flight collaborator
// invocation is interrupted, a cancelled attempt is recorded, and working
// memory is left as-is.
func (o *Orchestrator) Cancel(taskID string) error {
	o.mu.Lock()
	cancel, exists := o.activeRuns[taskID]
	o.mu.Unlock()
	if !exists {
		return fmt.Errorf("task %s not running", taskID)
	}
	cancel()
	return nil
}

// Run drives one task to completion within a session and returns the result
// or a terminal error carrying the full fallback chain. Tasks within one
// session must be run sequentially; Run does not start the next attempt
// before the previous one has been recorded.
func (o *Orchestrator) Run(ctx context.Context, sessionID string, task core.Task) (core.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	o.activeRuns[task.ID] = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.activeRuns, task.ID)
		o.mu.Unlock()
	}()

	if _, err := o.sessions.Get(sessionID); err != nil {
		return core.Result{}, fmt.Errorf("failed to get session: %w", err)
	}

	win := o.Window(sessionID)
	win.Append(window.KindUser, task.Text)

	// One registry snapshot per task keeps routing decisions consistent
	// across the whole fallback chain.
	snapshot := o.registry.Snapshot()

	var chain core.FallbackChain
	var tried []core.Strategy

	for {
		if err := ctx.Err(); err != nil {
			return core.Result{}, o.terminal(task, chain, core.FailureNone, "task cancelled by producer", core.ErrCancelled)
		}

		decision := o.router.Decide(task, snapshot, tried...)
		o.logger.Debug("routing decision session_id=%s task_id=%s strategy=%s confidence=%.2f", sessionID, task.ID, decision.Strategy, decision.Confidence)

		if o.qualifies(decision.Strategy) {
			if err := o.gateQualifying(sessionID, task, chain); err != nil {
				return core.Result{}, o.terminal(task, chain, core.FailureNone, "working memory gate failed", err)
			}
		}

		start := time.Now()
		output, err := o.invoke(ctx, sessionID, decision, task)
		end := time.Now()

		attempt := core.ExecutionAttempt{
			ID:       core.NewID(),
			TaskID:   task.ID,
			Strategy: decision.Strategy,
			Start:    start,
			End:      end,
			Decision: decision,
		}

		if err == nil {
			attempt.Outcome = core.OutcomeSuccess
			// Recording is part of completing the attempt: variable space
			// and history are written before control returns.
			if serr := o.sessions.SetVariable(sessionID, task.VariableKey(), output); serr != nil {
				return core.Result{}, fmt.Errorf("failed to store result variable: %w", serr)
			}
			if serr := o.sessions.AppendAttempt(sessionID, attempt); serr != nil {
				return core.Result{}, fmt.Errorf("failed to append attempt: %w", serr)
			}
			chain = append(chain, attempt)
			_ = o.memory.RecordProgress(sessionID, memory.ProgressEntry{
				Kind: "info",
				Text: fmt.Sprintf("task %s completed via %s", task.ID, decision.Strategy),
			})
			win.Append(window.KindAssistant, output)
			o.maybeCompact(sessionID, win)
			o.logger.Info("task completed session_id=%s task_id=%s strategy=%s duration=%s", sessionID, task.ID, decision.Strategy, end.Sub(start))
			return core.Result{TaskID: task.ID, StrategyUsed: decision.Strategy, Output: output, Chain: chain}, nil
		}

		// Producer cancellation: record a cancelled attempt (not a
		// failure), leave working memory untouched.
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			attempt.Outcome = core.OutcomeCancelled
			if serr := o.sessions.AppendAttempt(sessionID, attempt); serr != nil {
				o.logger.Error("failed to record cancelled attempt: %v", serr)
			}
			chain = append(chain, attempt)
			return core.Result{}, o.terminal(task, chain, core.FailureNone, "task cancelled by producer", core.ErrCancelled)
		}

		class := core.Classify(err)
		attempt.Outcome = core.OutcomeFailure
		attempt.FailureClass = class
		if serr := o.sessions.AppendAttempt(sessionID, attempt); serr != nil {
			return core.Result{}, fmt.Errorf("failed to append attempt: %w", serr)
		}
		chain = append(chain, attempt)
		o.logger.Warn("attempt failed session_id=%s task_id=%s strategy=%s class=%s err=%v", sessionID, task.ID, decision.Strategy, class, err)

		// Failures are durably recorded in progress before any propagation.
		count, halted, merr := o.memory.RecordFailure(sessionID, class, fmt.Sprintf("task %s strategy %s: %v", task.ID, decision.Strategy, err))
		if merr != nil {
			o.logger.Error("failed to record failure in progress: %v", merr)
		}
		win.Append(window.KindFailure, fmt.Sprintf("failure [%s] strategy %s: %v", class, decision.Strategy, err))
		o.maybeCompact(sessionID, win)

		if halted {
			esc := &core.EscalationError{Class: class, Count: count, Chain: chain}
			return core.Result{}, o.terminal(task, chain, class, esc.Error(), esc)
		}

		tried = append(tried, decision.Strategy)
		if len(tried) >= len(core.StrategyOrder) || decision.Strategy == core.StrategyOrder[len(core.StrategyOrder)-1] {
			return core.Result{}, o.terminal(task, chain, class, "all execution strategies exhausted", core.ErrStrategiesExhausted)
		}
	}
}

// gateQualifying enforces the 2-Action Rule before a qualifying attempt may
// start. When the gate trips, the orchestrator externalizes a finding on the
// session's behalf and retries; execution stays sequential, so the blocked
// attempt simply starts after the finding is recorded.
func (o *Orchestrator) gateQualifying(sessionID string, task core.Task, chain core.FallbackChain) error {
	for {
		err := o.memory.BeginQualifying(sessionID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, memory.ErrExternalizationDue) {
			return err
		}
		if ferr := o.memory.RecordFinding(sessionID, o.finding(task, chain)); ferr != nil {
			return ferr
		}
	}
}

// invoke dispatches to the collaborator selected by the decision, bounded by
// the strategy's latency budget, and returns the normalized output.
func (o *Orchestrator) invoke(ctx context.Context, sessionID string, decision core.RoutingDecision, task core.Task) (string, error) {
	budget := o.budgetFor(decision.Strategy)
	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	switch decision.Strategy {
	case core.StrategyCapability:
		sess, err := o.sessions.Get(sessionID)
		if err != nil {
			return "", err
		}
		if !sess.CapabilityAllowed(decision.CapabilityID) {
			return "", &core.ClassifiedError{
				Class: core.FailurePermissionDenied,
				Err:   fmt.Errorf("capability %s denied by session permission table", decision.CapabilityID),
			}
		}
		out, err := invokeBounded(ctx, func(ctx context.Context) (string, error) {
			return o.registry.Invoke(ctx, decision.CapabilityID, task.Text)
		})
		if err != nil {
			return "", err
		}
		return normalize(out), nil

	case core.StrategyGeneratedCode:
		code, err := o.generateCode(ctx, task, o.Window(sessionID).Render())
		if err != nil {
			return "", fmt.Errorf("code generation: %w", err)
		}
		exec, err := invokeBounded(ctx, func(ctx context.Context) (sandbox.Execution, error) {
			return o.sandbox.Execute(ctx, code)
		})
		if err != nil {
			return "", err
		}
		if !exec.Succeeded() {
			return "", &core.ClassifiedError{
				Class: core.FailureExecution,
				Err:   fmt.Errorf("sandbox exited %d: %s", exec.ExitCode, strings.TrimSpace(exec.Stderr)),
			}
		}
		return normalize(exec.Stdout), nil

	case core.StrategyReasoning:
		out, err := invokeBounded(ctx, func(ctx context.Context) (string, error) {
			return o.reasoner.Generate(ctx, task.Text, o.Window(sessionID).Render())
		})
		if err != nil {
			return "", err
		}
		return normalize(out), nil

	default:
		return "", fmt.Errorf("unknown strategy %q", decision.Strategy)
	}
}

// invokeBounded runs the collaborator call in its own goroutine and returns
// as soon as the call finishes or the context expires, so a collaborator that
// ignores cancellation cannot hold the attempt past its budget.
func invokeBounded[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome{val: v, err: err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case out := <-done:
		return out.val, out.err
	}
}

// normalize is the common normalization step applied to every collaborator
// output before it enters the shared variable space, so downstream readers
// never branch on collaborator identity.
func normalize(output string) string {
	return strings.TrimSpace(output)
}

// budgetFor returns the configured latency budget for a strategy, falling
// back to the strategy's declared budget.
func (o *Orchestrator) budgetFor(s core.Strategy) time.Duration {
	switch s {
	case core.StrategyCapability:
		if o.budgets.Capability > 0 {
			return o.budgets.Capability
		}
	case core.StrategyGeneratedCode:
		if o.budgets.GeneratedCode > 0 {
			return o.budgets.GeneratedCode
		}
	case core.StrategyReasoning:
		if o.budgets.Reasoning > 0 {
			return o.budgets.Reasoning
		}
	}
	return s.LatencyBudget()
}

// maybeCompact recites the plan and compacts the session window when the
// token estimate exceeds the budget.
func (o *Orchestrator) maybeCompact(sessionID string, win *window.Window) {
	if o.windowBudget <= 0 || !win.NeedsCompaction(o.windowBudget) {
		return
	}
	if plan, err := o.memory.Plan(sessionID); err == nil && plan != "" {
		win.RecitePlan(plan)
	}
	res, err := win.Compact(o.windowBudget)
	if err != nil {
		o.logger.Error("context compaction failed session_id=%s: %v", sessionID, err)
		return
	}
	o.logger.Debug("context compacted session_id=%s before=%d after=%d", sessionID, res.TokensBefore, res.TokensAfter)
}

// terminal builds the producer-facing terminal error.
func (o *Orchestrator) terminal(task core.Task, chain core.FallbackChain, class core.FailureClass, reason string, err error) error {
	return &core.TaskError{TaskID: task.ID, Reason: reason, Class: class, Chain: chain, Err: err}
}

// defaultFinding summarizes the fallback chain so far into a findings entry.
func defaultFinding(task core.Task, chain core.FallbackChain) string {
	if len(chain) == 0 {
		return fmt.Sprintf("working on task %s: %s", task.ID, task.Text)
	}
	var parts []string
	for _, a := range chain {
		if a.Failed() {
			parts = append(parts, fmt.Sprintf("%s failed (%s)", a.Strategy, a.FailureClass))
		} else {
			parts = append(parts, fmt.Sprintf("%s %s", a.Strategy, a.Outcome))
		}
	}
	return fmt.Sprintf("task %s: %s", task.ID, strings.Join(parts, "; "))
}
