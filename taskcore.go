// Package taskcore provides a high-level façade over the execution
// orchestration core: the router, orchestrator and the session-scoped
// services (shared execution contexts, working memory, context windows).
// Most applications interact with this package by:
//  1. Creating a Core via New() (optionally overriding collaborators,
//     stores and configuration)
//  2. Registering capabilities with the registry
//  3. Running tasks per session (Run) or across sessions (RunAll)
//
// All defaults are safe for local development and testing; production
// deployments supply a real sandbox runner, a model-backed reasoning service
// and a structured logger.
package taskcore

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"taskcore/artifact"
	"taskcore/config"
	"taskcore/core"
	"taskcore/logging"
	"taskcore/memory"
	"taskcore/orchestrator"
	"taskcore/reasoning"
	"taskcore/registry"
	"taskcore/router"
	"taskcore/sandbox"
	"taskcore/session"
)

// Options configures the Core instance.
type Options struct {
	// Config supplies thresholds, budgets and policy values. Nil uses
	// config.Default().
	Config *config.Config

	// Collaborators (default to in-memory mocks if not provided).
	Registry registry.Registry
	Sandbox  sandbox.Runner
	Reasoner reasoning.Service

	// Stores (default to in-memory implementations if not provided).
	Sessions  core.SessionStore
	Artifacts core.ArtifactStore

	// GenerateCode overrides sandbox input generation.
	GenerateCode orchestrator.CodeGenerator

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Core is the high-level façade aggregating the shared router and the
// orchestrator. The router is the only component shared across sessions and
// carries no per-call state; everything else is session-scoped.
type Core struct {
	opts Options
	rt   *router.Router
	orch *orchestrator.Orchestrator
}

// New creates a Core with optional overrides. Any unset service is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *Core {
	opts := Options{
		Config:    config.Default(),
		Registry:  registry.NewInMemory(),
		Sandbox:   sandbox.NewMock(),
		Reasoner:  reasoning.NewMock(),
		Sessions:  session.NewInMemoryStore(),
		Artifacts: artifact.NewInMemoryStore(),
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	cfg := opts.Config

	rt := router.New(func(ro *router.Options) {
		ro.CapabilityThreshold = cfg.Router.CapabilityThreshold
		ro.ExtraKeywords = cfg.Router.Keywords
		ro.ExtraPatterns = cfg.Router.Patterns
	})

	mem := memory.NewStore(func(mo *memory.Options) {
		mo.ActionsPerFinding = cfg.Memory.ActionsPerFinding
		mo.StrikeLimit = cfg.Memory.StrikeLimit
		mo.Artifacts = opts.Artifacts
		mo.Logger = opts.Logger
	})

	orch := orchestrator.New(rt, func(oo *orchestrator.Options) {
		oo.Registry = opts.Registry
		oo.Sandbox = opts.Sandbox
		oo.Reasoner = opts.Reasoner
		oo.Sessions = opts.Sessions
		oo.Memory = mem
		oo.Budgets = cfg.Budgets
		oo.WindowBudget = cfg.Window.TokenBudget
		oo.PinnedFailures = cfg.Window.PinnedFailures
		if opts.GenerateCode != nil {
			oo.GenerateCode = opts.GenerateCode
		}
		oo.Logger = opts.Logger
	})

	return &Core{opts: opts, rt: rt, orch: orch}
}

// Router exposes the shared execution router.
func (c *Core) Router() *router.Router { return c.rt }

// Orchestrator exposes the underlying orchestrator.
func (c *Core) Orchestrator() *orchestrator.Orchestrator { return c.orch }

// Memory exposes the working memory store.
func (c *Core) Memory() *memory.Store { return c.orch.Memory() }

// Sessions exposes the session store.
func (c *Core) Sessions() core.SessionStore { return c.orch.Sessions() }

// Run submits a task description to a session and blocks until the task
// completes or fails terminally.
func (c *Core) Run(ctx context.Context, sessionID, taskText string) (core.Result, error) {
	return c.orch.Run(ctx, sessionID, core.NewTask(taskText))
}

// RunTask submits a pre-built task (for producers supplying hints).
func (c *Core) RunTask(ctx context.Context, sessionID string, task core.Task) (core.Result, error) {
	return c.orch.Run(ctx, sessionID, task)
}

// Cancel aborts an in-flight task by id.
func (c *Core) Cancel(taskID string) error { return c.orch.Cancel(taskID) }

// RunAll executes one task per session concurrently. Sessions share no
// mutable state, so cross-session parallelism is safe; within each session
// execution stays sequential. It returns the per-session results collected
// so far plus the first error encountered, if any.
func (c *Core) RunAll(ctx context.Context, tasks map[string]core.Task) (map[string]core.Result, error) {
	g, ctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	results := make(map[string]core.Result, len(tasks))

	for sessionID, task := range tasks {
		g.Go(func() error {
			res, err := c.orch.Run(ctx, sessionID, task)
			if err != nil {
				return err
			}
			mu.Lock()
			results[sessionID] = res
			mu.Unlock()
			return nil
		})
	}
	return results, g.Wait()
}
