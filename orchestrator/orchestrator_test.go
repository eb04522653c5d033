package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskcore/config"
	"taskcore/core"
	"taskcore/reasoning"
	"taskcore/registry"
	"taskcore/router"
	"taskcore/sandbox"
	"taskcore/session"
	"taskcore/window"
)

func currencyCapability(t *testing.T, handler func(ctx context.Context, taskText string) (string, error)) registry.Registry {
	t.Helper()
	reg := registry.NewInMemory()
	require.NoError(t, reg.Register(registry.Capability{
		ID:      "currency_convert",
		Matcher: registry.SubstringMatcher("usd to eur", 0.93),
		Handler: handler,
	}))
	return reg
}

func TestRun_CapabilitySuccessRecordsEverything(t *testing.T) {
	reg := currencyCapability(t, func(ctx context.Context, taskText string) (string, error) {
		return "  9.21 EUR\n", nil
	})
	o := New(router.New(), func(opts *Options) { opts.Registry = reg })

	task := core.NewTask("convert 10 USD to EUR")
	res, err := o.Run(context.Background(), "s1", task)
	require.NoError(t, err)
	assert.Equal(t, core.StrategyCapability, res.StrategyUsed)
	assert.Equal(t, "9.21 EUR", res.Output, "collaborator output is normalized")
	require.Len(t, res.Chain, 1)
	assert.Equal(t, core.OutcomeSuccess, res.Chain[0].Outcome)

	sess, err := o.Sessions().Get("s1")
	require.NoError(t, err)
	v, ok := sess.GetVariable(task.VariableKey())
	require.True(t, ok, "result must land in the shared variable space")
	assert.Equal(t, "9.21 EUR", v)
	require.Len(t, sess.Attempts(), 1)
	assert.Equal(t, task.ID, sess.Attempts()[0].TaskID)
}

func TestRun_TimeoutFallsBackToGeneratedCode(t *testing.T) {
	reg := currencyCapability(t, func(ctx context.Context, taskText string) (string, error) {
		time.Sleep(200 * time.Millisecond) // ignores ctx on purpose
		return "too late", nil
	})
	o := New(router.New(), func(opts *Options) {
		opts.Registry = reg
		opts.Budgets = config.Budgets{Capability: 20 * time.Millisecond}
	})

	task := core.NewTask("parse and convert 10 usd to eur")
	res, err := o.Run(context.Background(), "s1", task)
	require.NoError(t, err)
	assert.Equal(t, core.StrategyGeneratedCode, res.StrategyUsed)
	assert.Equal(t, "mock execution of: parse and convert 10 usd to eur", res.Output)

	require.Len(t, res.Chain, 2)
	assert.Equal(t, core.OutcomeFailure, res.Chain[0].Outcome)
	assert.Equal(t, core.FailureTimeout, res.Chain[0].FailureClass)
	assert.Equal(t, core.OutcomeSuccess, res.Chain[1].Outcome)
	assert.True(t, res.Chain.Valid(), "fallback must follow the global strategy ordering")

	progress, err := o.Memory().Progress("s1")
	require.NoError(t, err)
	assert.Contains(t, progress, "failure [timeout]")
	assert.Equal(t, 1, o.Memory().Strikes("s1", core.FailureTimeout))
}

func TestRun_PermissionDeniedFallsBack(t *testing.T) {
	reg := currencyCapability(t, func(ctx context.Context, taskText string) (string, error) {
		return "9.21 EUR", nil
	})
	sessions := session.NewInMemoryStore()
	require.NoError(t, sessions.SetPermission("s1", "currency_convert", false))
	o := New(router.New(), func(opts *Options) {
		opts.Registry = reg
		opts.Sessions = sessions
	})

	res, err := o.Run(context.Background(), "s1", core.NewTask("parse 10 usd to eur"))
	require.NoError(t, err)
	assert.Equal(t, core.StrategyGeneratedCode, res.StrategyUsed)
	require.Len(t, res.Chain, 2)
	assert.Equal(t, core.FailurePermissionDenied, res.Chain[0].FailureClass)
}

func TestRun_AllStrategiesExhausted(t *testing.T) {
	reg := currencyCapability(t, func(ctx context.Context, taskText string) (string, error) {
		time.Sleep(200 * time.Millisecond)
		return "", nil
	})
	task := core.NewTask("parse 10 usd to eur")
	box := sandbox.NewMock()
	box.AddExecution(task.Text, sandbox.Execution{ExitCode: 2, Stderr: "syntax error"})
	reasoner := reasoning.NewMock()
	reasoner.AddError(task.Text, &core.ClassifiedError{Class: "network_unreachable", Err: errors.New("no route to host")})

	o := New(router.New(), func(opts *Options) {
		opts.Registry = reg
		opts.Sandbox = box
		opts.Reasoner = reasoner
		opts.Budgets = config.Budgets{Capability: 20 * time.Millisecond}
	})

	_, err := o.Run(context.Background(), "s1", task)
	require.ErrorIs(t, err, core.ErrStrategiesExhausted)

	var terr *core.TaskError
	require.ErrorAs(t, err, &terr)
	require.Len(t, terr.Chain, 3)
	assert.True(t, terr.Chain.Valid())
	assert.Equal(t, core.FailureTimeout, terr.Chain[0].FailureClass)
	assert.Equal(t, core.FailureExecution, terr.Chain[1].FailureClass)
	assert.Equal(t, core.FailureClass("network_unreachable"), terr.Chain[2].FailureClass)
}

func TestRun_ThreeStrikeEscalation(t *testing.T) {
	reasoner := reasoning.NewMock()
	const taskText = "call the flaky backend please"
	reasoner.AddError(taskText, &core.ClassifiedError{Class: "network_unreachable", Err: errors.New("no route to host")})
	o := New(router.New(), func(opts *Options) { opts.Reasoner = reasoner })

	// First two occurrences fail terminally but do not escalate.
	for i := 0; i < 2; i++ {
		_, err := o.Run(context.Background(), "s1", core.NewTask(taskText))
		require.ErrorIs(t, err, core.ErrStrategiesExhausted)
	}

	_, err := o.Run(context.Background(), "s1", core.NewTask(taskText))
	var esc *core.EscalationError
	require.ErrorAs(t, err, &esc, "third failure of a class escalates instead of silently retrying")
	assert.Equal(t, core.FailureClass("network_unreachable"), esc.Class)
	assert.Equal(t, 3, esc.Count)
	assert.True(t, o.Memory().Halted("s1", "network_unreachable"))
}

func TestRun_TwoActionRuleForcesFinding(t *testing.T) {
	o := New(router.New())
	for i := 0; i < 3; i++ {
		_, err := o.Run(context.Background(), "s1", core.NewTask("look something up"))
		require.NoError(t, err)
	}

	findings, err := o.Memory().Findings("s1")
	require.NoError(t, err)
	assert.NotEmpty(t, findings, "third qualifying attempt must externalize a finding before it starts")
}

func TestRun_SharedVariablesAcrossTasks(t *testing.T) {
	o := New(router.New())
	t1 := core.NewTask("first question")
	t2 := core.NewTask("second question")

	_, err := o.Run(context.Background(), "s1", t1)
	require.NoError(t, err)
	_, err = o.Run(context.Background(), "s1", t2)
	require.NoError(t, err)

	sess, err := o.Sessions().Get("s1")
	require.NoError(t, err)
	_, ok := sess.GetVariable(t1.VariableKey())
	assert.True(t, ok)
	_, ok = sess.GetVariable(t2.VariableKey())
	assert.True(t, ok)
	require.Len(t, sess.Attempts(), 2)
	assert.Equal(t, t1.ID, sess.Attempts()[0].TaskID)
	assert.Equal(t, t2.ID, sess.Attempts()[1].TaskID)
}

type blockingService struct {
	started chan struct{}
}

func (b *blockingService) Generate(ctx context.Context, taskText, contextWindow string) (string, error) {
	close(b.started)
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRun_CancelInterruptsInFlightTask(t *testing.T) {
	svc := &blockingService{started: make(chan struct{})}
	o := New(router.New(), func(opts *Options) { opts.Reasoner = svc })
	task := core.NewTask("an open ended question")

	errCh := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), "s1", task)
		errCh <- err
	}()

	<-svc.started
	require.NoError(t, o.Cancel(task.ID))

	err := <-errCh
	require.ErrorIs(t, err, core.ErrCancelled)

	sess, _ := o.Sessions().Get("s1")
	require.Len(t, sess.Attempts(), 1)
	assert.Equal(t, core.OutcomeCancelled, sess.Attempts()[0].Outcome)

	// Working memory stays untouched: cancellation is not a failure.
	progress, _ := o.Memory().Progress("s1")
	assert.Empty(t, progress)
	assert.Equal(t, 0, o.Memory().Strikes("s1", core.FailureTimeout))
}

func TestCancel_UnknownTask(t *testing.T) {
	o := New(router.New())
	assert.Error(t, o.Cancel("nope"))
}

func TestRun_CompactionRecitesPlan(t *testing.T) {
	reasoner := reasoning.NewMock()
	const taskText = "summarize the saga"
	reasoner.AddResponse(taskText, strings.Repeat("r", 800))

	o := New(router.New(), func(opts *Options) {
		opts.Reasoner = reasoner
		opts.WindowBudget = 100
	})
	require.NoError(t, o.Memory().SetPlan("s1", "1. keep calm\n"))

	_, err := o.Run(context.Background(), "s1", core.NewTask(taskText))
	require.NoError(t, err)

	win := o.Window("s1")
	assert.LessOrEqual(t, win.TokenEstimate(), 100)
	segs := win.Segments()
	require.NotEmpty(t, segs)
	assert.Equal(t, window.KindPlan, segs[len(segs)-1].Kind, "compaction recites the plan at the end of the window")
}

func TestWindow_SamePerSession(t *testing.T) {
	o := New(router.New())
	assert.Same(t, o.Window("a"), o.Window("a"))
	assert.NotSame(t, o.Window("a"), o.Window("b"))
}
