package taskcore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskcore/config"
	"taskcore/core"
	"taskcore/registry"
)

func TestNew_DefaultsWork(t *testing.T) {
	c := New()
	res, err := c.Run(context.Background(), "s1", "what is the capital of France")
	require.NoError(t, err)
	assert.Equal(t, core.StrategyReasoning, res.StrategyUsed)
	assert.Equal(t, "Mock response to: what is the capital of France", res.Output)
}

func TestRun_CapabilityThroughFacade(t *testing.T) {
	reg := registry.NewInMemory()
	require.NoError(t, reg.Register(registry.Capability{
		ID:      "currency_convert",
		Matcher: registry.SubstringMatcher("usd to eur", 0.93),
		Handler: func(ctx context.Context, taskText string) (string, error) { return "9.21 EUR", nil },
	}))
	c := New(func(o *Options) { o.Registry = reg })

	res, err := c.Run(context.Background(), "s1", "convert 10 USD to EUR")
	require.NoError(t, err)
	assert.Equal(t, core.StrategyCapability, res.StrategyUsed)
	assert.Equal(t, "9.21 EUR", res.Output)
}

func TestNew_ConfigThresholdApplied(t *testing.T) {
	reg := registry.NewInMemory()
	require.NoError(t, reg.Register(registry.Capability{
		ID:      "currency_convert",
		Matcher: registry.SubstringMatcher("usd to eur", 0.85),
		Handler: func(ctx context.Context, taskText string) (string, error) { return "9.21 EUR", nil },
	}))
	cfg := config.Default()
	cfg.Router.CapabilityThreshold = 0.9
	c := New(func(o *Options) {
		o.Config = cfg
		o.Registry = reg
	})

	res, err := c.Run(context.Background(), "s1", "convert 10 USD to EUR")
	require.NoError(t, err)
	assert.Equal(t, core.StrategyReasoning, res.StrategyUsed, "a raised threshold pushes sub-threshold matches to reasoning")
}

func TestRunAll_CrossSessionParallelism(t *testing.T) {
	c := New()
	tasks := map[string]core.Task{
		"alpha": core.NewTask("question one"),
		"beta":  core.NewTask("question two"),
		"gamma": core.NewTask("question three"),
	}

	results, err := c.RunAll(context.Background(), tasks)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for sessionID, task := range tasks {
		res, ok := results[sessionID]
		require.True(t, ok, "missing result for session %s", sessionID)
		assert.Equal(t, task.ID, res.TaskID)

		sess, err := c.Sessions().Get(sessionID)
		require.NoError(t, err)
		assert.Len(t, sess.Attempts(), 1, "each session records only its own attempts")
	}
}

func TestRunTask_PreservesCallerTaskID(t *testing.T) {
	c := New()
	task := core.NewTask("a question")
	res, err := c.RunTask(context.Background(), "s1", task)
	require.NoError(t, err)
	assert.Equal(t, task.ID, res.TaskID)

	sess, err := c.Sessions().Get("s1")
	require.NoError(t, err)
	v, ok := sess.GetVariable(task.VariableKey())
	require.True(t, ok)
	assert.NotEmpty(t, v)
}
