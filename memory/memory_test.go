package memory

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskcore/core"
)

func TestTwoActionRule(t *testing.T) {
	store := NewStore()
	const sid = "s1"

	assert.Equal(t, PhaseIdle, store.Phase(sid))
	require.NoError(t, store.BeginQualifying(sid))
	require.NoError(t, store.BeginQualifying(sid))
	assert.Equal(t, PhaseAccumulating, store.Phase(sid))

	// Third qualifying attempt is blocked until a finding is externalized.
	err := store.BeginQualifying(sid)
	require.ErrorIs(t, err, ErrExternalizationDue)
	assert.Equal(t, PhaseExternalizationDue, store.Phase(sid))

	require.NoError(t, store.RecordFinding(sid, "EUR rate endpoint returns JSON"))
	require.NoError(t, store.BeginQualifying(sid))

	findings, err := store.Findings(sid)
	require.NoError(t, err)
	assert.Contains(t, findings, "EUR rate endpoint returns JSON")
	assert.True(t, strings.HasPrefix(findings, "- ["))
}

func TestTwoActionRule_CustomQuota(t *testing.T) {
	store := NewStore(func(o *Options) { o.ActionsPerFinding = 1 })
	require.NoError(t, store.BeginQualifying("s1"))
	assert.ErrorIs(t, store.BeginQualifying("s1"), ErrExternalizationDue)
}

func TestTwoActionRule_SessionsIndependent(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.BeginQualifying("a"))
	require.NoError(t, store.BeginQualifying("a"))
	require.ErrorIs(t, store.BeginQualifying("a"), ErrExternalizationDue)

	// A blocked session must not bleed into another one.
	require.NoError(t, store.BeginQualifying("b"))
}

func TestThreeStrikeProtocol(t *testing.T) {
	store := NewStore()
	const sid = "s1"
	class := core.FailureClass("network_unreachable")

	count, halted, err := store.RecordFailure(sid, class, "no route to host")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.False(t, halted)

	count, halted, _ = store.RecordFailure(sid, class, "no route to host")
	assert.Equal(t, 2, count)
	assert.False(t, halted)
	assert.False(t, store.Halted(sid, class))

	count, halted, _ = store.RecordFailure(sid, class, "no route to host")
	assert.Equal(t, 3, count)
	assert.True(t, halted, "third occurrence of a class halts automatic retry")
	assert.True(t, store.Halted(sid, class))
	assert.Equal(t, 3, store.Strikes(sid, class))

	// Other classes keep their own counters.
	assert.Equal(t, 0, store.Strikes(sid, core.FailureTimeout))
	_, halted, _ = store.RecordFailure(sid, core.FailureTimeout, "deadline exceeded")
	assert.False(t, halted)

	progress, err := store.Progress(sid)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(progress, "failure [network_unreachable]"))
}

func TestProgressLog_AppendOnlyChronology(t *testing.T) {
	store := NewStore()
	const sid = "s1"
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordProgress(sid, ProgressEntry{Time: base, Text: "routed to capability"}))
	require.NoError(t, store.RecordProgress(sid, ProgressEntry{Time: base.Add(time.Second), Kind: "failure", FailureClass: core.FailureTimeout, Text: "capability timed out"}))
	require.NoError(t, store.RecordProgress(sid, ProgressEntry{Time: base.Add(2 * time.Second), Text: "fell back to generated code"}))

	progress, err := store.Progress(sid)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(progress, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "routed to capability")
	assert.Contains(t, lines[1], "failure [timeout] capability timed out")
	assert.Contains(t, lines[2], "fell back to generated code")
}

func TestPlanArtifact(t *testing.T) {
	store := NewStore()
	const sid = "s1"

	plan, err := store.Plan(sid)
	require.NoError(t, err)
	assert.Empty(t, plan, "unset plan reads as empty")

	require.NoError(t, store.SetPlan(sid, "1. fetch rates\n"))
	require.NoError(t, store.AppendPlan(sid, "2. convert\n"))
	plan, err = store.Plan(sid)
	require.NoError(t, err)
	assert.Equal(t, "1. fetch rates\n2. convert\n", plan)

	// SetPlan rewrites: explicit re-planning.
	require.NoError(t, store.SetPlan(sid, "new plan\n"))
	plan, _ = store.Plan(sid)
	assert.Equal(t, "new plan\n", plan)
}
