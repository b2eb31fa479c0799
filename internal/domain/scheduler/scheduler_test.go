package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/deestage/internal/domain/failure"
	"github.com/YoshitsuguKoike/deestage/internal/domain/session"
	"github.com/YoshitsuguKoike/deestage/internal/workflow"
)

var t0 = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T, workflowType string, bases ...string) (*session.State, workflow.WorkflowTemplate, *workflow.Registry) {
	t.Helper()
	reg, err := workflow.LoadDefault()
	require.NoError(t, err)
	tpl, err := reg.WorkflowTemplate(workflowType)
	require.NoError(t, err)
	if len(bases) == 0 {
		bases = tpl.Stages
	}
	return session.NewState("s1", workflowType, bases, reg.KindOf, session.InitOptions{}, t0), tpl, reg
}

func key(t *testing.T, s string) session.StageKey {
	t.Helper()
	k, err := session.ParseStageKey(s)
	require.NoError(t, err)
	return k
}

func TestAdvanceOnCompletion(t *testing.T) {
	st, _, _ := setup(t, "quick")

	require.NoError(t, Activate(st, key(t, "DEV"), "developer", t0))
	assert.Equal(t, []string{"developer"}, st.ActiveExecutors)
	assert.Equal(t, "REVIEW", st.CurrentStage.String(), "active DEV is no longer pending")

	require.NoError(t, AdvanceOnCompletion(st, key(t, "DEV"), session.ResultPass, t0.Add(time.Minute)))
	dev := st.Stage(key(t, "DEV"))
	assert.Equal(t, session.StatusCompleted, dev.Status)
	assert.Equal(t, session.ResultPass, dev.Result)
	assert.Equal(t, t0.Add(time.Minute), *dev.CompletedAt)
	assert.Empty(t, st.ActiveExecutors)
	assert.Equal(t, "REVIEW", st.CurrentStage.String())

	err := AdvanceOnCompletion(st, key(t, "DEV"), session.ResultPass, t0)
	assert.True(t, failure.IsProgramming(err), "completed is terminal")

	err = AdvanceOnCompletion(st, key(t, "QA"), session.ResultPass, t0)
	assert.True(t, failure.IsProgramming(err))
}

func TestCurrentStageBecomesNilWhenAllCompleted(t *testing.T) {
	st, _, _ := setup(t, "quick")
	for _, k := range []string{"DEV", "REVIEW", "TEST", "RETRO"} {
		require.NoError(t, AdvanceOnCompletion(st, key(t, k), session.ResultPass, t0))
		if st.CurrentStage != nil {
			rt := st.Stage(*st.CurrentStage)
			require.NotNil(t, rt)
			assert.Equal(t, session.StatusPending, rt.Status)
		}
	}
	assert.Nil(t, st.CurrentStage)
	assert.True(t, st.AllCompleted())
}

func TestActivateAndRetry(t *testing.T) {
	st, _, _ := setup(t, "quick")
	k := key(t, "TEST")

	require.NoError(t, Activate(st, k, "tester", t0))
	require.NoError(t, Activate(st, k, "tester", t0), "re-activation is a no-op")
	assert.Equal(t, []string{"tester"}, st.ActiveExecutors)

	st.Stage(k).Result = session.ResultFail
	require.NoError(t, Retry(st, k, t0))
	assert.Equal(t, session.StatusActive, st.Stage(k).Status)
	assert.Equal(t, session.ResultNone, st.Stage(k).Result)
	assert.Len(t, st.Stages, 4, "retry never clones a key")

	require.NoError(t, Retry(st, key(t, "REVIEW"), t0), "retrying a pending stage activates it")
	assert.Equal(t, session.StatusActive, st.Stage(key(t, "REVIEW")).Status)

	require.NoError(t, AdvanceOnCompletion(st, k, session.ResultPass, t0))
	assert.True(t, failure.IsProgramming(Retry(st, k, t0)))
	assert.True(t, failure.IsProgramming(Activate(st, k, "tester", t0)))
}

func TestFindActiveOrNextPendingKey(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(st *session.State)
		base   string
		want   string
		wantOK bool
	}{
		{
			name:   "pending unsuffixed first",
			base:   "TEST",
			want:   "TEST",
			wantOK: true,
		},
		{
			name: "active suffixed beats pending",
			setup: func(st *session.State) {
				st.Stage(session.StageKey{Base: "TEST", Occurrence: 1}).Status = session.StatusCompleted
				st.Stage(session.StageKey{Base: "TEST", Occurrence: 2}).Status = session.StatusActive
			},
			base:   "TEST",
			want:   "TEST:2",
			wantOK: true,
		},
		{
			name: "active unsuffixed beats active suffixed",
			setup: func(st *session.State) {
				st.Stage(session.StageKey{Base: "TEST", Occurrence: 1}).Status = session.StatusActive
				st.Stage(session.StageKey{Base: "TEST", Occurrence: 2}).Status = session.StatusActive
			},
			base:   "TEST",
			want:   "TEST",
			wantOK: true,
		},
		{
			name: "completed first occurrence falls through to pending second",
			setup: func(st *session.State) {
				st.Stage(session.StageKey{Base: "TEST", Occurrence: 1}).Status = session.StatusCompleted
			},
			base:   "TEST",
			want:   "TEST:2",
			wantOK: true,
		},
		{
			name: "all completed is unrecognized",
			setup: func(st *session.State) {
				st.Stage(session.StageKey{Base: "QA", Occurrence: 1}).Status = session.StatusCompleted
			},
			base: "QA",
		},
		{
			name: "unknown base is unrecognized",
			base: "E2E",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, _, _ := setup(t, "standard")
			if tt.setup != nil {
				tt.setup(st)
			}
			got, ok := FindActiveOrNextPendingKey(st, tt.base)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got.String())
			}
		})
	}
}

func TestConvergenceReportedOnce(t *testing.T) {
	st, tpl, reg := setup(t, "quick")
	require.NoError(t, AdvanceOnCompletion(st, key(t, "DEV"), session.ResultPass, t0))

	require.NoError(t, AdvanceOnCompletion(st, key(t, "REVIEW"), session.ResultPass, t0.Add(1*time.Minute)))
	_, ok := DetectParallelConvergence(st, tpl, reg, key(t, "REVIEW"))
	assert.False(t, ok, "TEST still pending")

	require.NoError(t, AdvanceOnCompletion(st, key(t, "TEST"), session.ResultPass, t0.Add(2*time.Minute)))
	conv, ok := DetectParallelConvergence(st, tpl, reg, key(t, "TEST"))
	require.True(t, ok)
	assert.Equal(t, "post-dev", conv.Group)
	assert.Equal(t, []session.StageKey{key(t, "REVIEW"), key(t, "TEST")}, conv.Keys)

	require.NoError(t, AdvanceOnCompletion(st, key(t, "RETRO"), session.ResultPass, t0.Add(3*time.Minute)))
	_, ok = DetectParallelConvergence(st, tpl, reg, key(t, "RETRO"))
	assert.False(t, ok, "unrelated completion must not re-report")

	_, ok = DetectParallelConvergence(st, tpl, reg, key(t, "REVIEW"))
	assert.False(t, ok, "REVIEW was not the last member to complete")
}

func TestConvergenceNeedsTwoMembers(t *testing.T) {
	st, tpl, reg := setup(t, "quick", "DEV", "REVIEW", "RETRO")
	require.NoError(t, AdvanceOnCompletion(st, key(t, "REVIEW"), session.ResultPass, t0))

	_, ok := DetectParallelConvergence(st, tpl, reg, key(t, "REVIEW"))
	assert.False(t, ok)
}

func TestConvergenceWithRepeatedMember(t *testing.T) {
	st, tpl, reg := setup(t, "standard")
	for _, k := range []string{"PLAN", "TEST", "DEV"} {
		require.NoError(t, AdvanceOnCompletion(st, key(t, k), session.ResultPass, t0))
	}

	require.NoError(t, AdvanceOnCompletion(st, key(t, "TEST:2"), session.ResultPass, t0.Add(time.Minute)))
	_, ok := DetectParallelConvergence(st, tpl, reg, key(t, "TEST:2"))
	assert.False(t, ok)

	require.NoError(t, AdvanceOnCompletion(st, key(t, "REVIEW"), session.ResultPass, t0.Add(2*time.Minute)))
	conv, ok := DetectParallelConvergence(st, tpl, reg, key(t, "REVIEW"))
	require.True(t, ok)
	assert.Len(t, conv.Keys, 3)
}

func TestNextStepHint(t *testing.T) {
	st, tpl, reg := setup(t, "quick")

	h := NextStepHint(st, tpl, reg)
	require.False(t, h.Parallel)
	require.Len(t, h.Stages, 1)
	assert.Equal(t, "DEV", h.Stages[0].Key.String())
	assert.Equal(t, "developer", h.Stages[0].Executor)
	assert.Equal(t, "run DEV with executor developer", h.String())

	require.NoError(t, AdvanceOnCompletion(st, key(t, "DEV"), session.ResultPass, t0))
	h = NextStepHint(st, tpl, reg)
	require.True(t, h.Parallel)
	assert.Equal(t, "post-dev", h.Group)
	require.Len(t, h.Stages, 2)
	assert.Equal(t, "code-reviewer", h.Stages[0].Executor)
	assert.Equal(t, "tester", h.Stages[1].Executor)
	assert.Contains(t, h.String(), "run in parallel [post-dev]")

	require.NoError(t, AdvanceOnCompletion(st, key(t, "REVIEW"), session.ResultPass, t0))
	h = NextStepHint(st, tpl, reg)
	assert.False(t, h.Parallel, "a single remaining member is not a joint step")
	assert.Equal(t, "TEST", h.Stages[0].Key.String())

	for _, k := range []string{"TEST", "RETRO"} {
		require.NoError(t, AdvanceOnCompletion(st, key(t, k), session.ResultPass, t0))
	}
	h = NextStepHint(st, tpl, reg)
	assert.True(t, h.Done)
	assert.Equal(t, "no stages remain", h.String())
}

func TestNextStepHintRequiresAfterStage(t *testing.T) {
	st, tpl, reg := setup(t, "quick", "REVIEW", "TEST", "DEV")

	h := NextStepHint(st, tpl, reg)
	assert.False(t, h.Parallel, "post-dev group only applies once DEV completed")
	assert.Equal(t, "REVIEW", h.Stages[0].Key.String())
}
