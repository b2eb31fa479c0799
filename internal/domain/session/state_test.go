package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/deestage/internal/domain/failure"
	"github.com/YoshitsuguKoike/deestage/internal/workflow"
)

var testNow = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func kinds(t *testing.T) func(string) workflow.StageKind {
	t.Helper()
	reg, err := workflow.LoadDefault()
	require.NoError(t, err)
	return reg.KindOf
}

func TestExpandStageKeys(t *testing.T) {
	keys := ExpandStageKeys([]string{"TEST", "DEV", "TEST"})

	var rendered []string
	for _, k := range keys {
		rendered = append(rendered, k.String())
	}
	assert.Equal(t, []string{"TEST", "DEV", "TEST:2"}, rendered)
	assert.Equal(t, StageKey{Base: "TEST", Occurrence: 2}, keys[2])

	third := ExpandStageKeys([]string{"A", "A", "A"})
	assert.Equal(t, "A:3", third[2].String())
}

func TestParseStageKey(t *testing.T) {
	tests := []struct {
		in      string
		want    StageKey
		wantErr bool
	}{
		{in: "REVIEW", want: StageKey{Base: "REVIEW", Occurrence: 1}},
		{in: "TEST:2", want: StageKey{Base: "TEST", Occurrence: 2}},
		{in: " QA:10 ", want: StageKey{Base: "QA", Occurrence: 10}},
		{in: "", wantErr: true},
		{in: "TEST:1", wantErr: true},
		{in: "TEST:x", wantErr: true},
		{in: ":2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStageKey(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewStateModes(t *testing.T) {
	st := NewState("s1", "standard", []string{"PLAN", "TEST", "DEV", "REVIEW", "TEST", "QA", "RETRO"}, kinds(t), InitOptions{Feature: "login"}, testNow)

	modes := map[string]Mode{}
	for _, rt := range st.Stages {
		modes[rt.Key.String()] = rt.Mode
		assert.Equal(t, StatusPending, rt.Status)
		assert.Equal(t, ResultNone, rt.Result)
	}
	assert.Equal(t, ModeSpec, modes["TEST"])
	assert.Equal(t, ModeVerify, modes["TEST:2"])
	assert.Equal(t, ModeVerify, modes["QA"])
	assert.Equal(t, ModeNone, modes["DEV"])
	assert.Equal(t, ModeNone, modes["REVIEW"])

	require.NotNil(t, st.CurrentStage)
	assert.Equal(t, "PLAN", st.CurrentStage.String())
	assert.Equal(t, "login", st.Feature)
	assert.Empty(t, st.ActiveExecutors)
}

func TestRecomputeCurrent(t *testing.T) {
	st := NewState("s1", "quick", []string{"DEV", "REVIEW"}, kinds(t), InitOptions{}, testNow)

	st.Stages[0].Status = StatusCompleted
	st.RecomputeCurrent()
	require.NotNil(t, st.CurrentStage)
	assert.Equal(t, "REVIEW", st.CurrentStage.String())

	st.Stages[1].Status = StatusActive
	st.RecomputeCurrent()
	assert.Nil(t, st.CurrentStage, "active stages are not pending")
	assert.False(t, st.AllCompleted())

	st.Stages[1].Status = StatusCompleted
	assert.True(t, st.AllCompleted())
}

func TestStateJSONKeepsOrderAndKeys(t *testing.T) {
	st := NewState("s1", "quick", []string{"TEST", "DEV", "TEST"}, kinds(t), InitOptions{}, testNow)

	data, err := json.Marshal(st)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"key":"TEST:2"`)
	assert.Contains(t, string(data), `"current_stage":"TEST"`)

	var decoded State
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, st.Keys(), decoded.Keys())
	assert.Equal(t, *st.CurrentStage, *decoded.CurrentStage)
}

func TestCloneIsDeep(t *testing.T) {
	st := NewState("s1", "quick", []string{"DEV", "REVIEW"}, kinds(t), InitOptions{Metadata: map[string]string{"a": "b"}}, testNow)
	st.ActiveExecutors = []string{"developer"}

	c := st.Clone()
	c.Stages[0].Status = StatusCompleted
	c.ActiveExecutors[0] = "other"
	c.Metadata["a"] = "changed"
	c.CurrentStage.Base = "X"

	assert.Equal(t, StatusPending, st.Stages[0].Status)
	assert.Equal(t, "developer", st.ActiveExecutors[0])
	assert.Equal(t, "b", st.Metadata["a"])
	assert.Equal(t, "DEV", st.CurrentStage.Base)
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID("sess-01"))
	assert.NoError(t, ValidateID(NewID()))

	for _, bad := range []string{"", " ", "..", "a/b", `a\b`} {
		err := ValidateID(bad)
		assert.True(t, failure.IsProgramming(err), "id %q", bad)
	}
}

func TestLoopStateStopKeepsFirstReason(t *testing.T) {
	l := NewLoopState("s1", testNow)
	l.Stop(StopManual, testNow)
	l.Stop(StopMaxIterations, testNow.Add(time.Minute))

	assert.True(t, l.Stopped)
	assert.Equal(t, StopManual, l.StopReason)
	assert.Equal(t, testNow, *l.StoppedAt)
	assert.Equal(t, "completed", StopCompletedAborted.Category())
}
