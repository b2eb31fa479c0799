package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/deestage/internal/domain/session"
)

const (
	pass = session.ResultPass
	fail = session.ResultFail
)

func TestStageReliability(t *testing.T) {
	tests := []struct {
		name      string
		attempts  []session.Result
		pass1     bool
		pass3     bool
		consec3   *bool
		wantNilC3 bool
	}{
		{name: "four failures", attempts: []session.Result{fail, fail, fail, fail}, pass1: false, pass3: false, consec3: boolPtr(false)},
		{name: "three passes", attempts: []session.Result{pass, pass, pass}, pass1: true, pass3: true, consec3: boolPtr(true)},
		{name: "fail then pass", attempts: []session.Result{fail, pass}, pass1: false, pass3: true, wantNilC3: true},
		{name: "recovered streak", attempts: []session.Result{fail, fail, fail, pass, pass, pass}, pass1: false, pass3: false, consec3: boolPtr(true)},
		{name: "no attempts", attempts: nil, wantNilC3: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr := StageReliabilityOf("TEST", tt.attempts)
			assert.Equal(t, tt.pass1, sr.Pass1)
			assert.Equal(t, tt.pass3, sr.Pass3)
			if tt.wantNilC3 {
				assert.Nil(t, sr.PassConsecutive3)
				return
			}
			require.NotNil(t, sr.PassConsecutive3)
			assert.Equal(t, *tt.consec3, *sr.PassConsecutive3)
		})
	}
}

func TestComputeReliability(t *testing.T) {
	events := []Event{
		verdict("DEV", pass),
		verdict("TEST", fail),
		{Type: TypeStageStarted, Payload: map[string]interface{}{"stage": "TEST"}},
		verdict("TEST", pass),
		verdict("TEST:2", pass),
		verdict("REVIEW", session.ResultNone),
	}

	rel := ComputeReliability(events)

	require.Len(t, rel.Stages, 2)
	assert.Equal(t, "DEV", rel.Stages[0].Stage)
	assert.Equal(t, "TEST", rel.Stages[1].Stage)
	assert.Equal(t, []session.Result{fail, pass, pass}, rel.Stages[1].Attempts)
	assert.Equal(t, 2, rel.StageCount)
	assert.Equal(t, 4, rel.TotalAttempts)
	assert.Equal(t, 1, rel.Pass1Count)
	assert.Equal(t, 2, rel.Pass3Count)
	assert.Equal(t, 1, rel.Consecutive3Evaluated)
	assert.Equal(t, 0, rel.Consecutive3Count)
	assert.InDelta(t, 0.5, rel.Pass1Rate, 1e-9)
	assert.InDelta(t, 1.0, rel.Pass3Rate, 1e-9)
	assert.InDelta(t, 0.0, rel.Consecutive3Rate, 1e-9)
}

func TestFilterApply(t *testing.T) {
	events := []Event{
		{Seq: 1, Type: TypeStageStarted, Category: "stage"},
		{Seq: 2, Type: TypeStageVerdict, Category: "verdict"},
		{Seq: 3, Type: TypeStageCompleted, Category: "stage"},
		{Seq: 4, Type: TypeLoopContinued, Category: "loop"},
	}

	assert.Len(t, Filter{}.Apply(events), 4)

	got := Filter{Category: "stage"}.Apply(events)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].Seq)
	assert.Equal(t, int64(3), got[1].Seq)

	got = Filter{Limit: 2}.Apply(events)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].Seq, "limit keeps the most recent, oldest first")
	assert.Equal(t, int64(4), got[1].Seq)

	assert.Len(t, Filter{Type: TypeLoopStopped}.Apply(events), 0)
}

func TestNewEventIDIsSortable(t *testing.T) {
	now := time.Now()
	a := NewEventID(now)
	b := NewEventID(now.Add(time.Millisecond))
	assert.Len(t, a, 26)
	assert.Less(t, a, b)
}

func verdict(stage string, v session.Result) Event {
	return Event{Type: TypeStageVerdict, Payload: map[string]interface{}{"stage": stage, "verdict": string(v)}}
}

func boolPtr(b bool) *bool { return &b }
