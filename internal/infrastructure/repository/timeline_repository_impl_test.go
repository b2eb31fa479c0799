package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/deestage/internal/domain/failure"
	"github.com/YoshitsuguKoike/deestage/internal/domain/session"
	"github.com/YoshitsuguKoike/deestage/internal/domain/timeline"
)

func TestTimelineRepository_AppendAndQuery(t *testing.T) {
	repo := NewTimelineRepositoryImpl(afero.NewMemMapFs(), root, loadRegistry(t), nil, TimelineOptions{})
	ctx := context.Background()

	e, err := repo.Append(ctx, "s1", timeline.TypeStageStarted, map[string]interface{}{"stage": "DEV"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.Seq)
	assert.Equal(t, "stage", e.Category)
	assert.NotEmpty(t, e.ID)

	_, err = repo.Append(ctx, "s1", timeline.TypeStageVerdict, map[string]interface{}{"stage": "DEV", "verdict": "pass"})
	require.NoError(t, err)
	_, err = repo.Append(ctx, "s1", timeline.TypeLoopContinued, nil)
	require.NoError(t, err)

	all, err := repo.Query(ctx, "s1", timeline.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{1, 2, 3}, seqs(all))
	assert.Equal(t, "DEV", all[0].StringField("stage"))

	byCat, err := repo.Query(ctx, "s1", timeline.Filter{Category: "verdict"})
	require.NoError(t, err)
	require.Len(t, byCat, 1)
	assert.Equal(t, timeline.TypeStageVerdict, byCat[0].Type)

	recent, err := repo.Query(ctx, "s1", timeline.Filter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, seqs(recent))

	empty, err := repo.Query(ctx, "other", timeline.Filter{})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTimelineRepository_RejectsUnknownType(t *testing.T) {
	repo := NewTimelineRepositoryImpl(afero.NewMemMapFs(), root, loadRegistry(t), nil, TimelineOptions{})

	_, err := repo.Append(context.Background(), "s1", "stage.exploded", nil)
	assert.True(t, failure.IsProgramming(err))
}

func TestTimelineRepository_TrimLaw(t *testing.T) {
	repo := NewTimelineRepositoryImpl(afero.NewMemMapFs(), root, loadRegistry(t), nil, TimelineOptions{MaxEvents: 2000, TrimEvery: 0})
	ctx := context.Background()

	for i := 1; i <= 2001; i++ {
		_, err := repo.Append(ctx, "s1", timeline.TypeLoopContinued, map[string]interface{}{"n": i})
		require.NoError(t, err)
	}

	dropped, err := repo.Trim(ctx, "s1", 2000)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)

	events, err := repo.Query(ctx, "s1", timeline.Filter{})
	require.NoError(t, err)
	require.Len(t, events, 2000)
	for i, e := range events {
		require.Equal(t, int64(i+2), e.Seq, "original order is preserved")
	}

	next, err := repo.Append(ctx, "s1", timeline.TypeLoopContinued, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2002), next.Seq, "seq survives trimming")

	_, err = repo.Trim(ctx, "s1", 0)
	assert.True(t, failure.IsProgramming(err))
}

func TestTimelineRepository_AutomaticTrim(t *testing.T) {
	repo := NewTimelineRepositoryImpl(afero.NewMemMapFs(), root, loadRegistry(t), nil, TimelineOptions{MaxEvents: 5, TrimEvery: 3})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := repo.Append(ctx, "s1", timeline.TypeLoopContinued, nil)
		require.NoError(t, err)
	}

	events, err := repo.Query(ctx, "s1", timeline.Filter{})
	require.NoError(t, err)
	// trimmed to 5 at seq 9, then seq 10 appended
	assert.Equal(t, []int64{5, 6, 7, 8, 9, 10}, seqs(events))
}

func TestTimelineRepository_SkipsCorruptedLines(t *testing.T) {
	afs := afero.NewMemMapFs()
	repo := NewTimelineRepositoryImpl(afs, root, loadRegistry(t), nil, TimelineOptions{})
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	repo.SetClock(func() time.Time { return fixed })
	ctx := context.Background()

	_, err := repo.Append(ctx, "s1", timeline.TypeStageStarted, nil)
	require.NoError(t, err)

	path := root + "/s1/timeline.ndjson"
	data, err := afero.ReadFile(afs, path)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(afs, path, append(data, []byte("{not json\n")...), 0o644))

	e, err := repo.Append(ctx, "s1", timeline.TypeStageCompleted, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), e.Seq)

	events, err := repo.Query(ctx, "s1", timeline.Filter{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[0].Timestamp.Equal(fixed))
}

func TestLoopRepository_LazyCreateAndMutate(t *testing.T) {
	repo := NewLoopRepositoryImpl(afero.NewMemMapFs(), root, nil)
	ctx := context.Background()

	_, err := repo.Read(ctx, "s1")
	assert.True(t, failure.IsNotFound(err))

	ls, err := repo.Mutate(ctx, "s1", func(ls *session.LoopState) (*session.LoopState, error) {
		ls.Iteration++
		return ls, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, ls.Iteration)
	assert.Equal(t, int64(1), ls.Revision)
	assert.False(t, ls.StartedAt.IsZero())

	ls, err = repo.Mutate(ctx, "s1", func(ls *session.LoopState) (*session.LoopState, error) {
		ls.Stop(session.StopManual, time.Now())
		return ls, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), ls.Revision)

	got, err := repo.Read(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, got.Stopped)
	assert.Equal(t, session.StopManual, got.StopReason)
	assert.Equal(t, 1, got.Iteration)

	_, err = repo.Mutate(ctx, "s1", func(ls *session.LoopState) (*session.LoopState, error) {
		return nil, fmt.Errorf("boom")
	})
	assert.EqualError(t, err, "boom")
}

func seqs(events []timeline.Event) []int64 {
	out := make([]int64, len(events))
	for i, e := range events {
		out[i] = e.Seq
	}
	return out
}
