// Package scheduler holds the pure stage state machine: it advances stages on
// completion, resolves which stage an executor report belongs to, detects
// parallel-group convergence and computes the next step. Every function works
// on a *session.State snapshot and never touches storage.
package scheduler

import (
	"time"

	"github.com/YoshitsuguKoike/deestage/internal/domain/failure"
	"github.com/YoshitsuguKoike/deestage/internal/domain/session"
	"github.com/YoshitsuguKoike/deestage/internal/workflow"
)

// Registry is the subset of the workflow registry the scheduler reads
type Registry interface {
	StageDefinition(key string) (workflow.StageDefinition, error)
	ParallelGroup(name string) (workflow.ParallelGroupDefinition, error)
}

func lookup(st *session.State, key session.StageKey) (*session.StageRuntime, error) {
	rt := st.Stage(key)
	if rt == nil {
		return nil, failure.Programming("UNKNOWN_STAGE_KEY", "stage %s is not part of session %s", key, st.SessionID)
	}
	return rt, nil
}

// Activate moves a pending stage to active and records its executor.
// Activating an already active stage is a no-op.
func Activate(st *session.State, key session.StageKey, executor string, now time.Time) error {
	rt, err := lookup(st, key)
	if err != nil {
		return err
	}
	switch rt.Status {
	case session.StatusActive:
		return nil
	case session.StatusCompleted:
		return failure.Programming("STAGE_COMPLETED", "stage %s is already completed", key)
	}

	rt.Status = session.StatusActive
	rt.Executor = executor
	t := now
	rt.StartedAt = &t
	if executor != "" {
		st.ActiveExecutors = append(st.ActiveExecutors, executor)
	}
	st.RecomputeCurrent()
	return nil
}

// Retry puts the same stage key back to active for another attempt.
// A new key is never created; completed stages cannot be retried.
func Retry(st *session.State, key session.StageKey, now time.Time) error {
	rt, err := lookup(st, key)
	if err != nil {
		return err
	}
	if rt.Status == session.StatusCompleted {
		return failure.Programming("STAGE_COMPLETED", "stage %s is already completed", key)
	}
	if rt.Status == session.StatusPending {
		return Activate(st, key, rt.Executor, now)
	}
	rt.Result = session.ResultNone
	return nil
}

// AdvanceOnCompletion marks a stage completed with the given result and
// recomputes the current stage.
func AdvanceOnCompletion(st *session.State, key session.StageKey, result session.Result, now time.Time) error {
	rt, err := lookup(st, key)
	if err != nil {
		return err
	}
	if rt.Status == session.StatusCompleted {
		return failure.Programming("STAGE_COMPLETED", "stage %s is already completed", key)
	}
	if !result.IsValid() {
		return failure.Programming("INVALID_RESULT", "invalid result %q", result)
	}

	rt.Status = session.StatusCompleted
	rt.Result = result
	t := now
	rt.CompletedAt = &t
	if rt.Executor != "" {
		st.ActiveExecutors = removeOne(st.ActiveExecutors, rt.Executor)
	}
	st.RecomputeCurrent()
	return nil
}

func removeOne(list []string, v string) []string {
	for i, s := range list {
		if s == v {
			out := make([]string, 0, len(list)-1)
			out = append(out, list[:i]...)
			return append(out, list[i+1:]...)
		}
	}
	return list
}

// FindActiveOrNextPendingKey resolves an executor report for a base stage key to
// a concrete key: the unsuffixed active key first, then a suffixed active key,
// then the first pending key of that base. ok is false when nothing matches and
// the report should be ignored.
func FindActiveOrNextPendingKey(st *session.State, base string) (session.StageKey, bool) {
	for _, rt := range st.Stages {
		if rt.Key.Base == base && !rt.Key.IsSuffixed() && rt.Status == session.StatusActive {
			return rt.Key, true
		}
	}
	for _, rt := range st.Stages {
		if rt.Key.Base == base && rt.Key.IsSuffixed() && rt.Status == session.StatusActive {
			return rt.Key, true
		}
	}
	for _, rt := range st.Stages {
		if rt.Key.Base == base && rt.Status == session.StatusPending {
			return rt.Key, true
		}
	}
	return session.StageKey{}, false
}
