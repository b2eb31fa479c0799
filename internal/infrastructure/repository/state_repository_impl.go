package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/YoshitsuguKoike/deestage/internal/domain/failure"
	"github.com/YoshitsuguKoike/deestage/internal/domain/repository"
	"github.com/YoshitsuguKoike/deestage/internal/domain/session"
	"github.com/YoshitsuguKoike/deestage/internal/infra/fs"
	"github.com/YoshitsuguKoike/deestage/internal/workflow"
)

// WorkflowRegistry is what the state store needs to validate a new session
type WorkflowRegistry interface {
	WorkflowTemplate(workflowType string) (workflow.WorkflowTemplate, error)
	StageDefinition(key string) (workflow.StageDefinition, error)
	KindOf(key string) workflow.StageKind
}

// StateRepositoryImpl implements repository.StateRepository with one JSON
// document per session
type StateRepositoryImpl struct {
	fs     afero.Fs
	root   string
	reg    WorkflowRegistry
	locker *fs.Locker
	now    func() time.Time
}

var _ repository.StateRepository = (*StateRepositoryImpl)(nil)

// NewStateRepositoryImpl creates a file-based state repository rooted at the sessions directory
func NewStateRepositoryImpl(afs afero.Fs, sessionsRoot string, reg WorkflowRegistry, locker *fs.Locker) *StateRepositoryImpl {
	if locker == nil {
		locker = fs.NewLocker(afs)
	}
	return &StateRepositoryImpl{fs: afs, root: sessionsRoot, reg: reg, locker: locker, now: time.Now}
}

// SetClock replaces the time source
func (r *StateRepositoryImpl) SetClock(now func() time.Time) {
	r.now = now
}

// Initialize creates the session state, overwriting any previous run of the same id
func (r *StateRepositoryImpl) Initialize(ctx context.Context, sessionID, workflowType string, stageKeys []string, opts session.InitOptions) (*session.State, error) {
	if err := session.ValidateID(sessionID); err != nil {
		return nil, err
	}
	tpl, err := r.reg.WorkflowTemplate(workflowType)
	if err != nil {
		return nil, failure.Programming("UNKNOWN_WORKFLOW_TYPE", "unknown workflow type %q", workflowType)
	}
	bases := stageKeys
	if len(bases) == 0 {
		bases = tpl.Stages
	}
	for _, b := range bases {
		if _, err := r.reg.StageDefinition(b); err != nil {
			return nil, failure.Programming("UNKNOWN_STAGE", "workflow %s: unknown stage %q", workflowType, b)
		}
	}

	files := filesFor(r.root, sessionID)
	release, err := r.locker.Acquire(ctx, files.workflowLock)
	if err != nil {
		return nil, err
	}
	defer release()

	prev, err := storedRevision(r.fs, files.workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to read previous state: %w", err)
	}

	st := session.NewState(sessionID, workflowType, bases, r.reg.KindOf, opts, r.now().UTC())
	st.Revision = prev + 1
	if err := commitRevisioned(r.fs, files.workflow, prev, st); err != nil {
		return nil, fmt.Errorf("failed to write state: %w", err)
	}
	return st.Clone(), nil
}

// Read loads the session state
func (r *StateRepositoryImpl) Read(ctx context.Context, sessionID string) (*session.State, error) {
	if err := session.ValidateID(sessionID); err != nil {
		return nil, err
	}
	return r.load(filesFor(r.root, sessionID).workflow, sessionID)
}

// Mutate applies fn under the session lock, retrying on revision conflicts
func (r *StateRepositoryImpl) Mutate(ctx context.Context, sessionID string, fn repository.StateTransform) (*session.State, error) {
	if err := session.ValidateID(sessionID); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, failure.Programming("NIL_TRANSFORM", "mutate %s: transform is nil", sessionID)
	}

	var out *session.State
	err := retryOnConflict(func() error {
		st, err := r.mutateOnce(ctx, sessionID, fn)
		if err != nil {
			return err
		}
		out = st
		return nil
	}, "mutate "+sessionID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *StateRepositoryImpl) mutateOnce(ctx context.Context, sessionID string, fn repository.StateTransform) (*session.State, error) {
	files := filesFor(r.root, sessionID)
	release, err := r.locker.Acquire(ctx, files.workflowLock)
	if err != nil {
		return nil, err
	}
	defer release()

	cur, err := r.load(files.workflow, sessionID)
	if err != nil {
		return nil, err
	}
	next, err := fn(cur.Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, failure.Programming("NIL_TRANSFORM_RESULT", "mutate %s: transform returned no state", sessionID)
	}
	return r.commit(files, cur.Revision, next)
}

// Replace is a compare-and-swap write of a state previously returned by the store
func (r *StateRepositoryImpl) Replace(ctx context.Context, st *session.State) (*session.State, error) {
	if st == nil {
		return nil, failure.Programming("NIL_STATE", "replace: state is nil")
	}
	if err := session.ValidateID(st.SessionID); err != nil {
		return nil, err
	}

	files := filesFor(r.root, st.SessionID)
	release, err := r.locker.Acquire(ctx, files.workflowLock)
	if err != nil {
		return nil, err
	}
	defer release()

	onDisk, err := storedRevision(r.fs, files.workflow)
	if err != nil {
		return nil, err
	}
	if onDisk == 0 {
		return nil, failure.NotFound("SESSION_NOT_FOUND", "session %s not found", st.SessionID)
	}
	return r.commit(files, st.Revision, st.Clone())
}

func (r *StateRepositoryImpl) commit(files sessionFiles, expected int64, next *session.State) (*session.State, error) {
	next.SessionID = files.id
	next.Revision = expected + 1
	next.UpdatedAt = r.now().UTC()
	next.RecomputeCurrent()
	if err := commitRevisioned(r.fs, files.workflow, expected, next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

func (r *StateRepositoryImpl) load(path, sessionID string) (*session.State, error) {
	var st session.State
	if err := fs.ReadJSON(r.fs, path, &st); err != nil {
		if fs.IsNotExist(err) {
			return nil, failure.NotFound("SESSION_NOT_FOUND", "session %s not found", sessionID)
		}
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	if st.ActiveExecutors == nil {
		st.ActiveExecutors = []string{}
	}
	return &st, nil
}
