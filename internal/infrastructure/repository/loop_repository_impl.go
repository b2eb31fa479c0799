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
)

// LoopRepositoryImpl implements repository.LoopRepository with a loop.json
// document next to the workflow state
type LoopRepositoryImpl struct {
	fs     afero.Fs
	root   string
	locker *fs.Locker
	now    func() time.Time
}

var _ repository.LoopRepository = (*LoopRepositoryImpl)(nil)

// NewLoopRepositoryImpl creates a file-based loop repository
func NewLoopRepositoryImpl(afs afero.Fs, sessionsRoot string, locker *fs.Locker) *LoopRepositoryImpl {
	if locker == nil {
		locker = fs.NewLocker(afs)
	}
	return &LoopRepositoryImpl{fs: afs, root: sessionsRoot, locker: locker, now: time.Now}
}

// SetClock replaces the time source
func (r *LoopRepositoryImpl) SetClock(now func() time.Time) {
	r.now = now
}

// Read loads the loop state
func (r *LoopRepositoryImpl) Read(ctx context.Context, sessionID string) (*session.LoopState, error) {
	if err := session.ValidateID(sessionID); err != nil {
		return nil, err
	}
	ls, err := r.load(filesFor(r.root, sessionID).loop)
	if err != nil {
		return nil, err
	}
	if ls == nil {
		return nil, failure.NotFound("LOOP_NOT_FOUND", "no loop state for session %s", sessionID)
	}
	return ls, nil
}

// Mutate applies fn to the loop state, creating it lazily on first use
func (r *LoopRepositoryImpl) Mutate(ctx context.Context, sessionID string, fn repository.LoopTransform) (*session.LoopState, error) {
	if err := session.ValidateID(sessionID); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, failure.Programming("NIL_TRANSFORM", "loop mutate %s: transform is nil", sessionID)
	}

	var out *session.LoopState
	err := retryOnConflict(func() error {
		ls, err := r.mutateOnce(ctx, sessionID, fn)
		if err != nil {
			return err
		}
		out = ls
		return nil
	}, "loop mutate "+sessionID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *LoopRepositoryImpl) mutateOnce(ctx context.Context, sessionID string, fn repository.LoopTransform) (*session.LoopState, error) {
	files := filesFor(r.root, sessionID)
	release, err := r.locker.Acquire(ctx, files.loopLock)
	if err != nil {
		return nil, err
	}
	defer release()

	cur, err := r.load(files.loop)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		cur = session.NewLoopState(sessionID, r.now().UTC())
	}

	next, err := fn(cur.Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, failure.Programming("NIL_TRANSFORM_RESULT", "loop mutate %s: transform returned no state", sessionID)
	}
	next.SessionID = sessionID
	next.Revision = cur.Revision + 1
	if err := commitRevisioned(r.fs, files.loop, cur.Revision, next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// load returns nil without error when the loop has not started yet
func (r *LoopRepositoryImpl) load(path string) (*session.LoopState, error) {
	var ls session.LoopState
	if err := fs.ReadJSON(r.fs, path, &ls); err != nil {
		if fs.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read loop state: %w", err)
	}
	return &ls, nil
}
