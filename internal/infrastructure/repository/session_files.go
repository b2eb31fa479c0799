package repository

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/afero"

	"github.com/YoshitsuguKoike/deestage/internal/domain/failure"
	"github.com/YoshitsuguKoike/deestage/internal/infra/fs"
)

// File names inside <sessions root>/<session id>/
const (
	WorkflowFile = "workflow.json"
	LoopFile     = "loop.json"
	TimelineFile = "timeline.ndjson"
)

const codeRevisionMismatch = "REVISION_MISMATCH"

// sessionFiles resolves the per-session layout
type sessionFiles struct {
	id           string
	dir          string
	workflow     string
	workflowLock string
	loop         string
	loopLock     string
	timeline     string
	timelineLock string
}

func filesFor(root, sessionID string) sessionFiles {
	dir := filepath.Join(root, sessionID)
	return sessionFiles{
		id:           sessionID,
		dir:          dir,
		workflow:     filepath.Join(dir, WorkflowFile),
		workflowLock: filepath.Join(dir, "workflow.lock"),
		loop:         filepath.Join(dir, LoopFile),
		loopLock:     filepath.Join(dir, "loop.lock"),
		timeline:     filepath.Join(dir, TimelineFile),
		timelineLock: filepath.Join(dir, "timeline.lock"),
	}
}

// storedRevision reads only the revision field of a document; a missing file has revision 0
func storedRevision(afs afero.Fs, path string) (int64, error) {
	var head struct {
		Revision int64 `json:"revision"`
	}
	if err := fs.ReadJSON(afs, path, &head); err != nil {
		if fs.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return head.Revision, nil
}

// commitRevisioned writes doc only if the stored revision still equals expected
func commitRevisioned(afs afero.Fs, path string, expected int64, doc any) error {
	onDisk, err := storedRevision(afs, path)
	if err != nil {
		return err
	}
	if onDisk != expected {
		return failure.Conflict(codeRevisionMismatch, "%s changed on disk: revision %d, expected %d", filepath.Base(path), onDisk, expected)
	}
	return fs.WriteJSONAtomic(afs, path, doc)
}

func isRevisionConflict(err error) bool {
	var fe *failure.Error
	return errors.As(err, &fe) && fe.Kind == failure.KindConflict && fe.Code == codeRevisionMismatch
}

// retryOnConflict runs op until it stops failing with a revision conflict
func retryOnConflict(op func() error, what string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second
	attempt := 0

	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if isRevisionConflict(err) {
			fs.GetLogger().Debug("%s: retrying after conflict (attempt %d): %v", what, attempt, err)
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithMaxRetries(b, 10))
}
