package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/afero"

	"github.com/YoshitsuguKoike/deestage/internal/domain/failure"
)

const (
	DefaultLockTimeout    = 5 * time.Second
	DefaultLockStaleAfter = 30 * time.Second
)

var errLockBusy = errors.New("lock is held")

// Locker hands out advisory lock files created with O_CREATE|O_EXCL.
// A lock file older than StaleAfter is assumed abandoned by a crashed caller
// and is removed.
type Locker struct {
	Fs         afero.Fs
	Timeout    time.Duration
	StaleAfter time.Duration
	Now        func() time.Time
}

// NewLocker creates a locker with default timeouts
func NewLocker(afs afero.Fs) *Locker {
	return &Locker{Fs: afs, Timeout: DefaultLockTimeout, StaleAfter: DefaultLockStaleAfter, Now: time.Now}
}

// Acquire blocks until the lock file at path is created, ctx is done or the
// timeout elapses. A timeout is reported as a Conflict.
func (l *Locker) Acquire(ctx context.Context, path string) (release func() error, err error) {
	if err := l.Fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock dir: %w", err)
	}

	op := func() error {
		err := l.tryCreate(path)
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, os.ErrExist):
			return backoff.Permanent(err)
		}
		if l.stealIfStale(path) && l.tryCreate(path) == nil {
			return nil
		}
		return errLockBusy
	}

	if err := backoff.Retry(op, backoff.WithContext(l.backoff(), ctx)); err != nil {
		if errors.Is(err, errLockBusy) {
			return nil, &failure.Error{
				Kind:    failure.KindConflict,
				Code:    "LOCK_TIMEOUT",
				Message: fmt.Sprintf("lock %s is held by another caller", path),
				Err:     err,
			}
		}
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}

	return func() error {
		if err := l.Fs.Remove(path); err != nil && !IsNotExist(err) {
			return fmt.Errorf("release lock %s: %w", path, err)
		}
		return nil
	}, nil
}

func (l *Locker) tryCreate(path string) error {
	f, err := l.Fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	_, werr := fmt.Fprintf(f, "%d %s\n", os.Getpid(), l.now().UTC().Format(time.RFC3339Nano))
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = l.Fs.Remove(path)
		return fmt.Errorf("write lock %s: %w", path, errors.Join(werr, cerr))
	}
	return nil
}

// stealIfStale removes an abandoned lock. Stealers serialize on a guard lock
// and re-read the lock's age under it, so a lock another stealer just
// re-created is never removed.
func (l *Locker) stealIfStale(path string) bool {
	if l.StaleAfter <= 0 || !l.isStale(path) {
		return false
	}

	guard := path + ".steal"
	if err := l.tryCreate(guard); err != nil {
		// a guard outlives its holder only when that holder crashed mid-steal
		if errors.Is(err, os.ErrExist) && l.isStale(guard) {
			_ = l.Fs.Remove(guard)
		}
		return false
	}
	defer func() { _ = l.Fs.Remove(guard) }()

	info, err := l.Fs.Stat(path)
	if err != nil {
		return IsNotExist(err)
	}
	age := l.now().Sub(info.ModTime())
	if age < l.StaleAfter {
		return false
	}
	if err := l.Fs.Remove(path); err != nil {
		return false
	}
	GetLogger().Warn("removed stale lock %s (age %s)", path, age.Round(time.Millisecond))
	return true
}

func (l *Locker) isStale(path string) bool {
	info, err := l.Fs.Stat(path)
	if err != nil {
		return false
	}
	return l.now().Sub(info.ModTime()) >= l.StaleAfter
}

func (l *Locker) backoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	b.MaxElapsedTime = l.Timeout
	if b.MaxElapsedTime <= 0 {
		b.MaxElapsedTime = DefaultLockTimeout
	}
	b.Reset()
	return b
}

func (l *Locker) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}
