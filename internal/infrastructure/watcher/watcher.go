// Package watcher reports durable session changes so an external dashboard
// can react without the core pushing notifications.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/YoshitsuguKoike/deestage/internal/infra/fs"
	"github.com/YoshitsuguKoike/deestage/internal/infrastructure/repository"
)

// Change is one observed replacement or append
type Change struct {
	SessionID string
	File      string // workflow.json, loop.json or timeline.ndjson
	Path      string
	Op        fsnotify.Op
}

var watchedFiles = map[string]struct{}{
	repository.WorkflowFile: {},
	repository.LoopFile:     {},
	repository.TimelineFile: {},
}

// Watcher observes the sessions root and every session directory under it
type Watcher struct {
	root string
	w    *fsnotify.Watcher
}

// New registers watches on root and its existing session directories.
// Watches are active when New returns.
func New(root string) (*Watcher, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sessions root: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(root); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", root, err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to list %s: %w", root, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := w.Add(filepath.Join(root, e.Name())); err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to watch session %s: %w", e.Name(), err)
		}
	}
	return &Watcher{root: root, w: w}, nil
}

// Run delivers changes to fn until ctx is done, then releases the watcher
func (x *Watcher) Run(ctx context.Context, fn func(Change)) error {
	defer x.w.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-x.w.Events:
			if !ok {
				return nil
			}
			x.handle(ev, fn)
		case err, ok := <-x.w.Errors:
			if !ok {
				return nil
			}
			fs.GetLogger().Warn("watcher: %v", err)
		}
	}
}

// Close releases the watcher without running it
func (x *Watcher) Close() error {
	return x.w.Close()
}

func (x *Watcher) handle(ev fsnotify.Event, fn func(Change)) {
	dir := filepath.Dir(ev.Name)

	// New session directory: watch it and report files that raced ahead of the watch
	if dir == filepath.Clean(x.root) && ev.Has(fsnotify.Create) {
		info, err := os.Stat(ev.Name)
		if err != nil || !info.IsDir() {
			return
		}
		if err := x.w.Add(ev.Name); err != nil {
			fs.GetLogger().Warn("watcher: failed to watch %s: %v", ev.Name, err)
			return
		}
		for name := range watchedFiles {
			p := filepath.Join(ev.Name, name)
			if _, err := os.Stat(p); err == nil {
				fn(Change{SessionID: filepath.Base(ev.Name), File: name, Path: p, Op: fsnotify.Create})
			}
		}
		return
	}

	name := filepath.Base(ev.Name)
	if _, ok := watchedFiles[name]; !ok {
		return
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return
	}
	if filepath.Dir(dir) != filepath.Clean(x.root) {
		return
	}
	fn(Change{SessionID: filepath.Base(dir), File: name, Path: ev.Name, Op: ev.Op})
}
