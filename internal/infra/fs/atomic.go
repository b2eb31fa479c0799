package fs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// WriteFileAtomic writes data to a file atomically using temp file + fsync + rename.
// The temp file lives in the destination directory so the rename never crosses
// filesystems, and a watcher only ever sees a complete document.
func WriteFileAtomic(afs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := afs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmpFile, err := afero.TempFile(afs, dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	renamed := false
	defer func() {
		if !renamed {
			_ = afs.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := afs.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}
	renamed = true
	return nil
}

// WriteJSONAtomic marshals v as indented JSON and writes it with WriteFileAtomic
func WriteJSONAtomic(afs afero.Fs, path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	return WriteFileAtomic(afs, path, append(b, '\n'))
}

// ReadJSON decodes the document at path into v.
// A missing file is reported with an error matching os.ErrNotExist.
func ReadJSON(afs afero.Fs, path string, v any) error {
	b, err := afero.ReadFile(afs, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}
	return nil
}

// IsNotExist reports whether err means the file is missing
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
