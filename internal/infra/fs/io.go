package fs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// maxLineSize bounds one NDJSON record
const maxLineSize = 1 << 20

// AppendLine appends one newline-terminated record and syncs it.
// Callers serialize appends to the same file with a Locker.
func AppendLine(afs afero.Fs, path string, line []byte) error {
	if path == "" {
		return fmt.Errorf("append line: path is empty")
	}
	if err := afs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("append line %s: failed to create parent dir: %w", path, err)
	}

	f, err := afs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("append line %s: %w", path, err)
	}

	// a torn final record must not swallow this one
	terminated, err := endsWithNewline(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("append line %s: %w", path, err)
	}

	buf := make([]byte, 0, len(line)+2)
	if !terminated {
		buf = append(buf, '\n')
	}
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("append line %s: failed to write: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("append line %s: failed to sync: %w", path, err)
	}
	return f.Close()
}

func endsWithNewline(f afero.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return true, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] == '\n', nil
}

// ReadLines returns the lines of path in order. A missing file yields no lines.
func ReadLines(afs afero.Fs, path string) ([]string, error) {
	f, err := afs.Open(path)
	if err != nil {
		if IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}
