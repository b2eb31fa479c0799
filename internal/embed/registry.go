package embed

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

//go:embed registry/default.yaml
var registryFS embed.FS

// DefaultRegistryPath is where `init` places the editable registry, relative to home
const DefaultRegistryPath = "etc/registry.yaml"

// DefaultRegistry returns the built-in registry definition
func DefaultRegistry() []byte {
	data, err := registryFS.ReadFile("registry/default.yaml")
	if err != nil {
		// The file is compiled into the binary
		panic(fmt.Sprintf("embedded registry missing: %v", err))
	}
	return data
}

// WriteDefaultRegistry writes the built-in registry under home unless a file
// already exists there. It returns the destination path and whether it was written.
func WriteDefaultRegistry(fs afero.Fs, home string, force bool) (string, bool, error) {
	dest := filepath.Join(home, DefaultRegistryPath)

	if !force {
		if _, err := fs.Stat(dest); err == nil {
			return dest, false, nil
		} else if !os.IsNotExist(err) {
			return dest, false, fmt.Errorf("failed to stat %s: %w", dest, err)
		}
	}

	if err := fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return dest, false, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := afero.WriteFile(fs, dest, DefaultRegistry(), 0o644); err != nil {
		return dest, false, fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return dest, true, nil
}
