package app

import (
	"os"
	"path/filepath"

	"github.com/YoshitsuguKoike/deestage/internal/embed"
)

// DefaultHome is used when neither --home nor DEESTAGE_HOME is set
const DefaultHome = ".deestage"

// Paths holds all resolved paths under the deestage home
type Paths struct {
	Home     string // .deestage
	Etc      string // .deestage/etc
	Sessions string // .deestage/sessions

	// Key files
	Registry string // .deestage/etc/registry.yaml
	Setting  string // .deestage/setting.yaml
}

// ResolvePaths returns all paths for the given home; an empty home falls back
// to DEESTAGE_HOME and then DefaultHome
func ResolvePaths(home string) Paths {
	if home == "" {
		home = os.Getenv("DEESTAGE_HOME")
	}
	if home == "" {
		home = DefaultHome
	}

	return Paths{
		Home:     home,
		Etc:      filepath.Join(home, "etc"),
		Sessions: filepath.Join(home, "sessions"),
		Registry: filepath.Join(home, embed.DefaultRegistryPath),
		Setting:  filepath.Join(home, "setting.yaml"),
	}
}

// SessionDir returns the directory holding one session's documents
func (p Paths) SessionDir(sessionID string) string {
	return filepath.Join(p.Sessions, sessionID)
}
