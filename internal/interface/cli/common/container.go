package common

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/YoshitsuguKoike/deestage/internal/app"
	"github.com/YoshitsuguKoike/deestage/internal/app/config"
	"github.com/YoshitsuguKoike/deestage/internal/application/usecase/loop"
	workflowuc "github.com/YoshitsuguKoike/deestage/internal/application/usecase/workflow"
	"github.com/YoshitsuguKoike/deestage/internal/infra/fs"
	"github.com/YoshitsuguKoike/deestage/internal/infrastructure/repository"
	"github.com/YoshitsuguKoike/deestage/internal/workflow"
)

// Container holds the wired use cases for one command invocation
type Container struct {
	Config   config.Config
	Paths    app.Paths
	Fs       afero.Fs
	Registry *workflow.Registry
	Workflow *workflowuc.WorkflowUseCaseImpl
	Loop     *loop.Controller
}

// InitializeContainer wires the file-backed stores and use cases for the
// configured home on the OS filesystem
func InitializeContainer() (*Container, error) {
	cfg := GetGlobalConfig()
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return NewContainer(afero.NewOsFs(), cfg)
}

// NewContainer wires the stores and use cases on the given filesystem
func NewContainer(afs afero.Fs, cfg config.Config) (*Container, error) {
	paths := app.ResolvePaths(cfg.Home())

	reg, err := LoadRegistry(afs, cfg, paths)
	if err != nil {
		return nil, err
	}
	reg = reg.WithDefaults(workflow.Defaults{
		MaxRetries:           cfg.MaxRetries(),
		MaxIterations:        cfg.MaxIterations(),
		MaxConsecutiveErrors: cfg.MaxConsecutiveErrors(),
	})

	locker := fs.NewLocker(afs)
	locker.Timeout = cfg.LockTimeout()
	locker.StaleAfter = cfg.LockStaleAfter()

	states := repository.NewStateRepositoryImpl(afs, paths.Sessions, reg, locker)
	loops := repository.NewLoopRepositoryImpl(afs, paths.Sessions, locker)
	events := repository.NewTimelineRepositoryImpl(afs, paths.Sessions, reg, locker, repository.TimelineOptions{
		MaxEvents: cfg.TimelineMaxEvents(),
		TrimEvery: cfg.TimelineTrimEvery(),
	})

	defaults := reg.Defaults()
	return &Container{
		Config:   cfg,
		Paths:    paths,
		Fs:       afs,
		Registry: reg,
		Workflow: workflowuc.NewWorkflowUseCaseImpl(states, loops, events, reg, cfg.TimelineMaxEvents()),
		Loop: loop.NewController(loops, states, events, reg, loop.Limits{
			MaxIterations:        defaults.MaxIterations,
			MaxConsecutiveErrors: defaults.MaxConsecutiveErrors,
		}),
	}, nil
}

// LoadRegistry picks the registry source: an explicit registry_path (relative
// paths resolve against home), then <home>/etc/registry.yaml, then the built-in one
func LoadRegistry(afs afero.Fs, cfg config.Config, paths app.Paths) (*workflow.Registry, error) {
	path := cfg.RegistryPath()
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(paths.Home, path)
	}
	if path == "" {
		exists, err := afero.Exists(afs, paths.Registry)
		if err != nil {
			return nil, fmt.Errorf("failed to check registry: %w", err)
		}
		if !exists {
			app.GetLogger().Debug("using built-in registry")
			return workflow.LoadDefault()
		}
		path = paths.Registry
	}
	app.GetLogger().Debug("loading registry from %s", path)
	return workflow.LoadFile(afs, path)
}
