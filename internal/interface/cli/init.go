package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/deestage/internal/app"
	"github.com/YoshitsuguKoike/deestage/internal/embed"
	infraConfig "github.com/YoshitsuguKoike/deestage/internal/infra/config"
	"github.com/YoshitsuguKoike/deestage/internal/interface/cli/common"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the deestage home with an editable registry and settings",
		RunE: func(c *cobra.Command, _ []string) error {
			return runInit(afero.NewOsFs(), app.ResolvePaths(common.GetGlobalConfig().Home()), force, c)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing registry and settings")
	return cmd
}

func runInit(afs afero.Fs, paths app.Paths, force bool, c *cobra.Command) error {
	for _, d := range []string{paths.Etc, paths.Sessions} {
		if err := afs.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}

	dest, written, err := embed.WriteDefaultRegistry(afs, paths.Home, force)
	if err != nil {
		return err
	}
	report(c, dest, written)

	exists, err := afero.Exists(afs, paths.Setting)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", paths.Setting, err)
	}
	if !exists || force {
		if err := afero.WriteFile(afs, paths.Setting, infraConfig.CreateDefaultSettings(), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", paths.Setting, err)
		}
	}
	report(c, paths.Setting, !exists || force)
	return nil
}

func report(c *cobra.Command, path string, written bool) {
	status := "WROTE"
	if !written {
		status = "SKIP (exists)"
	}
	fmt.Fprintf(c.OutOrStdout(), "%s: %s\n", status, filepath.ToSlash(path))
}
