package cli

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/deestage/internal/app"
	infraConfig "github.com/YoshitsuguKoike/deestage/internal/infra/config"
	"github.com/YoshitsuguKoike/deestage/internal/interface/cli/common"
	"github.com/YoshitsuguKoike/deestage/internal/interface/cli/doctor"
	"github.com/YoshitsuguKoike/deestage/internal/interface/cli/events"
	loopcmd "github.com/YoshitsuguKoike/deestage/internal/interface/cli/loop"
	"github.com/YoshitsuguKoike/deestage/internal/interface/cli/session"
	"github.com/YoshitsuguKoike/deestage/internal/interface/cli/stage"
	"github.com/YoshitsuguKoike/deestage/internal/interface/cli/version"
	"github.com/YoshitsuguKoike/deestage/internal/interface/cli/watch"
)

func NewRoot() *cobra.Command {
	var home string

	cmd := &cobra.Command{
		Use:           "deestage",
		Short:         "Workflow stage scheduler and loop governor",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Priority: ENV > setting file > defaults
			paths := app.ResolvePaths(home)
			cfg, err := infraConfig.LoadSettings(afero.NewOsFs(), paths.Home)
			if err != nil {
				return err
			}
			InitGlobalLogger(cfg.StderrLevel())
			InitializeLoggers(GetLogger())
			common.SetGlobalConfig(cfg)
			GetLogger().Debug("config source %s (home %s)", cfg.ConfigSource(), cfg.Home())
			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.PersistentFlags().StringVar(&home, "home", "", "deestage home directory (default $DEESTAGE_HOME or .deestage)")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(session.NewCommand())
	cmd.AddCommand(stage.NewCommand())
	cmd.AddCommand(loopcmd.NewCommand())
	cmd.AddCommand(events.NewCommand())
	cmd.AddCommand(doctor.NewCommand())
	cmd.AddCommand(watch.NewCommand())
	cmd.AddCommand(version.NewCommand())
	return cmd
}

// Execute runs the root command and logs the failure, if any
func Execute() error {
	err := NewRoot().Execute()
	if err != nil {
		GetLogger().Error("%v", err)
	}
	return err
}
