package doctor

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/deestage/internal/interface/cli/common"
	"github.com/YoshitsuguKoike/deestage/internal/validator/integrated"
)

// NewCommand creates the doctor command
func NewCommand() *cobra.Command {
	var (
		jsonOutput bool
		sessionID  string
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate session documents and timelines",
		RunE: func(c *cobra.Command, _ []string) error {
			container, err := common.InitializeContainer()
			if err != nil {
				return err
			}
			report, err := integrated.RunIntegratedValidation(&integrated.DoctorConfig{
				Fs:           container.Fs,
				SessionsRoot: container.Paths.Sessions,
				EventTypes:   container.Registry,
				SessionID:    sessionID,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := common.PrintJSON(c.OutOrStdout(), report); err != nil {
					return err
				}
			} else {
				printText(c, report)
			}
			if report.Summary.Error > 0 {
				return fmt.Errorf("doctor found %d invalid files", report.Summary.Error)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")
	cmd.Flags().StringVar(&sessionID, "session", "", "Validate a single session")
	return cmd
}

func printText(c *cobra.Command, report *integrated.IntegratedReport) {
	out := c.OutOrStdout()
	ids := make([]string, 0, len(report.Sessions))
	for id := range report.Sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		for _, f := range report.Sessions[id].Files {
			fmt.Fprintf(out, "%-5s %s/%s\n", f.Status(), id, f.File)
			for _, is := range f.Issues {
				if is.Type == "ok" {
					continue
				}
				fmt.Fprintf(out, "      %s %s: %s\n", is.Type, is.Field, is.Message)
			}
		}
	}
	s := report.Summary
	fmt.Fprintf(out, "sessions=%d files=%d ok=%d warn=%d error=%d\n", s.Sessions, s.Files, s.OK, s.Warn, s.Error)
}
