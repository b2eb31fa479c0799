package stage

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/deestage/internal/application/dto"
	"github.com/YoshitsuguKoike/deestage/internal/interface/cli/common"
)

// NewCommand creates the stage command group
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Start stages and report their outcomes",
	}
	cmd.AddCommand(newStartCmd())
	cmd.AddCommand(newReportCmd())
	return cmd
}

func newStartCmd() *cobra.Command {
	var executor string

	cmd := &cobra.Command{
		Use:   "start <session-id> <stage>",
		Short: "Mark a stage active for its executor",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			container, err := common.InitializeContainer()
			if err != nil {
				return err
			}
			st, err := container.Workflow.StartStage(c.Context(), dto.StartStageRequest{
				SessionID: args[0],
				Stage:     args[1],
				Executor:  executor,
			})
			if err != nil {
				return err
			}
			return common.PrintJSON(c.OutOrStdout(), st)
		},
	}
	cmd.Flags().StringVar(&executor, "executor", "", "Executor name (defaults to the stage definition)")
	return cmd
}

func newReportCmd() *cobra.Command {
	var (
		verdict string
		message string
		file    string
	)

	cmd := &cobra.Command{
		Use:   "report <session-id> <stage>",
		Short: "Record an executor report; reads the report from --message, --file or stdin",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			text, err := readReport(c, message, file, verdict)
			if err != nil {
				return err
			}
			container, err := common.InitializeContainer()
			if err != nil {
				return err
			}
			resp, err := container.Workflow.ReportOutcome(c.Context(), dto.ReportOutcomeRequest{
				SessionID: args[0],
				Stage:     args[1],
				Report:    text,
				Verdict:   verdict,
			})
			if err != nil {
				return err
			}
			return common.PrintJSON(c.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&verdict, "verdict", "", "Explicit verdict: pass, fail, reject or issues")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Report text")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the report from a file ('-' for stdin)")
	return cmd
}

func readReport(c *cobra.Command, message, file, verdict string) (string, error) {
	switch {
	case message != "":
		return message, nil
	case file == "-":
		data, err := io.ReadAll(c.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read report from stdin: %w", err)
		}
		return string(data), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read report: %w", err)
		}
		return string(data), nil
	case verdict != "":
		return "", nil
	}
	return "", fmt.Errorf("a report is required: use --message, --file or --verdict")
}
