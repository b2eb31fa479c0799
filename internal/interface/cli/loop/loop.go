package loop

import (
	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/deestage/internal/application/dto"
	"github.com/YoshitsuguKoike/deestage/internal/interface/cli/common"
)

// NewCommand creates the loop command group
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loop",
		Short: "Drive the bounded continue/stop cycle of a session",
	}
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newErrorCmd())
	cmd.AddCommand(newResetErrorsCmd())
	return cmd
}

func newCheckCmd() *cobra.Command {
	var exitCode bool

	cmd := &cobra.Command{
		Use:   "check <session-id>",
		Short: "Stop the loop or count one more iteration and print the next step",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			container, err := common.InitializeContainer()
			if err != nil {
				return err
			}
			decision, err := container.Loop.CheckAndAdvance(c.Context(), args[0])
			if err != nil {
				return err
			}
			if err := common.PrintJSON(c.OutOrStdout(), decision); err != nil {
				return err
			}
			if exitCode && decision.Action == dto.LoopExit {
				return &StoppedError{Reason: decision.Reason}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "Return a non-zero status when the loop stops")
	return cmd
}

func newStopCmd() *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "stop <session-id>",
		Short: "Stop the loop manually",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			container, err := common.InitializeContainer()
			if err != nil {
				return err
			}
			ls, err := container.Loop.ExitManually(c.Context(), args[0], note)
			if err != nil {
				return err
			}
			return common.PrintJSON(c.OutOrStdout(), ls)
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "Reason recorded with the stop")
	return cmd
}

func newErrorCmd() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "error <session-id>",
		Short: "Count one failed iteration",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			container, err := common.InitializeContainer()
			if err != nil {
				return err
			}
			ls, err := container.Loop.RecordError(c.Context(), args[0], message)
			if err != nil {
				return err
			}
			return common.PrintJSON(c.OutOrStdout(), ls)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "Error description")
	return cmd
}

func newResetErrorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-errors <session-id>",
		Short: "Clear the consecutive error counter",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			container, err := common.InitializeContainer()
			if err != nil {
				return err
			}
			ls, err := container.Loop.ResetErrors(c.Context(), args[0])
			if err != nil {
				return err
			}
			return common.PrintJSON(c.OutOrStdout(), ls)
		},
	}
}

// StoppedError is returned by `loop check --exit-code` when the loop stopped
type StoppedError struct {
	Reason string
}

func (e *StoppedError) Error() string {
	return "loop stopped: " + e.Reason
}
