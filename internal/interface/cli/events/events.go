package events

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/deestage/internal/domain/timeline"
	"github.com/YoshitsuguKoike/deestage/internal/interface/cli/common"
)

// NewCommand creates the events command group
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Query, trim and score the session timeline",
	}
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newTrimCmd())
	cmd.AddCommand(newReliabilityCmd())
	return cmd
}

func newListCmd() *cobra.Command {
	var filter timeline.Filter

	cmd := &cobra.Command{
		Use:   "list <session-id>",
		Short: "Print timeline events as NDJSON, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if filter.Limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			container, err := common.InitializeContainer()
			if err != nil {
				return err
			}
			events, err := container.Workflow.Events(c.Context(), args[0], filter)
			if err != nil {
				return err
			}
			return common.PrintNDJSON(c.OutOrStdout(), events)
		},
	}
	cmd.Flags().StringVar(&filter.Type, "type", "", "Only events of this type")
	cmd.Flags().StringVar(&filter.Category, "category", "", "Only events of this category")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "Only the most recent N events")
	return cmd
}

func newTrimCmd() *cobra.Command {
	var maxCount int

	cmd := &cobra.Command{
		Use:   "trim <session-id>",
		Short: "Keep only the most recent events",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			container, err := common.InitializeContainer()
			if err != nil {
				return err
			}
			dropped, err := container.Workflow.Trim(c.Context(), args[0], maxCount)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "trimmed %d events\n", dropped)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxCount, "max", 0, "Events to keep (default timeline_max_events)")
	return cmd
}

func newReliabilityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reliability <session-id>",
		Short: "Compute pass@1, pass@3 and consecutive-pass rates per stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			container, err := common.InitializeContainer()
			if err != nil {
				return err
			}
			r, err := container.Workflow.Reliability(c.Context(), args[0])
			if err != nil {
				return err
			}
			return common.PrintJSON(c.OutOrStdout(), r)
		},
	}
}
