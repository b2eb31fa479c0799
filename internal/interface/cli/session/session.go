package session

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/deestage/internal/application/dto"
	"github.com/YoshitsuguKoike/deestage/internal/domain/failure"
	domain "github.com/YoshitsuguKoike/deestage/internal/domain/session"
	"github.com/YoshitsuguKoike/deestage/internal/interface/cli/common"
)

// ShowOutput is printed by `session show` and `session start`
type ShowOutput struct {
	State *domain.State     `json:"state"`
	Loop  *domain.LoopState `json:"loop,omitempty"`
	Hint  string            `json:"hint"`
}

// NewCommand creates the session command group
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Create and inspect workflow sessions",
	}
	cmd.AddCommand(newStartCmd())
	cmd.AddCommand(newShowCmd())
	return cmd
}

func newStartCmd() *cobra.Command {
	var (
		id           string
		workflowType string
		stages       []string
		feature      string
		meta         []string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Initialize a session (restarting an existing id resets it)",
		RunE: func(c *cobra.Command, _ []string) error {
			metadata, err := parseMetadata(meta)
			if err != nil {
				return err
			}
			if id == "" {
				id = domain.NewID()
			}

			container, err := common.InitializeContainer()
			if err != nil {
				return err
			}
			ctx := c.Context()
			st, err := container.Workflow.Initialize(ctx, dto.InitializeRequest{
				SessionID:    id,
				WorkflowType: workflowType,
				Stages:       stages,
				Feature:      feature,
				Metadata:     metadata,
			})
			if err != nil {
				return err
			}
			ls, err := container.Loop.Read(ctx, id)
			if err != nil {
				return err
			}
			return common.PrintJSON(c.OutOrStdout(), ShowOutput{State: st, Loop: ls, Hint: container.Workflow.Hint(st).String()})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Session id (generated when empty)")
	cmd.Flags().StringVar(&workflowType, "type", "standard", "Workflow type from the registry")
	cmd.Flags().StringSliceVar(&stages, "stages", nil, "Stage list overriding the template, e.g. DEV,REVIEW,TEST")
	cmd.Flags().StringVar(&feature, "feature", "", "Feature name recorded on the session")
	cmd.Flags().StringArrayVar(&meta, "meta", nil, "Metadata entry key=value (repeatable)")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show session state, loop state and the next step",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			container, err := common.InitializeContainer()
			if err != nil {
				return err
			}
			ctx := c.Context()
			st, err := container.Workflow.Read(ctx, args[0])
			if err != nil {
				return err
			}
			out := ShowOutput{State: st, Hint: container.Workflow.Hint(st).String()}
			ls, err := container.Loop.Read(ctx, args[0])
			switch {
			case err == nil:
				out.Loop = ls
			case !failure.IsNotFound(err):
				return err
			}
			return common.PrintJSON(c.OutOrStdout(), out)
		},
	}
}

func parseMetadata(entries []string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		k, v, ok := strings.Cut(e, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --meta %q: expected key=value", e)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}
