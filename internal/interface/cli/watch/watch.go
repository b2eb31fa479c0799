package watch

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/deestage/internal/app"
	"github.com/YoshitsuguKoike/deestage/internal/infrastructure/watcher"
	"github.com/YoshitsuguKoike/deestage/internal/interface/cli/common"
)

// ChangeOutput is one line of `watch` output
type ChangeOutput struct {
	SessionID string `json:"session_id"`
	File      string `json:"file"`
	Op        string `json:"op"`
}

// NewCommand creates the watch command
func NewCommand() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream session document changes as NDJSON until interrupted",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg := common.GetGlobalConfig()
			paths := app.ResolvePaths(cfg.Home())

			w, err := watcher.New(paths.Sessions)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Stream(ctx, w, sessionID, json.NewEncoder(c.OutOrStdout()))
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Only report changes of this session")
	return cmd
}

// Stream forwards watcher changes to enc until ctx is done
func Stream(ctx context.Context, w *watcher.Watcher, sessionID string, enc *json.Encoder) error {
	return w.Run(ctx, func(ch watcher.Change) {
		if sessionID != "" && ch.SessionID != sessionID {
			return
		}
		if err := enc.Encode(ChangeOutput{SessionID: ch.SessionID, File: ch.File, Op: ch.Op.String()}); err != nil {
			app.GetLogger().Warn("failed to write change: %v", err)
		}
	})
}
