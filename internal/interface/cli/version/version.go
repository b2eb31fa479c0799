package version

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/deestage/internal/buildinfo"
)

func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display version, build information, and runtime details",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "deestage version %s\n", buildinfo.GetVersion())
			fmt.Fprintf(out, "  Go version:    %s\n", runtime.Version())
			fmt.Fprintf(out, "  OS/Arch:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
