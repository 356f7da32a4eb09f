// Command machinectl runs statechart definitions from YAML files.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var (
		debug    bool
		stateDir string
		format   string
	)

	root := &cobra.Command{
		Use:           "machinectl",
		Short:         "Run, drive and visualize statechart definitions",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.Context(), settings{
				debug:    debug,
				stateDir: stateDir,
				format:   format,
			})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&stateDir, "state-dir", "", "Snapshot directory (overrides MACHINECTL_STATE_DIR)")
	root.PersistentFlags().StringVar(&format, "format", "", "Snapshot format: json or yaml (overrides MACHINECTL_FORMAT)")

	root.AddCommand(runCmd(a))
	root.AddCommand(sendCmd(a))
	root.AddCommand(dotCmd(a))
	return root
}
