package cmd

import (
	"fmt"
	"io"
	"syscall"

	"github.com/spf13/cobra"
)

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the wsinspect daemon",
	Long: `Stop the wsinspect daemon gracefully.

Sends SIGTERM to the process recorded in the PID file. The daemon closes the
relay, runs a final drain, flushes pending synthetic requests and exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctl, err := newController(stopPIDFile)
		if err != nil {
			return err
		}
		return runStop(ctl, cmd.OutOrStdout())
	},
}

var stopPIDFile string

func init() {
	stopCmd.Flags().StringVarP(&stopPIDFile, "pidfile", "p", "", "PID file path")
}

func runStop(ctl Controller, out io.Writer) error {
	pid, err := ctl.Signal(syscall.SIGTERM)
	if err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	fmt.Fprintf(out, "✓ Stop signal sent to daemon (pid %d)\n", pid)
	return nil
}
