package cmd

import (
	"fmt"
	"io"
	"syscall"

	"github.com/spf13/cobra"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload configuration",
	Long: `Ask the running daemon to reload its configuration (SIGHUP).

Log level/format and the drain interval apply immediately; other changes
are reported by the daemon as requiring a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctl, err := newController(reloadPIDFile)
		if err != nil {
			return err
		}
		return runReload(ctl, cmd.OutOrStdout())
	},
}

var reloadPIDFile string

func init() {
	reloadCmd.Flags().StringVarP(&reloadPIDFile, "pidfile", "p", "", "PID file path")
}

func runReload(ctl Controller, out io.Writer) error {
	if _, err := ctl.Signal(syscall.SIGHUP); err != nil {
		return fmt.Errorf("failed to reload: %w", err)
	}
	fmt.Fprintln(out, "✓ Configuration reload requested")
	return nil
}
