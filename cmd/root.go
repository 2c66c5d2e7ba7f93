// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/wsinspect/internal/daemon"
)

var (
	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wsinspect",
	Short: "wsinspect - WebSocket frame capture and reassembly for HTTP debugging proxies",
	Long: `wsinspect observes WebSocket frames, reassembles fragmented messages and
surfaces every completed message as a synthetic HTTP request, so it can be
inspected with ordinary request tooling.

Frames come from a live intercepting relay (daemon) or from a packet capture
(replay). Synthetic requests are handed to an injector: console, proxy or kafka.`,
	Version:       daemon.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults and WSINSPECT_* environment when empty)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(reloadCmd)
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
