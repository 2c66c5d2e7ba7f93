package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/wsinspect/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and print the effective result",
	Long: `Load the configuration file (with defaults and WSINSPECT_* environment
overrides applied), validate it, and print the effective configuration as YAML.

Examples:
  wsinspect validate -c /etc/wsinspect/config.yml
  WSINSPECT_RELAY_ENABLED=true wsinspect validate -c config.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(configFile, cmd.OutOrStdout())
	},
}

func runValidate(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}

	data, err := yaml.Marshal(map[string]*config.GlobalConfig{"wsinspect": cfg})
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}

	fmt.Fprintln(out, "# VALID")
	_, err = out.Write(data)
	return err
}
