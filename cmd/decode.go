package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/wsinspect/internal/codec"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <hex>...",
	Short: "Decode a hyphen separated hex payload",
	Long: `Decode a payload in the proxy's hex representation ("7B-22-6B-22-3A-31-7D").
Multiple arguments are joined with '-'. On malformed input the decodable
prefix is printed before the error.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDecode(strings.Join(args, "-"), decodeEscape, cmd.OutOrStdout())
	},
}

var decodeEscape bool

func init() {
	decodeCmd.Flags().BoolVarP(&decodeEscape, "escape", "e", false,
		"print the text escaped for a JSON string")
}

func runDecode(payload string, escape bool, out io.Writer) error {
	text, err := codec.DecodeHexPayload(payload)
	if escape {
		text = codec.EscapeJSONString(text)
	}
	fmt.Fprintln(out, text)
	return err
}
