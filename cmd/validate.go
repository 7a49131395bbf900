package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/busctl/internal/config"
	"firestige.xyz/busctl/internal/reporter"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load the configuration file given with -c, apply defaults, validate
every section and initialize the enabled reporters without starting them.

Examples:
  busctl -c busctl.yml validate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(globalCfg, cmd.OutOrStdout())
	},
}

func runValidate(cfg *config.Config, out io.Writer) error {
	fanout, err := reporter.Build(cfg.EnabledReporters())
	if err != nil {
		fmt.Fprintf(out, "INVALID: %v\n", err)
		return err
	}
	defer fanout.Stop(context.Background())

	fmt.Fprintf(out, "VALID: serial %d baud %d%s%d, table timeout %s, inspect %s encoding, %d reporter(s)\n",
		cfg.Serial.BaudRate,
		cfg.Serial.DataBits,
		parityLetter(cfg.Serial.Parity),
		cfg.Serial.StopBits,
		cfg.Session.TableTimeout,
		cfg.Inspect.Encoding,
		len(fanout.Reporters()),
	)
	return nil
}

func parityLetter(p string) string {
	switch p {
	case "odd":
		return "O"
	case "even":
		return "E"
	case "mark":
		return "M"
	case "space":
		return "S"
	default:
		return "N"
	}
}
