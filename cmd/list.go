package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/busctl/internal/discover"
	"firestige.xyz/busctl/internal/log"
	"firestige.xyz/busctl/internal/render"
	"firestige.xyz/busctl/internal/transport"
	"firestige.xyz/busctl/internal/transport/serial"
)

var (
	listType   string
	listOutput string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Find serial ports that carry a given module type",
	Long: `Probe every serial port with the discover request and print the ports
whose reply names the requested module type. Ports are probed
concurrently; each one is closed afterwards.

Examples:
  busctl list --type gate
  busctl list --type gate -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := render.ParseFormat(listOutput)
		if err != nil {
			return err
		}
		ports, err := listPorts()
		if err != nil {
			return err
		}
		prober := discover.NewProber(func(name string) (transport.Transport, error) {
			return openLink(name, globalCfg.Serial)
		}, discover.WithTimeout(globalCfg.Session.DiscoverTimeout))

		return runList(cmd.Context(), prober, ports, listType, cmd.OutOrStdout(), format)
	},
}

func init() {
	listCmd.Flags().StringVarP(&listType, "type", "t", "", "module type to look for, e.g. gate (required)")
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "text", "output format: text|json|yaml")
	listCmd.MarkFlagRequired("type")
}

func runList(ctx context.Context, finder PortFinder, ports []serial.PortInfo, moduleType string, out io.Writer, format render.Format) error {
	if moduleType == "" {
		return fmt.Errorf("module type is required")
	}
	names := make([]string, 0, len(ports))
	for _, p := range ports {
		names = append(names, p.Name)
	}
	log.GetLogger().WithFields(map[string]interface{}{
		"ports": len(names),
		"type":  moduleType,
	}).Debug("probing serial ports")

	return render.Names(out, format, finder.Find(ctx, names, moduleType))
}
