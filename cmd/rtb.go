package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/busctl/internal/render"
)

var (
	rtbPort   string
	rtbOutput string
)

var rtbCmd = &cobra.Command{
	Use:   "rtb",
	Short: "Retrieve the bus routing table",
	Long: `Send the routing table request to the gateway and print the decoded
nodes, their port tables and services.

Examples:
  busctl rtb -p /dev/ttyUSB0
  busctl rtb -p /dev/ttyUSB0 -o yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := render.ParseFormat(rtbOutput)
		if err != nil {
			return err
		}
		client, err := newClient(rtbPort)
		if err != nil {
			return err
		}
		return runRtb(cmd.Context(), client, cmd.OutOrStdout(), format)
	},
}

func init() {
	rtbCmd.Flags().StringVarP(&rtbPort, "port", "p", "", "serial port of the gateway (required)")
	rtbCmd.Flags().StringVarP(&rtbOutput, "output", "o", "text", "output format: text|json|yaml")
	rtbCmd.MarkFlagRequired("port")
}

func runRtb(ctx context.Context, client TableClient, out io.Writer, format render.Format) error {
	table, err := client.RoutingTable(ctx)
	if err != nil {
		return fmt.Errorf("failed to read routing table: %w", err)
	}
	return render.Table(out, format, table)
}
