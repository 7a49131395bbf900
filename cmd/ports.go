package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/busctl/internal/render"
	"firestige.xyz/busctl/internal/transport/serial"
)

var portsOutput string

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports with their USB details",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := render.ParseFormat(portsOutput)
		if err != nil {
			return err
		}
		return runPorts(listPorts, cmd.OutOrStdout(), format)
	},
}

func init() {
	portsCmd.Flags().StringVarP(&portsOutput, "output", "o", "text", "output format: text|json|yaml")
}

func runPorts(list func() ([]serial.PortInfo, error), out io.Writer, format render.Format) error {
	ports, err := list()
	if err != nil {
		return err
	}
	return render.Ports(out, format, ports)
}
