// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/busctl/internal/config"
	"firestige.xyz/busctl/internal/log"
	"firestige.xyz/busctl/internal/reporter"
	"firestige.xyz/busctl/internal/reporter/console"
	"firestige.xyz/busctl/internal/reporter/kafka"
	"firestige.xyz/busctl/internal/session"
)

var (
	// Global flags
	configFile string

	globalCfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "busctl",
	Short: "busctl - serial bus gateway inspection tool",
	Long: `busctl talks to a bus gateway over a serial link.

It retrieves the bus routing table (nodes, port tables and services),
streams live bus traffic decoded into messages, and discovers which
serial ports carry a gateway.`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults apply when omitted)")

	registerReporters()

	rootCmd.AddCommand(rtbCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(validateCmd)
}

func registerReporters() {
	for name, f := range map[string]reporter.Factory{
		console.Name: console.New,
		kafka.Name:   kafka.New,
	} {
		if err := reporter.Register(name, f); err != nil {
			exitWithError("failed to register reporter", err)
		}
	}
}

func loadConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := log.Init(cfg.Log); err != nil {
		return err
	}
	globalCfg = cfg
	return nil
}

// newClient builds a session client for port. The link is opened and
// closed by each session.
func newClient(port string) (*session.Client, error) {
	link, err := openLink(port, globalCfg.Serial)
	if err != nil {
		return nil, err
	}
	scfg, err := session.ConfigFrom(globalCfg)
	if err != nil {
		return nil, err
	}
	logger := log.GetLogger().WithField("port", port)
	return session.NewClient(link, session.WithConfig(scfg), session.WithLogger(logger)), nil
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
