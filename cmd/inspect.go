package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/busctl/internal/log"
	"firestige.xyz/busctl/internal/metrics"
	"firestige.xyz/busctl/internal/protocol/inspect"
	"firestige.xyz/busctl/internal/reporter"
)

var (
	inspectPort        string
	inspectNoHandshake bool
	inspectEncoding    string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Stream live bus traffic",
	Long: `Put the gateway in inspect mode and decode every bus message it
forwards. Messages go to the configured reporters (console by default,
Kafka optionally) until interrupted.

Examples:
  busctl inspect -p /dev/ttyUSB0
  busctl inspect -p /dev/ttyUSB0 --no-handshake --encoding binary`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("no-handshake") {
			globalCfg.Inspect.Handshake = !inspectNoHandshake
		}
		if cmd.Flags().Changed("encoding") {
			if _, err := inspect.ParseEncoding(inspectEncoding); err != nil {
				return err
			}
			globalCfg.Inspect.Encoding = inspectEncoding
		}

		client, err := newClient(inspectPort)
		if err != nil {
			return err
		}

		fanout, err := reporter.Build(globalCfg.EnabledReporters())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if globalCfg.Metrics.Enabled {
			srv := metrics.NewServer(globalCfg.Metrics.Listen, globalCfg.Metrics.Path)
			if err := srv.Start(ctx); err != nil {
				return err
			}
			defer srv.Stop(context.Background())
		}

		return runInspect(ctx, client, fanout)
	},
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectPort, "port", "p", "", "serial port of the gateway (required)")
	inspectCmd.Flags().BoolVar(&inspectNoHandshake, "no-handshake", false, "skip the init/start exchange")
	inspectCmd.Flags().StringVar(&inspectEncoding, "encoding", "hex", "inspect frame encoding: hex|binary")
	inspectCmd.MarkFlagRequired("port")
}

// runInspect streams until ctx ends or the link goes away.
func runInspect(ctx context.Context, client InspectClient, fanout *reporter.Fanout) error {
	if err := fanout.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := fanout.Stop(context.Background()); err != nil {
			log.GetLogger().WithError(err).Warn("failed to stop reporters")
		}
	}()

	sess, first, err := client.Inspect(ctx, func(m inspect.Message) {
		_ = fanout.Report(ctx, m)
	})
	if err != nil {
		return fmt.Errorf("failed to start inspect: %w", err)
	}
	log.GetLogger().WithField("command", metrics.CommandLabel(first.Command)).Info("inspect stream started")

	select {
	case <-ctx.Done():
		if err := sess.Stop(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	case <-sess.Done():
		if err := sess.Err(); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("inspect stream ended: %w", err)
		}
		return nil
	}
}
