package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/btlink/internal/client"
	"github.com/danmuck/btlink/internal/dispatch"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newMonitorCmd(opts *globalOptions) *cobra.Command {
	var reconnect bool
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Print every packet and event the daemon sends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("reconnect") {
				opts.cfg.Reconnect = reconnect
			}
			return runMonitor(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&reconnect, "reconnect", false, "reconnect with backoff when the daemon drops the connection")
	return cmd
}

// runMonitor prints messages until ctx ends or, without reconnect, until the
// daemon disconnects.
func runMonitor(ctx context.Context, opts *globalOptions, out io.Writer) error {
	e, err := client.New(opts.cfg.ClientConfig())
	if err != nil {
		return err
	}
	dropped := make(chan uint64, 1)
	e.RegisterHandler(func(_ context.Context, msg dispatch.Message) {
		fmt.Fprintln(out, formatMessage(msg))
		if dd, ok := msg.(dispatch.DaemonDisconnected); ok {
			select {
			case dropped <- dd.Epoch:
			default:
			}
		}
	})

	stopMetrics := serveMetrics(opts.cfg.MetricsAddr, e.Connected)
	defer stopMetrics()

	connect := e.Connect
	if opts.cfg.Reconnect {
		connect = e.ConnectWithRetry
	}
	if err := connect(ctx); err != nil {
		return err
	}
	defer func() {
		_ = e.Disconnect(context.Background())
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("btctl: monitor stopping")
			return nil
		case epoch := <-dropped:
			if !opts.cfg.Reconnect {
				return fmt.Errorf("daemon disconnected (epoch %d)", epoch)
			}
			log.Info().Uint64("epoch", epoch).Msg("btctl: reconnecting")
			if err := e.ConnectWithRetry(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
		}
	}
}
