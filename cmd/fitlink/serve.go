package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/srg/fitlink/internal/groutine"
	"github.com/srg/fitlink/internal/statusapi"
	"github.com/srg/fitlink/internal/telemetry"
)

var (
	serveAddr    string
	serveConnect bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve live telemetry over a local HTTP API",
	Long: `Runs the telemetry coordinator behind a local HTTP API. Connects and plan
requests are triggered through POST /api/connect and POST /api/generate-plan;
status, metrics, insights and charts are read through the GET routes.`,
	Example: `  fitlink serve
  fitlink serve --addr 127.0.0.1:9090 --connect
  fitlink serve --simulate --connect`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, "+statusapi.DefaultAddr+")")
	serveCmd.Flags().BoolVar(&serveConnect, "connect", false, "Connect to a device on startup")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.API.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	unwatch := rt.coord.WatchStatus(func(s telemetry.Status) {
		logger.WithField("kind", s.Kind).Info(s.Text)
	})
	defer unwatch()

	groutine.Go(ctx, "telemetry-coordinator", func(ctx context.Context) {
		if err := rt.coord.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, telemetry.ErrClosed) {
			logger.WithField("error", err).Error("Coordinator stopped")
		}
	})
	if serveConnect {
		rt.coord.RequestConnect()
	}

	return statusapi.New(rt.coord, logger, cfg.API.ChartSeed).ListenAndServe(ctx, cfg.API.Addr)
}
