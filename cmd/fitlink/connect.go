package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/fitlink/internal/telemetry"
)

var (
	connectDuration       time.Duration
	connectService        string
	connectCharacteristic string
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to a heart rate device and stream readings",
	Long: `Discovers the first device advertising the heart rate service, connects,
subscribes to heart rate (and the custom step characteristic when given),
reads the battery level once and prints every reading until interrupted.`,
	Example: `  fitlink connect
  fitlink connect --service fff0 --characteristic fff1 --duration 5m
  fitlink connect --simulate --duration 10s`,
	Args: cobra.NoArgs,
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().DurationVarP(&connectDuration, "duration", "d", 0, "Stream duration (0 until interrupted)")
	connectCmd.Flags().StringVar(&connectService, "service", "", "Custom service UUID carrying the step counter")
	connectCmd.Flags().StringVar(&connectCharacteristic, "characteristic", "", "Custom step counter characteristic UUID")
}

func runConnect(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("service") {
		cfg.Bluetooth.Selector.CustomServiceID = connectService
	}
	if cmd.Flags().Changed("characteristic") {
		cfg.Bluetooth.Selector.CustomCharacteristicID = connectCharacteristic
	}

	out := cmd.OutOrStdout()
	useColor(out)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if connectDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, connectDuration)
		defer cancel()
	}

	console := newConsoleSink(out)
	rt, err := newRuntime(ctx, cfg, logger, console)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := connectWithProgress(ctx, rt.coord, cfg.Bluetooth.DiscoveryTimeout, cmd); err != nil {
		return err
	}
	printConnected(cmd, rt.coord)

	unwatch := rt.coord.WatchStatus(func(s telemetry.Status) {
		if s.Kind == telemetry.StatusDisconnected {
			console.status(s)
		}
	})
	defer unwatch()

	<-ctx.Done()
	logger.WithField("cause", context.Cause(ctx)).Debug("Stopping stream")
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil
	}
	return ctx.Err()
}

// connectWithProgress runs one connect, showing the status as a progress
// line when stdout is a terminal.
func connectWithProgress(ctx context.Context, coord *telemetry.Coordinator, timeout time.Duration, cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	if !isTerminal(out) {
		return coord.Connect(ctx)
	}

	progress := NewCountdownProgressPrinter(out, "Bluetooth", "Requesting device", timeout)
	unwatch := coord.WatchStatus(func(s telemetry.Status) {
		progress.SetPhase(strings.TrimSuffix(s.Text, "..."))
	})
	progress.Start()
	err := coord.Connect(ctx)
	progress.Stop()
	unwatch()
	return err
}

func printConnected(cmd *cobra.Command, coord *telemetry.Coordinator) {
	out := cmd.OutOrStdout()
	statusColor.Fprintln(out, coord.Status().Text)

	if subs := coord.Subscriptions(); len(subs) > 0 {
		fmt.Fprintf(out, "Streaming: %s\n", strings.Join(subs, ", "))
	}
	if level, ok := coord.Battery(); ok {
		fmt.Fprintf(out, "Battery: %d%%\n", level)
	}
	for _, err := range coord.ResolutionErrors() {
		warnColor.Fprintf(out, "Warning: %v\n", err)
	}
}
