package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/srg/fitlink/internal/telemetry"
)

var (
	planProfile telemetry.Profile
	planURL     string
	planConnect bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Request a workout plan from the plan service",
	Long: `Sends the profile and the collected metrics to the plan service. Without
--connect no device is read and the metrics are sent as null.`,
	Example: `  fitlink plan --age 35 --goal weight_loss
  fitlink plan --connect --simulate --url http://127.0.0.1:8000`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().IntVar(&planProfile.Age, "age", 0, "Age in years (default from config, 30)")
	planCmd.Flags().StringVar(&planProfile.Gender, "gender", "", "Gender (default from config, Male)")
	planCmd.Flags().Float64Var(&planProfile.Height, "height", 0, "Height in cm (default from config, 170)")
	planCmd.Flags().Float64Var(&planProfile.Weight, "weight", 0, "Weight in kg (default from config, 70)")
	planCmd.Flags().StringVar(&planProfile.FitnessLevel, "level", "", "Fitness level (default from config, beginner)")
	planCmd.Flags().StringVar(&planProfile.FitnessGoal, "goal", "", "Fitness goal (default from config, general_fitness)")
	planCmd.Flags().StringVar(&planURL, "url", "", "Plan service base URL (default from config)")
	planCmd.Flags().BoolVar(&planConnect, "connect", false, "Connect to a device first and include its readings")
}

func runPlan(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if planURL != "" {
		cfg.Plan.BaseURL = planURL
	}

	out := cmd.OutOrStdout()
	useColor(out)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if planConnect {
		if err := connectWithProgress(ctx, rt.coord, cfg.Bluetooth.DiscoveryTimeout, cmd); err != nil {
			return err
		}
		printConnected(cmd, rt.coord)
	}

	var progress *ProgressPrinter
	if isTerminal(out) {
		progress = NewProgressPrinter(out, "Plan", "Generating plan")
		progress.Start()
	}
	profile := planProfile
	resp, err := rt.coord.GeneratePlan(ctx, &profile)
	if progress != nil {
		progress.Stop()
	}

	status := rt.coord.Status()
	if err != nil {
		warnColor.Fprintln(out, status.Text)
		return err
	}
	statusColor.Fprintln(out, status.Text)

	if resp.HasPlan() {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, resp.Plan, "", "  "); err != nil {
			pretty.Reset()
			pretty.Write(resp.Plan)
		}
		fmt.Fprintln(out, pretty.String())
	}
	return nil
}
