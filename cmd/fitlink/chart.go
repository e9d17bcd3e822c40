package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cli/browser"
	"github.com/spf13/cobra"
	"github.com/srg/fitlink/internal/chart"
)

var (
	chartView   string
	chartSeed   int
	chartOut    string
	chartOpen   bool
	chartFormat string
)

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Render the activity tracker chart",
	Long: `Generates the day, week or month tracker series. Prints it as text or JSON,
or renders an HTML chart with --out and opens it in the browser with --open.`,
	Example: `  fitlink chart --view day
  fitlink chart --view month --seed 12 --format json
  fitlink chart --out tracker.html --open`,
	Args: cobra.NoArgs,
	RunE: runChart,
}

func init() {
	chartCmd.Flags().StringVar(&chartView, "view", "week", "Chart view (day, week, month)")
	chartCmd.Flags().IntVar(&chartSeed, "seed", 0, "Series seed (default from config, 7)")
	chartCmd.Flags().StringVarP(&chartOut, "out", "o", "", "Write an HTML chart to this file")
	chartCmd.Flags().BoolVar(&chartOpen, "open", false, "Open the HTML chart in the browser")
	chartCmd.Flags().StringVarP(&chartFormat, "format", "f", "text", "Output format (text, json)")
}

func runChart(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	view, err := chart.ParseView(chartView)
	if err != nil {
		return err
	}
	seed := cfg.API.ChartSeed
	if cmd.Flags().Changed("seed") {
		seed = chartSeed
	}
	series := chart.Generate(view, seed)
	out := cmd.OutOrStdout()

	if chartOut != "" || chartOpen {
		path, err := writeChartHTML(series, chartOut)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Chart written to %s\n", path)
		if chartOpen {
			logger.WithField("path", path).Debug("Opening chart in browser")
			return browser.OpenFile(path)
		}
		return nil
	}

	switch chartFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(series)
	case "text":
		values := make([]string, len(series.Values))
		for i, v := range series.Values {
			values[i] = strconv.Itoa(v)
		}
		fmt.Fprintf(out, "View:    %s\n", series.View)
		fmt.Fprintf(out, "Seed:    %d\n", series.Seed)
		fmt.Fprintf(out, "Average: %d / session\n", series.Average)
		fmt.Fprintf(out, "Values:  %s\n", strings.Join(values, " "))
		fmt.Fprintf(out, "Labels:  %s\n", strings.Join(series.Labels, " "))
		return nil
	default:
		return fmt.Errorf("invalid format: %s (must be text or json)", chartFormat)
	}
}

func writeChartHTML(series chart.Series, path string) (string, error) {
	var (
		f   *os.File
		err error
	)
	if path == "" {
		f, err = os.CreateTemp("", "fitlink-chart-*.html")
	} else {
		f, err = os.Create(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to create chart file: %w", err)
	}
	defer f.Close()

	if err := series.Render(f, "Activity tracker"); err != nil {
		return "", fmt.Errorf("failed to render chart: %w", err)
	}
	return f.Name(), nil
}
