// Package chart builds the tracker series shown next to the live metrics
// and renders them with go-echarts.
package chart

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// DefaultSeed is used when no exercise seed is given.
const DefaultSeed = 7

// View selects the time window of a tracker series.
type View string

const (
	Day   View = "day"
	Week  View = "week"
	Month View = "month"
)

// ParseView accepts "day", "week" or "month". "" is Week.
func ParseView(s string) (View, error) {
	switch v := View(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return Week, nil
	case Day, Week, Month:
		return v, nil
	default:
		return "", fmt.Errorf("unknown chart view %q (want day, week or month)", s)
	}
}

// Series is the data of one tracker view.
type Series struct {
	View    View     `json:"view"`
	Seed    int      `json:"seed"`
	Values  []int    `json:"values"`
	Labels  []string `json:"labels"`
	Average int      `json:"average"`
}

// Generate returns the deterministic series for view and seed.
func Generate(view View, seed int) Series {
	var (
		n      int
		offset int
		labels []string
	)
	switch view {
	case Day:
		n, offset = 24, 0
		labels = []string{"00h", "04h", "08h", "12h", "16h", "20h", "24h"}
	case Month:
		n, offset = 30, 3
		labels = []string{"W1", "W2", "W3", "W4", "W5"}
	default:
		view = Week
		n, offset = 7, 1
		labels = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}
	}

	values := Values(n, seed+offset)
	return Series{
		View:    view,
		Seed:    seed,
		Values:  values,
		Labels:  labels,
		Average: average(values),
	}
}

// Values returns n pseudo-random points in roughly [seed%10, seed%10+60].
func Values(n, seed int) []int {
	out := make([]int, n)
	for i := range out {
		x := math.Abs(math.Sin(float64(i+seed)*12.9898) * 43758.5453)
		frac := x - math.Floor(x)
		out[i] = roundHalfUp(frac*60 + float64(seed%10))
	}
	return out
}

func average(values []int) int {
	if len(values) == 0 {
		return 0
	}
	total := 0
	for _, v := range values {
		total += v
	}
	return roundHalfUp(float64(total) / float64(len(values)))
}

func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

// AxisLabels returns one category per point. The tick labels in Labels are
// spread evenly over the points.
func (s Series) AxisLabels() []string {
	out := make([]string, len(s.Values))
	if len(s.Labels) == 0 {
		return out
	}
	for i := range out {
		if len(out) == 1 {
			out[i] = s.Labels[0]
			break
		}
		idx := i * (len(s.Labels) - 1) / (len(out) - 1)
		out[i] = s.Labels[idx]
	}
	return out
}

// Line builds the echarts line chart of s.
func (s Series) Line(title string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "macarons", PageTitle: title}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("%s view, avg %d / session", s.View, s.Average),
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
	)

	items := make([]opts.LineData, 0, len(s.Values))
	for _, v := range s.Values {
		items = append(items, opts.LineData{Value: v})
	}
	line.SetXAxis(s.AxisLabels()).AddSeries(string(s.View), items)
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return line
}

// Render writes s as a standalone HTML page.
func (s Series) Render(w io.Writer, title string) error {
	return s.Line(title).Render(w)
}
