package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/srg/fitlink/internal/device"
	"github.com/srg/fitlink/internal/gatt"
	"github.com/srg/fitlink/internal/telemetry"
	"golang.org/x/term"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// useColor enables colored output only when w is a terminal.
func useColor(w io.Writer) {
	color.NoColor = !isTerminal(w)
}

var (
	heartColor  = color.New(color.FgRed, color.Bold)
	stepsColor  = color.New(color.FgGreen)
	statusColor = color.New(color.FgCyan)
	warnColor   = color.New(color.FgYellow)
)

// consoleSink prints every reading as one line.
type consoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsoleSink(out io.Writer) *consoleSink {
	return &consoleSink{out: out}
}

func (s *consoleSink) PublishHeartRate(_ device.Identity, r gatt.HeartRateReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	heartColor.Fprintf(s.out, "HR     %3d bpm", r.BPM)
	fmt.Fprintf(s.out, "  (%s)\n", r.Source)
}

func (s *consoleSink) PublishSteps(_ device.Identity, r gatt.StepReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stepsColor.Fprintf(s.out, "Steps  %d", r.Count)
	fmt.Fprintf(s.out, "  (%s)\n", r.Source)
}

func (s *consoleSink) status(st telemetry.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch st.Kind {
	case telemetry.StatusDisconnected, telemetry.StatusBluetoothError, telemetry.StatusPlanFailed:
		warnColor.Fprintln(s.out, st.Text)
	default:
		statusColor.Fprintln(s.out, st.Text)
	}
}
