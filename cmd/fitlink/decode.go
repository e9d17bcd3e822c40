package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/fitlink/internal/gatt"
	"github.com/srg/fitlink/internal/insights"
)

var decodeFormat string

var decodeCmd = &cobra.Command{
	Use:   "decode <heart-rate|steps|battery> <hex>...",
	Short: "Decode a raw characteristic payload",
	Long: `Decodes a payload captured from a heart rate measurement, step counter or
battery level characteristic. Hex bytes may be separated by spaces, ':' or
'-' and may carry a 0x prefix.`,
	Example: `  fitlink decode heart-rate 00 58
  fitlink decode heart-rate 0x01:2c:01
  fitlink decode steps b0040000 --format json`,
	Args:      cobra.MinimumNArgs(2),
	ValidArgs: []string{"heart-rate", "steps", "battery"},
	RunE:      runDecode,
}

func init() {
	decodeCmd.Flags().StringVarP(&decodeFormat, "format", "f", "text", "Output format (text, json)")
}

func runDecode(cmd *cobra.Command, args []string) error {
	payload, err := parseHex(strings.Join(args[1:], ""))
	if err != nil {
		return err
	}
	if decodeFormat != "text" && decodeFormat != "json" {
		return fmt.Errorf("invalid format: %s (must be text or json)", decodeFormat)
	}

	out := cmd.OutOrStdout()
	switch args[0] {
	case "heart-rate", "hr":
		r, err := gatt.DecodeHeartRate(payload)
		if err != nil {
			return err
		}
		if decodeFormat == "json" {
			return writeDecodedJSON(out, map[string]interface{}{"bpm": r.BPM})
		}
		tip := insights.HeartRate(&r.BPM)
		fmt.Fprintf(out, "Heart rate: %d bpm\n%s: %s\n", r.BPM, tip.Title, tip.Text)
	case "steps":
		r, err := gatt.DecodeStepCount(payload)
		if err != nil {
			return err
		}
		if decodeFormat == "json" {
			return writeDecodedJSON(out, map[string]interface{}{"steps": r.Count})
		}
		tip := insights.Steps(&r.Count)
		fmt.Fprintf(out, "Steps: %d\n%s: %s\n", r.Count, tip.Title, tip.Text)
	case "battery":
		r, err := gatt.DecodeBatteryLevel(payload)
		if err != nil {
			return err
		}
		if decodeFormat == "json" {
			return writeDecodedJSON(out, map[string]interface{}{"battery": r.Percent})
		}
		fmt.Fprintf(out, "Battery: %d%%\n", r.Percent)
	default:
		return fmt.Errorf("unknown characteristic %q (want heart-rate, steps or battery)", args[0])
	}
	return nil
}

func writeDecodedJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseHex accepts "0x00 58", "00:58", "00-58" and "0058".
func parseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "-", "", "0x", "", "0X", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}
	return b, nil
}
