package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/fitlink/internal/device"
	"github.com/srg/fitlink/internal/gatt"
	"github.com/srg/fitlink/internal/planapi"
)

// FormatUserError renders err for the terminal.
func FormatUserError(err error) string {
	var serr *device.SessionError
	if errors.As(err, &serr) {
		switch serr.Kind {
		case device.CapabilityUnavailable:
			return "Bluetooth is not available on this host (is the adapter present and powered on?)"
		case device.DiscoveryFailed:
			if errors.Is(err, context.DeadlineExceeded) {
				return "no matching heart rate device found before the discovery timeout"
			}
			return fmt.Sprintf("device discovery failed: %v", unwrapOnce(serr))
		case device.ConnectionFailed:
			return fmt.Sprintf("could not connect to the device: %v", unwrapOnce(serr))
		}
		return serr.Error()
	}

	if errors.Is(err, planapi.ErrPlanRequestFailed) {
		return fmt.Sprintf("plan generation failed: %v", err)
	}
	if errors.Is(err, gatt.ErrDecode) {
		return fmt.Sprintf("invalid payload: %v", err)
	}
	return err.Error()
}

func unwrapOnce(serr *device.SessionError) error {
	if serr.Err == nil {
		return serr
	}
	return serr.Err
}
