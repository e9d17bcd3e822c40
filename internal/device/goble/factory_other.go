//go:build !darwin && !linux

package goble

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"
	"github.com/srg/fitlink/internal/device"
)

func newHostDevice() (ble.Device, error) {
	return nil, fmt.Errorf("%w: no BLE host support on %s", device.ErrBluetoothOff, runtime.GOOS)
}
