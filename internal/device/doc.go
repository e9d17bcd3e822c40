// Package device manages one Bluetooth Low Energy telemetry session over an
// abstract platform Central.
//
// This package implements the session side of the telemetry stack:
//   - Device discovery filtered by advertised services
//   - GATT connection establishment and teardown
//   - Optional heart rate and custom step characteristic resolution
//   - Notification subscriptions with a single-read fallback
//   - Platform disconnect detection
//
// Concrete Centrals live in the goble (go-ble, darwin and linux) and
// simulated (in-process peripheral) subpackages.
package device
