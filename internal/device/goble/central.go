package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/fitlink/internal/bledb"
	"github.com/srg/fitlink/internal/device"
)

// ----------------------------
// Device Factory
// ----------------------------

// DeviceFactory creates the host ble.Device (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test overrides
var DeviceFactory = newHostDevice

// Provider returns a device.CentralProvider backed by the host adapter. The
// adapter is opened lazily on first use and reused afterwards.
func Provider(logger *logrus.Logger) device.CentralProvider {
	var (
		once    sync.Once
		central *Central
		err     error
	)
	return func() (device.Central, error) {
		once.Do(func() {
			central, err = NewCentral(logger)
		})
		if err != nil {
			return nil, err
		}
		return central, nil
	}
}

// ----------------------------
// Central
// ----------------------------

// Central discovers peripherals with the go-ble scanner.
type Central struct {
	dev    ble.Device
	logger *logrus.Logger
}

// NewCentral opens the host BLE adapter.
func NewCentral(logger *logrus.Logger) (*Central, error) {
	if logger == nil {
		logger = logrus.New()
	}
	dev, err := DeviceFactory()
	if err != nil {
		logger.WithField("error", err).Error("Failed to create BLE device")
		return nil, NormalizeError(err)
	}
	return &Central{dev: dev, logger: logger}, nil
}

// Discover scans until an advertisement matches the filter, then stops the
// scan and returns that peripheral.
func (c *Central) Discover(ctx context.Context, filter device.DiscoveryFilter) (device.Peripheral, error) {
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	seen := hashmap.New[string, *advertisement]()
	var (
		once  sync.Once
		found atomic.Pointer[peripheral]
	)

	handler := func(a ble.Advertisement) {
		adv := newAdvertisement(a)
		if _, dup := seen.GetOrInsert(adv.addr, adv); !dup {
			c.logger.WithFields(logrus.Fields{
				"address":     adv.addr,
				"name":        adv.name,
				"rssi":        adv.rssi,
				"connectable": adv.connectable,
				"services":    adv.services,
			}).Debug("Discovered BLE device")
		}
		if !filter.Matches(adv.services) {
			return
		}
		once.Do(func() {
			found.Store(&peripheral{
				dev:    c.dev,
				addr:   a.Addr(),
				name:   adv.name,
				logger: c.logger,
			})
			cancel()
		})
	}

	err := c.dev.Scan(scanCtx, true, handler)

	c.logger.WithField("devices_seen", seen.Len()).Debug("Scan stopped")
	if p := found.Load(); p != nil {
		return p, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("no device advertising %v: %w", filter.Services, ctxErr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return nil, NormalizeError(err)
	}
	return nil, fmt.Errorf("no device advertising %v", filter.Services)
}

// ----------------------------
// Advertisement
// ----------------------------

type advertisement struct {
	addr        string
	name        string
	rssi        int
	connectable bool
	services    []string
}

func newAdvertisement(a ble.Advertisement) *advertisement {
	return &advertisement{
		addr:        a.Addr().String(),
		name:        a.LocalName(),
		rssi:        a.RSSI(),
		connectable: a.Connectable(),
		services:    uuidStrings(a.Services()),
	}
}

// uuidStrings normalizes go-ble UUIDs.
func uuidStrings(uuids []ble.UUID) []string {
	out := make([]string, 0, len(uuids))
	for _, u := range uuids {
		if n := bledb.NormalizeUUID(u.String()); n != "" {
			out = append(out, n)
		}
	}
	return out
}
