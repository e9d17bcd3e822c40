package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/fitlink/internal/bledb"
	"github.com/srg/fitlink/internal/device"
)

// ----------------------------
// Peripheral
// ----------------------------

type peripheral struct {
	dev    ble.Device
	addr   ble.Addr
	name   string
	logger *logrus.Logger
}

func (p *peripheral) ID() string   { return p.addr.String() }
func (p *peripheral) Name() string { return p.name }

// Connect dials the peripheral and discovers its full GATT profile.
func (p *peripheral) Connect(ctx context.Context) (device.GATTClient, error) {
	address := p.addr.String()

	p.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := p.dev.Dial(ctx, p.addr)
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
	}

	p.logger.WithField("address", address).Debug("Discovering services and characteristics...")
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			p.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	c := newConnection(client, profile, p.logger)
	p.logger.WithFields(logrus.Fields{
		"address":  address,
		"services": len(c.services),
	}).Info("BLE device connected successfully")
	return c, nil
}

// ----------------------------
// Connection
// ----------------------------

type gattService struct {
	uuid            string
	characteristics map[string]*ble.Characteristic
}

// connection implements device.GATTClient over a ble.Client.
type connection struct {
	client   ble.Client
	services map[string]*gattService
	logger   *logrus.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func newConnection(client ble.Client, profile *ble.Profile, logger *logrus.Logger) *connection {
	c := &connection{
		client:   client,
		services: indexProfile(profile),
		logger:   logger,
		done:     make(chan struct{}),
	}

	// Relay the platform disconnect signal; not every backend exposes it.
	if notifier, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		go func() {
			<-notifier.Disconnected()
			c.markClosed()
		}()
	} else {
		logger.Debug("Client does not support Disconnected() channel")
	}
	return c
}

// indexProfile keys services and characteristics by normalized UUID.
func indexProfile(profile *ble.Profile) map[string]*gattService {
	services := make(map[string]*gattService)
	if profile == nil {
		return services
	}
	for _, svc := range profile.Services {
		svcUUID := bledb.NormalizeUUID(svc.UUID.String())
		gs, ok := services[svcUUID]
		if !ok {
			gs = &gattService{uuid: svcUUID, characteristics: make(map[string]*ble.Characteristic)}
			services[svcUUID] = gs
		}
		for _, ch := range svc.Characteristics {
			gs.characteristics[bledb.NormalizeUUID(ch.UUID.String())] = ch
		}
	}
	return services
}

func (c *connection) Characteristic(_ context.Context, service, uuid string) (device.Characteristic, error) {
	svcUUID := bledb.NormalizeUUID(service)
	charUUID := bledb.NormalizeUUID(uuid)

	svc, ok := c.services[svcUUID]
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{svcUUID}}
	}
	ch, ok := svc.characteristics[charUUID]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{svcUUID, charUUID}}
	}
	return &characteristic{conn: c, char: ch, uuid: charUUID}, nil
}

func (c *connection) Disconnected() <-chan struct{} {
	return c.done
}

// Close cancels the connection. Safe to call more than once.
func (c *connection) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}
	err := NormalizeError(c.client.CancelConnection())
	c.markClosed()
	if err != nil {
		c.logger.WithField("error", err).Warn("BLE device disconnected with errors")
		return err
	}
	c.logger.Info("BLE device disconnected successfully")
	return nil
}

func (c *connection) markClosed() {
	c.closeOnce.Do(func() { close(c.done) })
}
