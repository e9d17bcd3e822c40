package goble

import (
	"context"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/srg/fitlink/internal/device"
)

// characteristic implements device.Characteristic over a discovered
// ble.Characteristic.
type characteristic struct {
	conn *connection
	char *ble.Characteristic
	uuid string
}

func (c *characteristic) UUID() string { return c.uuid }

func (c *characteristic) CanNotify() bool {
	return canNotify(c.char.Property)
}

// StartNotifications writes the CCCD. Indications are used when the
// characteristic does not support plain notifications.
func (c *characteristic) StartNotifications(handler func([]byte)) error {
	if !canNotify(c.char.Property) {
		return fmt.Errorf("characteristic %s: notifications %w", c.uuid, device.ErrUnsupported)
	}
	ind := useIndication(c.char.Property)

	// go-ble reuses the buffer after the handler returns
	err := c.conn.client.Subscribe(c.char, ind, func(data []byte) {
		handler(append([]byte(nil), data...))
	})
	return NormalizeError(err)
}

// StopNotifications unsubscribes in both modes; it fails only if both do.
func (c *characteristic) StopNotifications() error {
	errNotify := NormalizeError(c.conn.client.Unsubscribe(c.char, false))
	errIndicate := NormalizeError(c.conn.client.Unsubscribe(c.char, true))
	if errNotify != nil && errIndicate != nil {
		return fmt.Errorf("%s: notify=%v, indicate=%v", c.uuid, errNotify, errIndicate)
	}
	return nil
}

// Read performs a single ATT read bounded by ctx. go-ble reads are not
// cancellable, so an abandoned read finishes in the background.
func (c *characteristic) Read(ctx context.Context) ([]byte, error) {
	if c.char.Property&ble.CharRead == 0 {
		return nil, fmt.Errorf("characteristic %s: read %w", c.uuid, device.ErrUnsupported)
	}

	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := c.conn.client.ReadCharacteristic(c.char)
		ch <- result{data: data, err: NormalizeError(err)}
	}()

	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("read %s: %w", c.uuid, ctx.Err())
	}
}

func canNotify(p ble.Property) bool {
	return p&(ble.CharNotify|ble.CharIndicate) != 0
}

func useIndication(p ble.Property) bool {
	return p&ble.CharNotify == 0 && p&ble.CharIndicate != 0
}
