// Package simulated provides an in-process BLE central and peripherals that
// satisfy the device interfaces. It backs the session tests and the
// --simulate mode of the CLI.
package simulated

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/srg/fitlink/internal/bledb"
	"github.com/srg/fitlink/internal/device"
)

// ErrNoMatch is returned by Discover when no configured peripheral matches.
var ErrNoMatch = errors.New("no matching peripheral")

// ----------------------------
// Central
// ----------------------------

// Central is a simulated host adapter holding a fixed set of peripherals.
type Central struct {
	// DiscoverErr, when set, fails every discovery.
	DiscoverErr error
	// BlockUntilCancelled makes Discover wait for ctx when nothing matches,
	// like a real scan does.
	BlockUntilCancelled bool

	mu            sync.Mutex
	peripherals   []*Peripheral
	discoverCalls atomic.Int32
}

// NewCentral creates a central advertising the given peripherals.
func NewCentral(peripherals ...*Peripheral) *Central {
	return &Central{peripherals: peripherals}
}

// Add registers another advertising peripheral.
func (c *Central) Add(p *Peripheral) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peripherals = append(c.peripherals, p)
}

// Provider returns a provider that always yields this central.
func (c *Central) Provider() device.CentralProvider {
	return func() (device.Central, error) { return c, nil }
}

// Unavailable returns a provider for a host without Bluetooth.
func Unavailable(err error) device.CentralProvider {
	if err == nil {
		err = device.ErrBluetoothOff
	}
	return func() (device.Central, error) { return nil, err }
}

// DiscoverCalls reports how many times Discover was invoked.
func (c *Central) DiscoverCalls() int {
	return int(c.discoverCalls.Load())
}

// Discover returns the first peripheral whose advertised services match.
func (c *Central) Discover(ctx context.Context, filter device.DiscoveryFilter) (device.Peripheral, error) {
	c.discoverCalls.Add(1)
	if c.DiscoverErr != nil {
		return nil, c.DiscoverErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	peripherals := append([]*Peripheral(nil), c.peripherals...)
	c.mu.Unlock()

	for _, p := range peripherals {
		if filter.Matches(p.Advertised()) {
			return p, nil
		}
	}

	if c.BlockUntilCancelled {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, fmt.Errorf("%w advertising %s", ErrNoMatch, strings.Join(filter.Services, ", "))
}

// ----------------------------
// Peripheral
// ----------------------------

type charDef struct {
	uuid      string
	read      bool
	notify    bool
	value     []byte
	notifyErr error
	readErr   error
}

type serviceDef struct {
	uuid  string
	chars []*charDef
}

// Peripheral is a simulated device. Configure it with the With* builder
// methods before it is connected.
type Peripheral struct {
	// ConnectErr, when set, fails every connection attempt.
	ConnectErr error

	id   string
	name string

	mu       sync.Mutex
	services []*serviceDef
	client   *Client
	connects int
}

// NewPeripheral creates a peripheral with no services.
func NewPeripheral(id, name string) *Peripheral {
	return &Peripheral{id: id, name: name}
}

// WithService adds a primary service.
func (p *Peripheral) WithService(uuid string) *Peripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.services = append(p.services, &serviceDef{uuid: normalize(uuid)})
	return p
}

// WithCharacteristic adds a characteristic to the last added service.
// props is a comma separated list of "read" and "notify".
func (p *Peripheral) WithCharacteristic(uuid, props string, value []byte) *Peripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}

	def := &charDef{uuid: normalize(uuid), value: append([]byte(nil), value...)}
	for _, prop := range strings.Split(props, ",") {
		switch strings.TrimSpace(prop) {
		case "read":
			def.read = true
		case "notify", "indicate":
			def.notify = true
		}
	}
	svc := p.services[len(p.services)-1]
	svc.chars = append(svc.chars, def)
	return p
}

// WithNotifyError makes StartNotifications on the last added characteristic fail.
func (p *Peripheral) WithNotifyError(err error) *Peripheral {
	p.lastChar().notifyErr = err
	return p
}

// WithReadError makes reads of the last added characteristic fail.
func (p *Peripheral) WithReadError(err error) *Peripheral {
	p.lastChar().readErr = err
	return p
}

func (p *Peripheral) lastChar() *charDef {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.services) == 0 || len(p.services[len(p.services)-1].chars) == 0 {
		panic("no characteristic added yet, call WithCharacteristic first")
	}
	chars := p.services[len(p.services)-1].chars
	return chars[len(chars)-1]
}

func (p *Peripheral) ID() string   { return p.id }
func (p *Peripheral) Name() string { return p.name }

// Advertised returns the service UUIDs in the advertisement.
func (p *Peripheral) Advertised() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	uuids := make([]string, 0, len(p.services))
	for _, svc := range p.services {
		uuids = append(uuids, svc.uuid)
	}
	return uuids
}

// Connect opens a new simulated GATT connection.
func (p *Peripheral) Connect(ctx context.Context) (device.GATTClient, error) {
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := &Client{
		peripheral: p,
		done:       make(chan struct{}),
		chars:      make(map[string]*Characteristic),
	}

	p.mu.Lock()
	p.client = c
	p.connects++
	p.mu.Unlock()
	return c, nil
}

// Connects reports how many connections have been opened.
func (p *Peripheral) Connects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connects
}

// Connected reports whether the latest connection is still open.
func (p *Peripheral) Connected() bool {
	c := p.current()
	return c != nil && !c.closed.Load()
}

// Emit delivers a notification for the characteristic to the current
// connection. Returns false when nobody is subscribed.
func (p *Peripheral) Emit(uuid string, data []byte) bool {
	c := p.current()
	if c == nil || c.closed.Load() {
		return false
	}
	ch := c.lookup(normalize(uuid))
	if ch == nil {
		return false
	}
	return ch.deliver(data)
}

// SetValue replaces the value returned by reads of the characteristic.
func (p *Peripheral) SetValue(uuid string, value []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := normalize(uuid)
	for _, svc := range p.services {
		for _, def := range svc.chars {
			if def.uuid == n {
				def.value = append([]byte(nil), value...)
			}
		}
	}
}

// Drop simulates the link going away underneath the current connection.
func (p *Peripheral) Drop() {
	if c := p.current(); c != nil {
		c.shutdown()
	}
}

// Subscribed reports whether the current connection has notifications
// enabled on the characteristic.
func (p *Peripheral) Subscribed(uuid string) bool {
	c := p.current()
	if c == nil {
		return false
	}
	ch := c.lookup(normalize(uuid))
	return ch != nil && ch.subscribed()
}

func (p *Peripheral) current() *Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client
}

func (p *Peripheral) find(service, uuid string) (*charDef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, svc := range p.services {
		if svc.uuid != service {
			continue
		}
		for _, def := range svc.chars {
			if def.uuid == uuid {
				return def, nil
			}
		}
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, uuid}}
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{service}}
}

// ----------------------------
// Client
// ----------------------------

// Client is a simulated GATT connection.
type Client struct {
	peripheral *Peripheral
	done       chan struct{}
	closeOnce  sync.Once
	closed     atomic.Bool

	mu    sync.Mutex
	chars map[string]*Characteristic
}

// Characteristic resolves a characteristic of one of the peripheral's services.
func (c *Client) Characteristic(ctx context.Context, service, uuid string) (device.Characteristic, error) {
	if c.closed.Load() {
		return nil, device.ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	def, err := c.peripheral.find(normalize(service), normalize(uuid))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.chars[def.uuid]; ok {
		return ch, nil
	}
	ch := &Characteristic{client: c, def: def}
	c.chars[def.uuid] = ch
	return ch, nil
}

func (c *Client) Disconnected() <-chan struct{} {
	return c.done
}

func (c *Client) Close() error {
	c.shutdown()
	return nil
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
}

func (c *Client) lookup(uuid string) *Characteristic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chars[uuid]
}

// ----------------------------
// Characteristic
// ----------------------------

// Characteristic is a resolved simulated characteristic.
type Characteristic struct {
	client *Client
	def    *charDef

	mu      sync.Mutex
	handler func([]byte)
}

func (ch *Characteristic) UUID() string    { return ch.def.uuid }
func (ch *Characteristic) CanNotify() bool { return ch.def.notify }

func (ch *Characteristic) StartNotifications(handler func([]byte)) error {
	if ch.client.closed.Load() {
		return device.ErrNotConnected
	}
	if ch.def.notifyErr != nil {
		return ch.def.notifyErr
	}
	if !ch.def.notify {
		return fmt.Errorf("notify on %s: %w", ch.def.uuid, device.ErrUnsupported)
	}
	ch.mu.Lock()
	ch.handler = handler
	ch.mu.Unlock()
	return nil
}

func (ch *Characteristic) StopNotifications() error {
	ch.mu.Lock()
	ch.handler = nil
	ch.mu.Unlock()
	if ch.client.closed.Load() {
		return device.ErrNotConnected
	}
	return nil
}

func (ch *Characteristic) Read(ctx context.Context) ([]byte, error) {
	if ch.client.closed.Load() {
		return nil, device.ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ch.def.readErr != nil {
		return nil, ch.def.readErr
	}
	if !ch.def.read {
		return nil, fmt.Errorf("read on %s: %w", ch.def.uuid, device.ErrUnsupported)
	}

	ch.client.peripheral.mu.Lock()
	defer ch.client.peripheral.mu.Unlock()
	return append([]byte(nil), ch.def.value...), nil
}

func (ch *Characteristic) subscribed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.handler != nil
}

// deliver invokes the handler synchronously, like a platform delivery
// goroutine would.
func (ch *Characteristic) deliver(data []byte) bool {
	ch.mu.Lock()
	handler := ch.handler
	ch.mu.Unlock()
	if handler == nil {
		return false
	}
	handler(append([]byte(nil), data...))
	return true
}

func normalize(uuid string) string {
	if n := bledb.NormalizeUUID(uuid); n != "" {
		return n
	}
	return strings.ToLower(uuid)
}
