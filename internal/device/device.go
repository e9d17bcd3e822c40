package device

import (
	"context"

	"github.com/srg/fitlink/internal/bledb"
)

// CentralProvider returns the host's Bluetooth central. An error means the
// capability is not available on this host.
type CentralProvider func() (Central, error)

// Central discovers peripherals.
type Central interface {
	// Discover blocks until a peripheral advertising any of the filter's
	// services is found, or ctx is done.
	Discover(ctx context.Context, filter DiscoveryFilter) (Peripheral, error)
}

// Peripheral is a discovered, not yet connected device.
type Peripheral interface {
	ID() string
	Name() string
	Connect(ctx context.Context) (GATTClient, error)
}

// GATTClient is a live GATT connection.
type GATTClient interface {
	// Characteristic resolves a characteristic of a primary service. Returns
	// a *NotFoundError when either does not exist.
	Characteristic(ctx context.Context, service, uuid string) (Characteristic, error)
	// Disconnected is closed when the platform reports the link is gone.
	Disconnected() <-chan struct{}
	Close() error
}

// Characteristic is a resolved characteristic handle.
type Characteristic interface {
	UUID() string
	CanNotify() bool
	StartNotifications(handler func([]byte)) error
	StopNotifications() error
	Read(ctx context.Context) ([]byte, error)
}

// DiscoveryFilter selects which advertisements are acceptable.
type DiscoveryFilter struct {
	Services         []string // any one must be advertised
	OptionalServices []string // accessed after connect, not used for matching
}

// Matches reports whether any advertised service is one of the filter's services.
func (f DiscoveryFilter) Matches(advertised []string) bool {
	for _, adv := range advertised {
		n := bledb.NormalizeUUID(adv)
		for _, want := range f.Services {
			if n != "" && n == bledb.NormalizeUUID(want) {
				return true
			}
		}
	}
	return false
}

// Identity names the device of the current session.
type Identity struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// DisplayName returns the advertised name, or the ID when the device has none.
func (i Identity) DisplayName() string {
	if i.Name == "" {
		return i.ID
	}
	return i.Name
}
