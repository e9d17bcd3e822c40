package telemetry

import (
	"fmt"
	"sync"
)

// StatusKind classifies the rendered status.
type StatusKind string

const (
	StatusNoDevice       StatusKind = "no_device"
	StatusUnavailable    StatusKind = "unavailable"
	StatusRequesting     StatusKind = "requesting"
	StatusConnecting     StatusKind = "connecting"
	StatusConnected      StatusKind = "connected"
	StatusDisconnected   StatusKind = "disconnected"
	StatusBluetoothError StatusKind = "bluetooth_error"
	StatusPlanPending    StatusKind = "plan_pending"
	StatusPlanSaved      StatusKind = "plan_saved"
	StatusPlanMessage    StatusKind = "plan_message"
	StatusPlanFailed     StatusKind = "plan_failed"
)

// Status is the observable status line.
type Status struct {
	Kind StatusKind `json:"kind"`
	Text string     `json:"text"`
}

func (s Status) String() string { return s.Text }

func noDeviceStatus() Status {
	return Status{Kind: StatusNoDevice, Text: "No device connected"}
}

func unavailableStatus() Status {
	return Status{Kind: StatusUnavailable, Text: "Bluetooth not available on this host"}
}

func requestingStatus() Status {
	return Status{Kind: StatusRequesting, Text: "Requesting device..."}
}

func connectingStatus(name string) Status {
	return Status{Kind: StatusConnecting, Text: fmt.Sprintf("Connecting to %s...", name)}
}

func connectedStatus(name string, bpm *uint16) Status {
	if bpm == nil {
		return Status{Kind: StatusConnected, Text: fmt.Sprintf("Connected: %s", name)}
	}
	return Status{Kind: StatusConnected, Text: fmt.Sprintf("Connected: %s — HR %d bpm", name, *bpm)}
}

func disconnectedStatus() Status {
	return Status{Kind: StatusDisconnected, Text: "Device disconnected"}
}

func bluetoothErrorStatus(err error) Status {
	return Status{Kind: StatusBluetoothError, Text: fmt.Sprintf("Bluetooth error: %v", err)}
}

func planPendingStatus(prev Status) Status {
	return Status{Kind: StatusPlanPending, Text: prev.Text + " · Generating plan..."}
}

func planSavedStatus() Status {
	return Status{Kind: StatusPlanSaved, Text: "Plan generated and saved"}
}

func planMessageStatus(message string) Status {
	if message == "" {
		message = "ok"
	}
	return Status{Kind: StatusPlanMessage, Text: "Plan generation: " + message}
}

func planFailedStatus(err error) Status {
	return Status{Kind: StatusPlanFailed, Text: fmt.Sprintf("Plan generation failed: %v", err)}
}

// statusBoard holds the current status and notifies watchers on change.
type statusBoard struct {
	mu       sync.Mutex
	current  Status
	nextID   int
	watchers map[int]func(Status)
}

func newStatusBoard() *statusBoard {
	return &statusBoard{
		current:  noDeviceStatus(),
		watchers: make(map[int]func(Status)),
	}
}

func (b *statusBoard) get() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// set publishes s.
func (b *statusBoard) set(s Status) {
	b.update(func(Status) Status { return s })
}

// update replaces the current status with fn(current) atomically, then
// notifies watchers outside the lock in registration order.
func (b *statusBoard) update(fn func(Status) Status) Status {
	b.mu.Lock()
	next := fn(b.current)
	b.current = next
	watchers := make([]func(Status), 0, len(b.watchers))
	for id := 0; id < b.nextID; id++ {
		if w, ok := b.watchers[id]; ok {
			watchers = append(watchers, w)
		}
	}
	b.mu.Unlock()

	for _, w := range watchers {
		w(next)
	}
	return next
}

func (b *statusBoard) watch(fn func(Status)) (cancel func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.watchers[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.watchers, id)
			b.mu.Unlock()
		})
	}
}
