package telemetry

import (
	"sync"
)

// CollectedMetrics is the latest observed value of each metric. A nil field
// was never observed and renders as JSON null.
type CollectedMetrics struct {
	HeartRate *uint16 `json:"heart_rate"`
	Steps     *uint32 `json:"steps"`
	Device    *string `json:"device"`
}

// metricsStore keeps one CollectedMetrics with last-write-wins updates.
type metricsStore struct {
	mu        sync.Mutex
	heartRate *uint16
	steps     *uint32
	device    *string // label reported by the connected device
	override  *string // manual label, survives disconnects
	battery   *uint8
}

func (m *metricsStore) setHeartRate(bpm uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartRate = &bpm
}

func (m *metricsStore) setSteps(count uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = &count
}

func (m *metricsStore) setBattery(percent uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.battery = &percent
}

func (m *metricsStore) setDevice(label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if label == "" {
		m.device = nil
		return
	}
	m.device = &label
}

// setOverride sets the manual device label; "" removes it.
func (m *metricsStore) setOverride(label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if label == "" {
		m.override = nil
		return
	}
	m.override = &label
}

// clearDeviceSourced drops every value that came from the disconnected
// device. The manual override is kept.
func (m *metricsStore) clearDeviceSourced() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartRate = nil
	m.steps = nil
	m.device = nil
	m.battery = nil
}

func (m *metricsStore) snapshot() CollectedMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out CollectedMetrics
	if m.heartRate != nil {
		v := *m.heartRate
		out.HeartRate = &v
	}
	if m.steps != nil {
		v := *m.steps
		out.Steps = &v
	}
	label := m.device
	if m.override != nil {
		label = m.override
	}
	if label != nil {
		v := *label
		out.Device = &v
	}
	return out
}

func (m *metricsStore) batteryLevel() (uint8, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.battery == nil {
		return 0, false
	}
	return *m.battery, true
}
