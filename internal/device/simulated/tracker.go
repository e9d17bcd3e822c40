package simulated

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/fitlink/internal/device"
	"github.com/srg/fitlink/internal/gatt"
)

// TrackerConfig describes a simulated fitness tracker.
type TrackerConfig struct {
	ID                 string
	Name               string
	StepService        string // optional custom service carrying the step counter
	StepCharacteristic string
	BatteryPercent     uint8
	RestingBPM         uint16
	Seed               int64
}

// NewTracker builds a peripheral exposing heart rate, battery and, when
// configured, a custom step counter.
func NewTracker(cfg TrackerConfig) *Peripheral {
	if cfg.ID == "" {
		cfg.ID = "SIM-00:00:00:00:00:01"
	}
	if cfg.Name == "" {
		cfg.Name = "Simulated Tracker"
	}
	if cfg.BatteryPercent == 0 {
		cfg.BatteryPercent = 87
	}

	p := NewPeripheral(cfg.ID, cfg.Name).
		WithService(device.HeartRateServiceUUID).
		WithCharacteristic(device.HeartRateMeasurementUUID, "notify", nil).
		WithService(device.BatteryServiceUUID).
		WithCharacteristic(device.BatteryLevelUUID, "read", []byte{cfg.BatteryPercent})

	if cfg.StepService != "" && cfg.StepCharacteristic != "" {
		p.WithService(cfg.StepService).
			WithCharacteristic(cfg.StepCharacteristic, "read,notify", gatt.EncodeStepCount(0))
	}
	return p
}

// Feed emits heart rate and step notifications on p every interval until
// ctx is done. Heart rate follows a bounded random walk around restingBPM.
func Feed(ctx context.Context, p *Peripheral, cfg TrackerConfig, interval time.Duration, logger *logrus.Logger) {
	if logger == nil {
		logger = logrus.New()
	}
	if interval <= 0 {
		interval = time.Second
	}
	bpm := cfg.RestingBPM
	if bpm == 0 {
		bpm = 72
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	var steps uint32
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		bpm = walk(bpm, rng.Intn(7)-3, 50, 180)
		steps += uint32(rng.Intn(20))

		p.Emit(device.HeartRateMeasurementUUID, gatt.EncodeHeartRate(bpm, false))
		if cfg.StepCharacteristic != "" {
			value := gatt.EncodeStepCount(steps)
			p.SetValue(cfg.StepCharacteristic, value)
			p.Emit(cfg.StepCharacteristic, value)
		}

		logger.WithFields(logrus.Fields{
			"bpm":   bpm,
			"steps": steps,
		}).Trace("Simulated tracker tick")
	}
}

func walk(v uint16, delta int, lo, hi uint16) uint16 {
	n := int(v) + delta
	if n < int(lo) {
		return lo
	}
	if n > int(hi) {
		return hi
	}
	return uint16(n)
}
