package gatt

import "time"

// ReadingSource tells how a value reached us.
type ReadingSource string

const (
	SourceNotification ReadingSource = "notification"
	SourceRead         ReadingSource = "read"
)

// HeartRateReading is one decoded heart rate measurement.
type HeartRateReading struct {
	BPM        uint16        `json:"bpm"`
	Source     ReadingSource `json:"source"`
	ReceivedAt time.Time     `json:"received_at"`
}

// StepReading is one decoded step counter value.
type StepReading struct {
	Count      uint32        `json:"count"`
	Source     ReadingSource `json:"source"`
	ReceivedAt time.Time     `json:"received_at"`
}

// BatteryReading is one decoded battery level value.
type BatteryReading struct {
	Percent    uint8     `json:"percent"`
	ReceivedAt time.Time `json:"received_at"`
}
