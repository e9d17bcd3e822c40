package gatt

import (
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// hrFlagUint16 is bit 0 of the heart rate measurement flags: the value
	// field is a uint16 instead of a uint8.
	hrFlagUint16 = 0x01

	hrFlagsLen = 1
	stepsLen   = 4
)

// now is replaced in tests.
var now = time.Now

// DecodeHeartRate decodes a Heart Rate Measurement (0x2A37) payload.
//
// Only the heart rate value is extracted. Sensor contact, energy expended
// and RR-interval fields announced by the flags are ignored.
func DecodeHeartRate(b []byte) (HeartRateReading, error) {
	if len(b) < hrFlagsLen {
		return HeartRateReading{}, &DecodeError{Characteristic: "heart_rate_measurement", Want: 2, Got: len(b)}
	}

	flags := b[0]
	var bpm uint16
	if flags&hrFlagUint16 != 0 {
		if len(b) < hrFlagsLen+2 {
			return HeartRateReading{}, &DecodeError{Characteristic: "heart_rate_measurement", Want: hrFlagsLen + 2, Got: len(b)}
		}
		bpm = binary.LittleEndian.Uint16(b[hrFlagsLen : hrFlagsLen+2])
	} else {
		if len(b) < hrFlagsLen+1 {
			return HeartRateReading{}, &DecodeError{Characteristic: "heart_rate_measurement", Want: hrFlagsLen + 1, Got: len(b)}
		}
		bpm = uint16(b[hrFlagsLen])
	}

	return HeartRateReading{BPM: bpm, Source: SourceNotification, ReceivedAt: now()}, nil
}

// DecodeStepCount decodes a custom step characteristic carrying a uint32
// little-endian counter at offset 0. Trailing bytes are ignored.
func DecodeStepCount(b []byte) (StepReading, error) {
	if len(b) < stepsLen {
		return StepReading{}, &DecodeError{Characteristic: "steps", Want: stepsLen, Got: len(b)}
	}
	return StepReading{Count: binary.LittleEndian.Uint32(b[:stepsLen]), Source: SourceNotification, ReceivedAt: now()}, nil
}

// DecodeBatteryLevel decodes a Battery Level (0x2A19) payload.
func DecodeBatteryLevel(b []byte) (BatteryReading, error) {
	if len(b) < 1 {
		return BatteryReading{}, &DecodeError{Characteristic: "battery_level", Want: 1, Got: 0}
	}
	if b[0] > 100 {
		return BatteryReading{}, &DecodeError{Characteristic: "battery_level", Reason: fmt.Sprintf("percentage %d out of range", b[0])}
	}
	return BatteryReading{Percent: b[0], ReceivedAt: now()}, nil
}
