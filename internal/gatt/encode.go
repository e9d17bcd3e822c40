package gatt

import "encoding/binary"

// EncodeHeartRate builds a Heart Rate Measurement payload. Values that do
// not fit a uint8 are always encoded wide.
func EncodeHeartRate(bpm uint16, wide bool) []byte {
	if !wide && bpm <= 0xff {
		return []byte{0x00, byte(bpm)}
	}
	b := make([]byte, 3)
	b[0] = hrFlagUint16
	binary.LittleEndian.PutUint16(b[1:], bpm)
	return b
}

// EncodeStepCount builds a uint32 little-endian step counter payload.
func EncodeStepCount(count uint32) []byte {
	b := make([]byte, stepsLen)
	binary.LittleEndian.PutUint32(b, count)
	return b
}
