package gatt

import (
	"errors"
	"fmt"
)

// ErrDecode is matched by every DecodeError via errors.Is.
var ErrDecode = errors.New("decode error")

// DecodeError reports a characteristic payload that does not fit its layout.
type DecodeError struct {
	Characteristic string // e.g. "heart_rate_measurement"
	Want           int    // minimum length required by the layout
	Got            int    // actual payload length
	Reason         string // set for non-length failures
}

func (e *DecodeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("decode %s: %s", e.Characteristic, e.Reason)
	}
	return fmt.Sprintf("decode %s: need %d bytes, got %d", e.Characteristic, e.Want, e.Got)
}

// Is allows errors.Is(err, ErrDecode).
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}
