// Package gatt decodes raw GATT characteristic payloads into typed readings.
//
// Decoders are pure: no I/O, no state, and they never read past the byte
// length implied by the payload's own layout.
package gatt
