package bledb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNormalizeUUID verifies that NormalizeUUID correctly handles various UUID formats
func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "16-bit short form", input: "180d", expected: "180d"},
		{name: "16-bit with 0x prefix", input: "0x180D", expected: "180d"},
		{name: "32-bit SIG form", input: "0000180d", expected: "180d"},
		{name: "Full Bluetooth SIG UUID with dashes", input: "0000180d-0000-1000-8000-00805f9b34fb", expected: "180d"},
		{name: "Full Bluetooth SIG UUID without dashes", input: "0000180d00001000800000805f9b34fb", expected: "180d"},
		{name: "Custom 128-bit UUID (not SIG base)", input: "6E400001-B5A3-F393-E0A9-E50E24DCCA9E", expected: "6e400001b5a3f393e0a9e50e24dcca9e"},
		{name: "UUID with braces", input: "{0000180d-0000-1000-8000-00805f9b34fb}", expected: "180d"},
		{name: "not hex", input: "heart_rate", expected: ""},
		{name: "wrong length", input: "180d1", expected: ""},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		ok       bool
	}{
		{input: "heart_rate", expected: "180d", ok: true},
		{input: "heart_rate_measurement", expected: "2a37", ok: true},
		{input: "battery_service", expected: "180f", ok: true},
		{input: " Battery_Level ", expected: "2a19", ok: true},
		{input: "0x2A37", expected: "2a37", ok: true},
		{input: "6e400001-b5a3-f393-e0a9-e50e24dcca9e", expected: "6e400001b5a3f393e0a9e50e24dcca9e", ok: true},
		{input: "steps_please", expected: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			uuid, ok := Resolve(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, uuid)
		})
	}
}

func TestExpandUUID(t *testing.T) {
	assert.Equal(t, "0000180d-0000-1000-8000-00805f9b34fb", ExpandUUID("180d"))
	assert.Equal(t, "6e400001-b5a3-f393-e0a9-e50e24dcca9e", ExpandUUID("6e400001b5a3f393e0a9e50e24dcca9e"))
	assert.Equal(t, "", ExpandUUID("zz"))
}

// TestLookupServiceWithFullUUID verifies that lookups accept both short and full UUIDs
func TestLookupServiceWithFullUUID(t *testing.T) {
	assert.Equal(t, "Heart Rate", LookupService("180d"))
	assert.Equal(t, "Heart Rate", LookupService("0000180d-0000-1000-8000-00805f9b34fb"))
	assert.Equal(t, "Battery Service", LookupService("0x180F"))
	assert.Equal(t, "", LookupService("ffff"))
	assert.Equal(t, "Heart Rate Measurement", LookupCharacteristic("2A37"))
}

func TestKnownServicesSorted(t *testing.T) {
	entries := KnownServices()
	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].UUID, entries[i].UUID)
	}
}
