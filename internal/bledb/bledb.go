// Package bledb holds the small set of Bluetooth SIG assigned numbers this
// project needs, keyed by normalized UUID, plus the Web Bluetooth GATT
// names ("heart_rate", "battery_service", ...) that map onto them.
package bledb

import (
	"sort"
	"strings"
)

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID
// 0000xxxx-0000-1000-8000-00805f9b34fb in normalized form.
const sigBaseSuffix = "00001000800000805f9b34fb"

// Entry describes one assigned number.
type Entry struct {
	UUID     string // normalized
	Name     string // human-readable name, e.g. "Heart Rate"
	GATTName string // Web Bluetooth name, e.g. "heart_rate"
}

var services = map[string]Entry{
	"1800": {UUID: "1800", Name: "Generic Access", GATTName: "generic_access"},
	"1801": {UUID: "1801", Name: "Generic Attribute", GATTName: "generic_attribute"},
	"180a": {UUID: "180a", Name: "Device Information", GATTName: "device_information"},
	"180d": {UUID: "180d", Name: "Heart Rate", GATTName: "heart_rate"},
	"180f": {UUID: "180f", Name: "Battery Service", GATTName: "battery_service"},
	"1814": {UUID: "1814", Name: "Running Speed and Cadence", GATTName: "running_speed_and_cadence"},
	"1816": {UUID: "1816", Name: "Cycling Speed and Cadence", GATTName: "cycling_speed_and_cadence"},
	"181c": {UUID: "181c", Name: "User Data", GATTName: "user_data"},
	"1826": {UUID: "1826", Name: "Fitness Machine", GATTName: "fitness_machine"},
}

var characteristics = map[string]Entry{
	"2a00": {UUID: "2a00", Name: "Device Name", GATTName: "gap.device_name"},
	"2a19": {UUID: "2a19", Name: "Battery Level", GATTName: "battery_level"},
	"2a24": {UUID: "2a24", Name: "Model Number String", GATTName: "model_number_string"},
	"2a29": {UUID: "2a29", Name: "Manufacturer Name String", GATTName: "manufacturer_name_string"},
	"2a37": {UUID: "2a37", Name: "Heart Rate Measurement", GATTName: "heart_rate_measurement"},
	"2a38": {UUID: "2a38", Name: "Body Sensor Location", GATTName: "body_sensor_location"},
	"2a39": {UUID: "2a39", Name: "Heart Rate Control Point", GATTName: "heart_rate_control_point"},
	"2a53": {UUID: "2a53", Name: "RSC Measurement", GATTName: "rsc_measurement"},
}

var byGATTName = func() map[string]string {
	m := make(map[string]string, len(services)+len(characteristics))
	for uuid, e := range services {
		m[e.GATTName] = uuid
	}
	for uuid, e := range characteristics {
		m[e.GATTName] = uuid
	}
	return m
}()

// NormalizeUUID converts a UUID string to the internal format: lowercase
// hex without dashes, braces or a 0x prefix. UUIDs built on the SIG base
// collapse to their 16-bit short form. Returns "" for malformed input.
func NormalizeUUID(uuid string) string {
	s := strings.ToLower(strings.TrimSpace(uuid))
	s = strings.Trim(s, "{}")
	s = strings.TrimPrefix(s, "0x")
	s = strings.ReplaceAll(s, "-", "")

	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return ""
		}
	}

	switch len(s) {
	case 4:
		return s
	case 8:
		if strings.HasPrefix(s, "0000") {
			return s[4:]
		}
		return s
	case 32:
		if strings.HasPrefix(s, "0000") && strings.HasSuffix(s, sigBaseSuffix) {
			return s[4:8]
		}
		return s
	default:
		return ""
	}
}

// NormalizeUUIDs normalizes every UUID of the slice.
func NormalizeUUIDs(uuids []string) []string {
	normalized := make([]string, len(uuids))
	for i, uuid := range uuids {
		normalized[i] = NormalizeUUID(uuid)
	}
	return normalized
}

// Resolve accepts either a Web Bluetooth GATT name or a UUID in any
// supported notation and returns the normalized UUID.
func Resolve(nameOrUUID string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(nameOrUUID))
	if uuid, ok := byGATTName[key]; ok {
		return uuid, true
	}
	if uuid := NormalizeUUID(key); uuid != "" {
		return uuid, true
	}
	return "", false
}

// ExpandUUID returns the dashed 128-bit form of a UUID. Short forms are
// expanded on the SIG base.
func ExpandUUID(uuid string) string {
	n := NormalizeUUID(uuid)
	switch len(n) {
	case 4:
		n = "0000" + n + sigBaseSuffix
	case 8:
		n = n + sigBaseSuffix
	case 32:
	default:
		return ""
	}
	return n[0:8] + "-" + n[8:12] + "-" + n[12:16] + "-" + n[16:20] + "-" + n[20:32]
}

// LookupService returns the human-readable service name, or "" if unknown.
func LookupService(uuid string) string {
	return services[NormalizeUUID(uuid)].Name
}

// LookupCharacteristic returns the human-readable characteristic name, or "" if unknown.
func LookupCharacteristic(uuid string) string {
	return characteristics[NormalizeUUID(uuid)].Name
}

// KnownServices lists the service table sorted by UUID.
func KnownServices() []Entry {
	out := make([]Entry, 0, len(services))
	for _, e := range services {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out
}
