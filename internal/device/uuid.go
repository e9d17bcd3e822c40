package device

import (
	"github.com/srg/fitlink/internal/bledb"
)

// Assigned numbers used by the session.
const (
	HeartRateServiceUUID     = "180d"
	HeartRateMeasurementUUID = "2a37"
	BatteryServiceUUID       = "180f"
	BatteryLevelUUID         = "2a19"
)

// NormalizeUUID is re-exported from bledb for convenience.
func NormalizeUUID(uuid string) string {
	return bledb.NormalizeUUID(uuid)
}

// ShortenUUID returns a truncated version of a UUID for display purposes.
// Returns the first eight characters for long UUIDs and short UUIDs by themselves.
func ShortenUUID(uuid string) string {
	if len(uuid) > 8 {
		return uuid[:8]
	}
	return uuid
}
