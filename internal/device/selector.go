package device

import (
	"fmt"

	"github.com/srg/fitlink/internal/bledb"
)

// StandardService is the Web Bluetooth name of the service every session
// looks for.
const StandardService = "heart_rate"

// ServiceSelector configures the optional custom service and step
// characteristic of a connect attempt. Identifiers may be GATT names,
// 16-bit or 128-bit UUIDs.
type ServiceSelector struct {
	CustomServiceID        string `json:"custom_service_id" yaml:"custom_service"`
	CustomCharacteristicID string `json:"custom_characteristic_id" yaml:"custom_characteristic"`
}

// InvalidIdentifierError reports a selector identifier that is neither a
// known GATT name nor a UUID.
type InvalidIdentifierError struct {
	Field string
	Value string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("invalid %s identifier %q", e.Field, e.Value)
}

// Normalized returns the custom identifiers as normalized UUIDs ("" when unset).
func (s ServiceSelector) Normalized() (service, characteristic string, err error) {
	if s.CustomServiceID != "" {
		var ok bool
		if service, ok = bledb.Resolve(s.CustomServiceID); !ok {
			return "", "", &InvalidIdentifierError{Field: "service", Value: s.CustomServiceID}
		}
	}
	if s.CustomCharacteristicID != "" {
		var ok bool
		if characteristic, ok = bledb.Resolve(s.CustomCharacteristicID); !ok {
			return "", "", &InvalidIdentifierError{Field: "characteristic", Value: s.CustomCharacteristicID}
		}
	}
	return service, characteristic, nil
}

// Filter builds the discovery filter: the standard heart rate service, or
// the custom service when one is configured.
func (s ServiceSelector) Filter() (DiscoveryFilter, error) {
	service, _, err := s.Normalized()
	if err != nil {
		return DiscoveryFilter{}, err
	}

	filter := DiscoveryFilter{
		Services:         []string{HeartRateServiceUUID},
		OptionalServices: []string{BatteryServiceUUID},
	}
	if service != "" && service != HeartRateServiceUUID {
		filter.Services = append(filter.Services, service)
		filter.OptionalServices = append(filter.OptionalServices, service)
	}
	return filter, nil
}
