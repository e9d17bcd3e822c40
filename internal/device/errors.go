package device

import (
	"errors"
	"fmt"
)

// NotFoundError represents an error when a GATT resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // [serviceUUID] or [serviceUUID, charUUID]
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ErrorKind classifies session failures
type ErrorKind string

const (
	CapabilityUnavailable   ErrorKind = "capability_unavailable"
	DiscoveryFailed         ErrorKind = "discovery_failed"
	ConnectionFailed        ErrorKind = "connection_failed"
	ServiceResolutionFailed ErrorKind = "service_resolution_failed"
)

// SessionError is returned by Session operations
type SessionError struct {
	Kind ErrorKind
	Op   string // step that failed, e.g. "discover"
	Err  error
}

// Error implements the error interface
func (e *SessionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *SessionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to compare SessionError values by Kind
func (e *SessionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*SessionError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors, one per kind
var (
	ErrCapabilityUnavailable   = &SessionError{Kind: CapabilityUnavailable}
	ErrDiscoveryFailed         = &SessionError{Kind: DiscoveryFailed}
	ErrConnectionFailed        = &SessionError{Kind: ConnectionFailed}
	ErrServiceResolutionFailed = &SessionError{Kind: ServiceResolutionFailed}
)

// Disconnect causes and operation errors
var (
	ErrDeviceLost   = errors.New("device disconnected")
	ErrSuperseded   = errors.New("session superseded by a new connect")
	ErrNotConnected = errors.New("device not connected")
	ErrUnsupported  = errors.New("unsupported")
	ErrBluetoothOff = errors.New("bluetooth is turned off")
)

// IsKind reports whether err is a SessionError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var serr *SessionError
	if errors.As(err, &serr) {
		return serr.Kind == kind
	}
	return false
}
