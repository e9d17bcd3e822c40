package device

// State is the session lifecycle state.
type State int

const (
	Idle State = iota
	Discovering
	Connecting
	ServiceResolution
	Subscribed
	Disconnected
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Discovering:
		return "discovering"
	case Connecting:
		return "connecting"
	case ServiceResolution:
		return "service_resolution"
	case Subscribed:
		return "subscribed"
	case Disconnected:
		return "disconnected"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
