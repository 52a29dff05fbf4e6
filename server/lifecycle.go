package server

// LifecycleState represents the current state of the connection manager
type LifecycleState int

const (
	StateStopped LifecycleState = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s LifecycleState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// canTransition reports whether the manager may move from one state to
// another. Start may run again while running to pick up endpoints added
// after startup.
func canTransition(from, to LifecycleState) bool {
	switch to {
	case StateStarting:
		return from == StateStopped || from == StateRunning
	case StateRunning:
		return from == StateStarting
	case StateStopping:
		return from == StateStarting || from == StateRunning
	case StateStopped:
		return from == StateStopping || from == StateStarting
	default:
		return false
	}
}

// ConnectorState is the connection state of a connector
type ConnectorState int

const (
	ConnectorIdle ConnectorState = iota
	ConnectorConnecting
	ConnectorOpen
)

func (s ConnectorState) String() string {
	switch s {
	case ConnectorIdle:
		return "idle"
	case ConnectorConnecting:
		return "connecting"
	case ConnectorOpen:
		return "open"
	default:
		return "unknown"
	}
}
