package scanner

// State is the lifecycle position of a scan session.
type State int32

const (
	StateIdle State = iota
	StateInitializing
	StateRunning
	StateEvaluating
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateEvaluating:
		return "evaluating"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Live reports whether a session in this state still owns resources.
func (s State) Live() bool {
	return s == StateInitializing || s == StateRunning || s == StateEvaluating
}
