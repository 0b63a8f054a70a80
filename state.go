package labmod

import "time"

// ActivationState is the lifecycle state of one module. Transitions are
// driven exclusively by the Manager; at most one transition is in flight per
// module at a time.
type ActivationState int

const (
	StateUnloaded ActivationState = iota
	StateLoading
	StateActive
	StateDeactivating
	StateError
)

// String returns the lower-case state name used in logs and the status API.
func (s ActivationState) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	case StateDeactivating:
		return "deactivating"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// validTransitions encodes the lifecycle state machine. StateError is
// reachable from any state on failure and is therefore not listed; leaving
// it requires an explicit Reset back to StateUnloaded.
var validTransitions = map[ActivationState][]ActivationState{
	StateUnloaded:     {StateLoading},
	StateLoading:      {StateActive},
	StateActive:       {StateDeactivating},
	StateDeactivating: {StateUnloaded},
	StateError:        {StateUnloaded},
}

// canTransition reports whether from -> to is a legal transition.
func canTransition(from, to ActivationState) bool {
	if to == StateError {
		return true
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ModuleStatus is the queryable status snapshot of one module.
type ModuleStatus struct {
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Class    string          `json:"class"`
	State    string          `json:"state"`
	Error    string          `json:"error,omitempty"`
	Since    time.Time       `json:"since"`
}
