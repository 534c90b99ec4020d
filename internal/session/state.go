package session

import "fmt"

// State is the lifecycle position of one bound engine.
type State int

const (
	StateUnbound State = iota
	StateBound
	StateInitialized
	StateStepping
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateInitialized:
		return "initialized"
	case StateStepping:
		return "stepping"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// validTransitions maps each state to the set of states it may move to.
// There is no backward transition.
var validTransitions = map[State]map[State]bool{
	StateUnbound:     {StateBound: true},
	StateBound:       {StateInitialized: true, StateTerminated: true},
	StateInitialized: {StateStepping: true, StateTerminated: true},
	StateStepping:    {StateStepping: true, StateTerminated: true},
}

// ValidTransition reports whether a handle may move from one state to another.
func ValidTransition(from, to State) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}
