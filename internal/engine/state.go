package engine

// State is the interpreter state machine position.
//
// Transitions:
//
//	IDLE    --Run--------------> RUNNING
//	RUNNING --plan exhausted---> IDLE   (success)
//	RUNNING --pause request----> PAUSING
//	PAUSING --groups drained---> PAUSED
//	PAUSED  --Resume-----------> RUNNING
//	PAUSED  --Abort------------> ABORTING
//	RUNNING --Abort------------> ABORTING
//	RUNNING --fatal error------> FAILED
//	ABORTING/FAILED --cleanup--> IDLE
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePausing
	StatePaused
	StateAborting
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:     "idle",
	StateRunning:  "running",
	StatePausing:  "pausing",
	StatePaused:   "paused",
	StateAborting: "aborting",
	StateFailed:   "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// legalTransitions is consulted on every transition; an illegal one is a
// bug in the interpreter, not a user error, so setState panics on it.
var legalTransitions = map[State][]State{
	StateIdle:     {StateRunning},
	StateRunning:  {StateIdle, StatePausing, StateAborting, StateFailed},
	StatePausing:  {StatePaused, StateAborting, StateFailed},
	StatePaused:   {StateRunning, StateAborting},
	StateAborting: {StateIdle},
	StateFailed:   {StateIdle},
}

func canTransition(from, to State) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
