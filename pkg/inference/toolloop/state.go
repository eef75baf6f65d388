package toolloop

// State is a state of the agent loop.
type State int

const (
	StateAwaitingModelDecision State = iota
	StateAnswering
	StateInvoking
	StateTerminatedAnswer
	StateTerminatedIterationLimit
	StateTerminatedTransportError
)

var stateNames = map[State]string{
	StateAwaitingModelDecision:    "awaiting-model-decision",
	StateAnswering:                "answering",
	StateInvoking:                 "invoking",
	StateTerminatedAnswer:         "terminated-answer",
	StateTerminatedIterationLimit: "terminated-iteration-limit",
	StateTerminatedTransportError: "terminated-transport-error",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s State) Terminal() bool {
	return s >= StateTerminatedAnswer
}
