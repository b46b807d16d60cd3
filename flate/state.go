package flate

// streamState is the lifecycle phase of a Deflater or Inflater.
type streamState int

const (
	stateInit     streamState = iota // created or reset; dictionary allowed
	stateRunning                     // Process has been called
	stateFinished                    // the end of the stream has been reached
	stateEnded                       // End has been called
)

var stateNames = [...]string{"init", "running", "finished", "ended"}

func (s streamState) String() string {
	return stateNames[s]
}

type streamOp int

const (
	opSetDictionary streamOp = iota
	opProcess
	opFinish
	opReset
	opEnd
)

var opNames = [...]string{"SetDictionary", "Process", "finish", "Reset", "End"}

func (o streamOp) String() string {
	return opNames[o]
}

// transitions lists the legal operations in each state and the state they
// lead to. Anything missing is an ErrState.
var transitions = map[streamState]map[streamOp]streamState{
	stateInit: {
		opSetDictionary: stateInit,
		opProcess:       stateRunning,
		opReset:         stateInit,
		opEnd:           stateEnded,
	},
	stateRunning: {
		opProcess: stateRunning,
		opFinish:  stateFinished,
		opReset:   stateInit,
		opEnd:     stateEnded,
	},
	stateFinished: {
		opProcess: stateFinished,
		opReset:   stateInit,
		opEnd:     stateEnded,
	},
	stateEnded: {
		opEnd: stateEnded,
	},
}

// lifecycle tracks a stream's state through the transition table.
type lifecycle struct {
	state streamState
}

// advance applies op, or returns an ErrState error if op is not legal in
// the current state.
func (l *lifecycle) advance(op streamOp) error {
	next, ok := transitions[l.state][op]
	if !ok {
		return stateError("%v not allowed in state %v", op, l.state)
	}
	l.state = next
	return nil
}
