package cascade

import "fmt"

// State is a cascade state.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateAttempting
	StateSucceeded
	StateExhausted
	// StateRejected ends a request that failed validation.
	StateRejected
	// StateCanceled ends a request abandoned by its caller.
	StateCanceled
)

var stateNames = map[State]string{
	StateIdle:       "idle",
	StateValidating: "validating",
	StateAttempting: "attempting",
	StateSucceeded:  "succeeded",
	StateExhausted:  "exhausted",
	StateRejected:   "rejected",
	StateCanceled:   "canceled",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateExhausted || s == StateRejected || s == StateCanceled
}

// Transition is one state change of a request.
type Transition struct {
	RequestID string
	From      State
	To        State
	// Attempt is the zero-based strategy index while attempting.
	Attempt  int
	Strategy string
	Err      error
}

// Observer receives every transition synchronously.
type Observer func(Transition)

type machine struct {
	id       string
	state    State
	observer Observer
}

func newMachine(id string, observer Observer) *machine {
	return &machine{id: id, state: StateIdle, observer: observer}
}

func (m *machine) to(next State, attempt int, strategy string, err error) {
	if m.state.Terminal() {
		panic(fmt.Sprintf("cascade: transition %s -> %s after terminal state", m.state, next))
	}
	t := Transition{RequestID: m.id, From: m.state, To: next, Attempt: attempt, Strategy: strategy, Err: err}
	m.state = next
	if m.observer != nil {
		m.observer(t)
	}
}
