package orchestrator

// State is the position of one submission in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateValidatingInput
	StateCheckingDuplicates
	StateRejected
	StateFetching
	StateExtracting
	StatePersisting
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:               "Idle",
	StateValidatingInput:    "ValidatingInput",
	StateCheckingDuplicates: "CheckingDuplicates",
	StateRejected:           "Rejected",
	StateFetching:           "Fetching",
	StateExtracting:         "Extracting",
	StatePersisting:         "Persisting",
	StateDone:               "Done",
	StateFailed:             "Failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateRejected || s == StateDone || s == StateFailed
}

// Fetching goes straight to Done on the async path, where extraction happens
// inside the issued jobs. Extracting goes to Done when no session is wired.
var transitions = map[State][]State{
	StateIdle:               {StateValidatingInput},
	StateValidatingInput:    {StateCheckingDuplicates},
	StateCheckingDuplicates: {StateRejected, StateFetching},
	StateFetching:           {StateExtracting, StateDone},
	StateExtracting:         {StatePersisting, StateDone},
	StatePersisting:         {StateDone},
}

func canTransition(from, to State) bool {
	if to == StateFailed {
		return !from.Terminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// machine records the states one submission passes through.
type machine struct {
	state State
	trace []State
}

func newMachine() *machine {
	return &machine{state: StateIdle, trace: []State{StateIdle}}
}

func (m *machine) advance(to State) error {
	if !canTransition(m.state, to) {
		return &IllegalTransitionError{From: m.state, To: to}
	}
	m.state = to
	m.trace = append(m.trace, to)
	return nil
}

func (m *machine) fail() {
	if m.state.Terminal() {
		return
	}
	m.state = StateFailed
	m.trace = append(m.trace, StateFailed)
}
