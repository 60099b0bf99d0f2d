package workflow

// State represents the position of a document request in its workflow.
// Step states carry the step id; the implicit states bracket the step list.
type State string

const (
	StateUnstarted State = "UNSTARTED"
	StateComplete  State = "COMPLETE"
	StateRejected  State = "REJECTED"
)

var terminalStates = map[State]bool{
	StateRejected: true,
	StateComplete: true,
}

// StepState returns the state representing residence at the given step
func StepState(stepID string) State {
	if stepID == "" {
		return StateUnstarted
	}
	return State(stepID)
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsImplicit returns true for states that do not correspond to a configured step
func (s State) IsImplicit() bool {
	return s == StateUnstarted || s == StateComplete || s == StateRejected
}

// StepID returns the step id for step states and "" for implicit states
func (s State) StepID() string {
	if s.IsImplicit() {
		return ""
	}
	return string(s)
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state can participate in a state machine
func (s State) IsValid() bool {
	return s != ""
}
