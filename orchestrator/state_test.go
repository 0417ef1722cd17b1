package orchestrator

import (
	"errors"
	"testing"
)

func TestMachineTransitions(t *testing.T) {
	tests := []struct {
		name  string
		path  []State
		legal bool
	}{
		{name: "sync", path: []State{StateValidatingInput, StateCheckingDuplicates, StateFetching, StateExtracting, StatePersisting, StateDone}, legal: true},
		{name: "async", path: []State{StateValidatingInput, StateCheckingDuplicates, StateFetching, StateDone}, legal: true},
		{name: "rejected", path: []State{StateValidatingInput, StateCheckingDuplicates, StateRejected}, legal: true},
		{name: "skip validation", path: []State{StateCheckingDuplicates}},
		{name: "fetch after reject", path: []State{StateValidatingInput, StateCheckingDuplicates, StateRejected, StateFetching}},
		{name: "persist before extract", path: []State{StateValidatingInput, StateCheckingDuplicates, StateFetching, StatePersisting}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMachine()
			var err error
			for _, s := range tt.path {
				if err = m.advance(s); err != nil {
					break
				}
			}
			if tt.legal && err != nil {
				t.Fatalf("advance: %v", err)
			}
			if !tt.legal {
				var illegal *IllegalTransitionError
				if !errors.As(err, &illegal) {
					t.Fatalf("error=%v, want IllegalTransitionError", err)
				}
			}
		})
	}
}

func TestMachineFailFromAnyNonTerminalState(t *testing.T) {
	m := newMachine()
	_ = m.advance(StateValidatingInput)
	m.fail()
	if m.state != StateFailed {
		t.Fatalf("state=%s, want Failed", m.state)
	}

	done := newMachine()
	for _, s := range []State{StateValidatingInput, StateCheckingDuplicates, StateRejected} {
		_ = done.advance(s)
	}
	done.fail()
	if done.state != StateRejected {
		t.Fatalf("fail must not leave a terminal state, got %s", done.state)
	}
}

func TestStateString(t *testing.T) {
	if StateCheckingDuplicates.String() != "CheckingDuplicates" {
		t.Fatalf("got %q", StateCheckingDuplicates.String())
	}
	if State(99).String() != "Unknown" {
		t.Fatalf("got %q", State(99).String())
	}
}
