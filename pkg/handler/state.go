package handler

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/policy"
)

// State is a step of the per-fault pipeline.
type State uint8

const (
	StateTrapped State = iota
	StateCaptured
	StateClassified
	StatePersisted
	StateHalted
	StateReset
	StateContinued
)

var stateNames = map[State]string{
	StateTrapped:    "Trapped",
	StateCaptured:   "Captured",
	StateClassified: "Classified",
	StatePersisted:  "Persisted",
	StateHalted:     "Halted",
	StateReset:      "Reset",
	StateContinued:  "Continued",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", s)
}

// Terminal reports whether no step follows s.
func (s State) Terminal() bool {
	switch s {
	case StateHalted, StateReset, StateContinued:
		return true
	}
	return false
}

type stateTransitions struct {
	onOK   State
	onFail State
}

// Persisted is absent: what follows it is chosen by the policy engine, see
// Settle.
var transitions = map[State]stateTransitions{
	StateTrapped:    {onOK: StateCaptured, onFail: StateHalted},
	StateCaptured:   {onOK: StateClassified, onFail: StateHalted},
	StateClassified: {onOK: StatePersisted, onFail: StateHalted},
}

// NextState returns the state after the step leaving current succeeded (ok)
// or failed. It panics on a state without pipeline transitions, which the
// handler never passes.
func NextState(current State, ok bool) State {
	row, found := transitions[current]
	if !found {
		panic(fmt.Sprintf("handler: no transition from %s", current))
	}
	if ok {
		return row.onOK
	}
	return row.onFail
}

// Settle returns the terminal state reached from Persisted for decision d.
func Settle(d policy.Decision) State {
	switch d {
	case policy.Continue:
		return StateContinued
	case policy.Reset:
		return StateReset
	}
	return StateHalted
}

const maxTrail = 8

// Trail records the states one fault passed through, without allocating.
type Trail struct {
	states [maxTrail]State
	n      int
}

func (t *Trail) push(s State) {
	if t.n < maxTrail {
		t.states[t.n] = s
		t.n++
	}
}

// States returns the visited states in order.
func (t Trail) States() []State {
	return append([]State(nil), t.states[:t.n]...)
}

// Last returns the most recent state.
func (t Trail) Last() State {
	if t.n == 0 {
		return StateTrapped
	}
	return t.states[t.n-1]
}

func (t Trail) String() string {
	s := ""
	for i := 0; i < t.n; i++ {
		if i > 0 {
			s += " -> "
		}
		s += t.states[i].String()
	}
	return s
}
