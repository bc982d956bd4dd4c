package statemachine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoStateMatched       = errors.New("no state matched")
	ErrTooManyStatesMatched = errors.New("too many states matched")
)

// State is an identifier plus an optional Require describing the document
// shape that identifies it. States are value-equal by ID.
type State struct {
	ID      string
	Require Condition
}

func (s State) Match(doc interface{}) bool {
	if s.Require == nil {
		return true
	}
	return s.Require.Match(doc)
}

func (s State) Explain(doc interface{}) string {
	explain := "match"
	if s.Require != nil {
		explain = s.Require.Explain(doc)
	}
	return fmt.Sprintf("---- state(%s) ----\n%s", s.ID, explain)
}

func (s State) String() string {
	return s.ID
}

// Transition is a legal evolution from one state to another, with an
// optional guard evaluated against the new document.
type Transition struct {
	From  State
	To    State
	Guard Condition
}

func (t Transition) String() string {
	return fmt.Sprintf("%s -> %s", t.From, t.To)
}

// NewTransition returns a guard-free transition.
func NewTransition(from, to State) Transition {
	return Transition{From: from, To: to}
}

// NewGuardedTransition returns a transition that additionally requires the
// guard to match the new document.
func NewGuardedTransition(from, to State, guard Condition) Transition {
	return Transition{From: from, To: to, Guard: guard}
}

// Machine holds the states and transitions of a document state machine.
// Initial states are derived at build time: states appearing as a transition
// source but never as a destination.
type Machine struct {
	states      []State
	transitions []Transition
	initials    []State
}

// Build assembles a machine from its transitions. States are collected in
// order of first appearance.
func Build(transitions []Transition) *Machine {
	var states []State
	seen := map[string]bool{}
	isTo := map[string]bool{}
	for _, t := range transitions {
		for _, s := range []State{t.From, t.To} {
			if !seen[s.ID] {
				seen[s.ID] = true
				states = append(states, s)
			}
		}
		isTo[t.To.ID] = true
	}

	var initials []State
	for _, s := range states {
		if !isTo[s.ID] {
			initials = append(initials, s)
		}
	}
	return &Machine{states: states, transitions: transitions, initials: initials}
}

func (m *Machine) States() []State {
	return m.states
}

func (m *Machine) Transitions() []Transition {
	return m.transitions
}

func (m *Machine) Initials() []State {
	return m.initials
}

// IsInitial reports whether s is an initial state.
func (m *Machine) IsInitial(s State) bool {
	for _, i := range m.initials {
		if i.ID == s.ID {
			return true
		}
	}
	return false
}

// IsValidTransition reports whether an edge from -> to exists whose guard
// (if any) matches doc.
func (m *Machine) IsValidTransition(from, to State, doc interface{}) bool {
	for _, t := range m.transitions {
		if t.From.ID == from.ID && t.To.ID == to.ID {
			if t.Guard != nil {
				return t.Guard.Match(doc)
			}
			return true
		}
	}
	return false
}

// MatchStates returns every state whose predicate matches doc.
func (m *Machine) MatchStates(doc interface{}) []State {
	var matched []State
	for _, s := range m.states {
		if s.Match(doc) {
			matched = append(matched, s)
		}
	}
	return matched
}

// MatchState returns the unique state matching doc, or
// ErrNoStateMatched / ErrTooManyStatesMatched.
func (m *Machine) MatchState(doc interface{}) (State, error) {
	matched := m.MatchStates(doc)
	if len(matched) == 0 {
		return State{}, fmt.Errorf("%w for document(%v)", ErrNoStateMatched, doc)
	}
	if len(matched) > 1 {
		return State{}, fmt.Errorf("%w: %v for document(%v)", ErrTooManyStatesMatched, matched, doc)
	}
	return matched[0], nil
}

// Explain renders the per-condition match result of every state with a
// predicate. Diagnostics only.
func (m *Machine) Explain(doc interface{}) string {
	var parts []string
	for _, s := range m.states {
		if s.Require != nil {
			parts = append(parts, s.Explain(doc))
		}
	}
	return strings.Join(parts, "\n")
}
