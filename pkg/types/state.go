package types

import "fmt"

// Phase is the coarse position of a session in its lifecycle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseResolving  Phase = "resolving"
	PhaseFinalizing Phase = "finalizing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// State is a session state. Index is only meaningful while resolving.
type State struct {
	Phase Phase `json:"phase"`
	Index int   `json:"index,omitempty"`
}

var (
	StateIdle       = State{Phase: PhaseIdle}
	StateFinalizing = State{Phase: PhaseFinalizing}
	StateCompleted  = State{Phase: PhaseCompleted}
	StateFailed     = State{Phase: PhaseFailed}
)

// Resolving returns the state for resolving argument i.
func Resolving(i int) State {
	return State{Phase: PhaseResolving, Index: i}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s.Phase == PhaseCompleted || s.Phase == PhaseFailed
}

func (s State) String() string {
	if s.Phase == PhaseResolving {
		return fmt.Sprintf("resolving(%d)", s.Index)
	}
	return string(s.Phase)
}
