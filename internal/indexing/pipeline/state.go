package pipeline

import (
	"errors"
	"time"
)

// State is the position of a loop within one ingestion cycle.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateJoining
	StateComputing
	StateWriting
	StateSleeping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateJoining:
		return "joining"
	case StateComputing:
		return "computing"
	case StateWriting:
		return "writing"
	case StateSleeping:
		return "sleeping"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions.
// Every working state may fall through to Sleeping when a cycle ends early.
var ValidTransitions = map[State][]State{
	StateIdle:      {StateFetching, StateSleeping},
	StateFetching:  {StateJoining, StateSleeping},
	StateJoining:   {StateComputing, StateSleeping},
	StateComputing: {StateWriting, StateSleeping},
	StateWriting:   {StateSleeping},
	StateSleeping:  {StateIdle},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	for _, target := range ValidTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a state change with metadata.
type Transition struct {
	From      State
	To        State
	Timestamp time.Time
}

// NewTransition creates a new transition record.
func NewTransition(from, to State) Transition {
	return Transition{From: from, To: to, Timestamp: time.Now()}
}

// IsValid returns true if this transition is allowed by the state machine.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}

// StateDescription returns a human-readable description of a state.
func StateDescription(s State) string {
	switch s {
	case StateIdle:
		return "Idle - reading progress"
	case StateFetching:
		return "Fetching - querying upstream services"
	case StateJoining:
		return "Joining - correlating streams"
	case StateComputing:
		return "Computing - valuing commitments"
	case StateWriting:
		return "Writing - merging rows into the table store"
	case StateSleeping:
		return "Sleeping - waiting for the next cycle"
	default:
		return "Unknown state"
	}
}
