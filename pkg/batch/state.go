package batch

import "fmt"

// State is the lifecycle state of a Task.
type State int

const (
	// Created means the task exists but has not been started.
	Created State = iota + 1

	// Started means items are being dispatched.
	Started

	// Completed means every item has an outcome. Terminal for fetching.
	Completed

	// Saved means the results were persisted. Reachable only from Completed.
	Saved

	// Stopped means the task was cancelled. No save is attempted.
	Stopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Started:
		return "started"
	case Completed:
		return "completed"
	case Saved:
		return "saved"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// IsTerminal reports whether no further fetch activity can happen in s.
func (s State) IsTerminal() bool {
	return s == Completed || s == Saved || s == Stopped
}

// edges lists the allowed transitions. State only moves forward.
var edges = map[State][]State{
	Created:   {Started, Stopped},
	Started:   {Completed, Stopped},
	Completed: {Saved},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to State) bool {
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}
