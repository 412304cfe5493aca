package model

import "fmt"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

var terminalStatuses = map[Status]bool{
	StatusCompleted: true,
	StatusFailed:    true,
	StatusSkipped:   true,
}

// Queue item transitions: pending ↔ in_progress → terminal.
// Terminal states are never reused in place; retry moves the item back
// to pending as an explicit transition.
var validItemTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusInProgress: true,
		StatusSkipped:    true,
		StatusFailed:     true,
	},
	StatusInProgress: {
		StatusPending:   true, // operator abort → back to pending
		StatusCompleted: true,
		StatusFailed:    true,
		StatusSkipped:   true,
	},
	StatusCompleted: {
		StatusPending: true, // explicit retry
	},
	StatusFailed: {
		StatusPending: true, // explicit retry
	},
	StatusSkipped: {
		StatusPending: true, // explicit retry
	},
}

func IsTerminal(s Status) bool {
	return terminalStatuses[s]
}

func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// ValidateItemTransition reports whether a queue item may move from one
// status to another. Transitions out of a terminal status are only legal
// back to pending (retry).
func ValidateItemTransition(from, to Status) error {
	allowed, ok := validItemTransitions[from]
	if !ok {
		return fmt.Errorf("unknown status %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid item transition: %q → %q", from, to)
	}
	return nil
}
