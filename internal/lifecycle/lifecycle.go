// Package lifecycle defines the remittance status machine.
//
// The transition table below is the single source of truth: every status
// check in the engine defers to it. Terminal statuses accept no outbound
// transition; a same-state transition is a permitted no-op.
package lifecycle

import (
	"github.com/swiftremit/swiftremit/internal/errs"
)

// Status is the remittance lifecycle state.
type Status string

const (
	Pending    Status = "pending"
	Processing Status = "processing"
	Completed  Status = "completed"
	Cancelled  Status = "cancelled"
	Failed     Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case Pending, Processing, Completed, Cancelled, Failed:
		return true
	}
	return false
}

// Terminal reports whether s accepts no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case Completed, Cancelled, Failed:
		return true
	}
	return false
}

// transitions is the full table of permitted state changes.
var transitions = map[Status]map[Status]bool{
	Pending: {
		Processing: true,
		Cancelled:  true,
	},
	Processing: {
		Completed: true,
		Failed:    true,
	},
}

// CanTransition reports whether from → to is permitted. Same-state
// transitions are permitted (and are no-ops for callers).
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	return transitions[from][to]
}

// Validate returns the error for an attempted from → to change, or nil if
// it is permitted. Unknown statuses are InvalidStatus; off-table changes
// are InvalidStateTransition.
func Validate(from, to Status) error {
	if !from.Valid() || !to.Valid() {
		return errs.InvalidStatus
	}
	if !CanTransition(from, to) {
		return errs.InvalidStateTransition
	}
	return nil
}
