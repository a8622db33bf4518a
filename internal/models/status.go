package models

import "fmt"

const (
	StatusPending   = "Pending"
	StatusConfirmed = "Confirmed"
	StatusFailed    = "Failed"
	StatusCancelled = "Cancelled"
)

// AllowedTransitions maps a booking status to the statuses it may move to.
// A booking transitions at most once: Pending is the only non-terminal state.
var AllowedTransitions = map[string][]string{
	StatusPending:   {StatusConfirmed, StatusFailed, StatusCancelled},
	StatusConfirmed: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// CanTransition reports whether a status change is allowed.
func CanTransition(from, to string) bool {
	allowed, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an error for a disallowed status change.
func ValidateTransition(from, to string) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// InvalidTransitionError reports a rejected booking status change.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid booking transition from %s to %s", e.From, e.To)
}
