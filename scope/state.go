package scope

import "fmt"

// State is the position of a job in its lifecycle.
//
//	Pending -> Active -> Completing -> Completed
//	             |           |
//	             +-----------+-> Cancelling -> Cancelled
//
// Pending is only used by lazily started jobs.
type State int

const (
	Pending State = iota
	Active
	Completing
	Completed
	Cancelling
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Active:
		return "Active"
	case Completing:
		return "Completing"
	case Completed:
		return "Completed"
	case Cancelling:
		return "Cancelling"
	case Cancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == Completed || s == Cancelled }

// running reports whether the job still counts as active.
func (s State) running() bool { return s == Active || s == Completing }
