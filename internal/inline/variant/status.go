package variant

import "fmt"

// StatusKind is the computation state of a variant.
type StatusKind uint8

const (
	// StatusUntouched means the producer has not yielded anything yet.
	StatusUntouched StatusKind = iota

	// StatusInProgress means the producer yielded Count elements and is still running.
	StatusInProgress

	// StatusComputed means the producer finished after yielding at least one element.
	StatusComputed

	// StatusEmpty means the producer finished without yielding anything.
	StatusEmpty

	// StatusInvalidated means reconciliation rejected the variant.
	StatusInvalidated

	// StatusErrored means the producer failed. Err holds the cause.
	StatusErrored
)

// String returns the status name.
func (k StatusKind) String() string {
	switch k {
	case StatusUntouched:
		return "untouched"
	case StatusInProgress:
		return "in-progress"
	case StatusComputed:
		return "computed"
	case StatusEmpty:
		return "empty"
	case StatusInvalidated:
		return "invalidated"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Status is a variant's computation status.
type Status struct {
	Kind StatusKind

	// Count is the number of elements the producer has yielded so far.
	Count int

	// Err is the failure cause when Kind is StatusErrored.
	Err error
}

// Untouched returns the initial status.
func Untouched() Status { return Status{Kind: StatusUntouched} }

// InProgress returns a running status after count yields.
func InProgress(count int) Status { return Status{Kind: StatusInProgress, Count: count} }

// Computed returns the finished status after count yields.
func Computed(count int) Status { return Status{Kind: StatusComputed, Count: count} }

// Empty returns the finished-without-output status.
func Empty() Status { return Status{Kind: StatusEmpty} }

// Invalidated returns the rejected status, keeping the yield count.
func Invalidated(count int) Status { return Status{Kind: StatusInvalidated, Count: count} }

// Errored returns the failed status.
func Errored(count int, err error) Status {
	return Status{Kind: StatusErrored, Count: count, Err: err}
}

// IsTerminal reports whether no further element can arrive or be accepted.
// Computed is not terminal: reconciliation may still edit the snapshot.
func (s Status) IsTerminal() bool {
	switch s.Kind {
	case StatusEmpty, StatusInvalidated, StatusErrored:
		return true
	}
	return false
}

// IsFinished reports whether the producer stopped, for any reason.
func (s Status) IsFinished() bool {
	return s.Kind != StatusUntouched && s.Kind != StatusInProgress
}

// String returns a debug representation of the status.
func (s Status) String() string {
	switch s.Kind {
	case StatusInProgress:
		return fmt.Sprintf("in-progress(%d)", s.Count)
	case StatusErrored:
		return fmt.Sprintf("errored(%v)", s.Err)
	default:
		return s.Kind.String()
	}
}
