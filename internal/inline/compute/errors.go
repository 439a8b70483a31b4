package compute

import (
	"errors"
	"fmt"
)

var (
	// ErrExhausted is returned by a Producer that has no more elements.
	ErrExhausted = errors.New("producer exhausted")

	// ErrNestedVariant is returned when a variant is added to a source that
	// is already being computed.
	ErrNestedVariant = errors.New("variant added during computation")

	// ErrAlreadyStarted is returned when an engine is started twice.
	ErrAlreadyStarted = errors.New("engine already started")

	// ErrNotStarted is returned when an engine is used before Start.
	ErrNotStarted = errors.New("engine not started")

	// ErrScopeEnded is returned once the context an engine was started with
	// ends without the engine being closed.
	ErrScopeEnded = errors.New("computation scope ended")

	// ErrProducerPanic matches every PanicError.
	ErrProducerPanic = errors.New("producer panicked")
)

// PanicError is the failure of a producer that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("producer panicked: %v", e.Value)
}

// Is makes errors.Is(err, ErrProducerPanic) hold.
func (e *PanicError) Is(target error) bool {
	return target == ErrProducerPanic
}

// MisuseError reports a contract violation by a provider. It is fatal to the
// session that observes it.
type MisuseError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *MisuseError) Error() string {
	return fmt.Sprintf("inline misuse: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *MisuseError) Unwrap() error {
	return e.Err
}

// IsMisuse reports whether err is a MisuseError.
func IsMisuse(err error) bool {
	var m *MisuseError
	return errors.As(err, &m)
}
