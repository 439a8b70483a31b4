package session

import (
	"errors"

	"github.com/dshills/ghostline/internal/inline/dispatch"
)

// Sentinel errors for the session package.
var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("session already started")

	// ErrNotActive is returned for operations that need a started session
	// that has not terminated.
	ErrNotActive = errors.New("session is not active")

	// ErrNothingDisplayed is returned by Insert when no variant is displayed.
	ErrNothingDisplayed = errors.New("no variant displayed")

	// ErrReentrantCall is returned when a session operation is called while
	// another one is running, for instance from a listener.
	ErrReentrantCall = dispatch.ErrReentrantCall
)
