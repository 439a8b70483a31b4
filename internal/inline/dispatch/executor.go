package dispatch

import (
	"runtime/debug"
	"time"

	"github.com/dshills/ghostline/internal/inline/event"
)

// PanicHandler is called when a listener panics.
type PanicHandler func(ev event.Event, value any, stack []byte)

// Result is the outcome of delivering one event to one listener.
type Result struct {
	Duration   time.Duration
	Panicked   bool
	PanicValue any
	PanicStack []byte
}

// Executor delivers an event to a listener with panic recovery and timing.
type Executor struct {
	panicHandler PanicHandler
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorPanicHandler sets the panic handler for the executor.
func WithExecutorPanicHandler(h PanicHandler) ExecutorOption {
	return func(e *Executor) {
		e.panicHandler = h
	}
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute calls l with ev. A panic in l is recovered and reported in the
// result and to the panic handler.
func (e *Executor) Execute(ev event.Event, l event.Listener) (result Result) {
	start := time.Now()

	defer func() {
		result.Duration = time.Since(start)

		if r := recover(); r != nil {
			stack := debug.Stack()
			result.Panicked = true
			result.PanicValue = r
			result.PanicStack = stack

			if e.panicHandler != nil {
				func() {
					defer func() {
						_ = recover()
					}()
					e.panicHandler(ev, r, stack)
				}()
			}
		}
	}()

	l.OnEvent(ev)
	return result
}
