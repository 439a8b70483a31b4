// Package dispatch delivers session events to listeners.
//
// Delivery is synchronous and sequential on the emitting goroutine: every
// listener sees every event, in emission order, before the next event is
// emitted. A listener that emits while being notified is refused with
// ErrReentrantDispatch. Listener panics are recovered and logged.
package dispatch

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dshills/ghostline/internal/inline/event"
	"github.com/dshills/ghostline/internal/logging"
)

var (
	// ErrReentrantDispatch is returned when Emit is called from inside a
	// listener.
	ErrReentrantDispatch = errors.New("event emitted during dispatch")

	// ErrReentrantCall is returned when a guarded operation is entered while
	// it is already running.
	ErrReentrantCall = errors.New("reentrant call")
)

// Dispatcher fans events out to its listeners.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners []*subscription
	nextID    uint64

	executor    *Executor
	logger      *log.Logger
	dispatching atomic.Bool

	emitted     atomic.Uint64
	delivered   atomic.Uint64
	panicked    atomic.Uint64
	refused     atomic.Uint64
	totalTimeNs atomic.Int64
}

type subscription struct {
	id       uint64
	listener event.Listener
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(l *log.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{logger: logging.Discard()}
	for _, opt := range opts {
		opt(d)
	}
	d.executor = NewExecutor(WithExecutorPanicHandler(d.onPanic))
	return d
}

// Subscribe adds a listener. The returned function removes it.
func (d *Dispatcher) Subscribe(l event.Listener) (unsubscribe func()) {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.listeners = append(d.listeners, &subscription{id: id, listener: l})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { d.remove(id) })
	}
}

// SubscribeFunc adds a listener function.
func (d *Dispatcher) SubscribeFunc(fn func(ev event.Event)) (unsubscribe func()) {
	return d.Subscribe(event.ListenerFunc(fn))
}

func (d *Dispatcher) remove(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range d.listeners {
		if s.id == id {
			d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
			return
		}
	}
}

// Emit delivers ev to every listener, in subscription order. It fails with
// ErrReentrantDispatch when called from inside a listener; the nested event
// is dropped.
func (d *Dispatcher) Emit(ev event.Event) error {
	if !d.dispatching.CompareAndSwap(false, true) {
		d.refused.Add(1)
		d.logger.Warn("refused nested event", "event", ev.String())
		return ErrReentrantDispatch
	}
	defer d.dispatching.Store(false)

	d.mu.RLock()
	listeners := make([]*subscription, len(d.listeners))
	copy(listeners, d.listeners)
	d.mu.RUnlock()

	d.emitted.Add(1)
	for _, s := range listeners {
		res := d.executor.Execute(ev, s.listener)
		d.delivered.Add(1)
		d.totalTimeNs.Add(res.Duration.Nanoseconds())
		if res.Panicked {
			d.panicked.Add(1)
		}
	}
	return nil
}

// Dispatching reports whether an event is being delivered.
func (d *Dispatcher) Dispatching() bool {
	return d.dispatching.Load()
}

// Len returns the number of listeners.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners)
}

func (d *Dispatcher) onPanic(ev event.Event, value any, stack []byte) {
	d.logger.Error("listener panicked", "event", ev.String(), "panic", value, "stack", string(stack))
}

// Stats contains dispatcher statistics.
type Stats struct {
	// Emitted is the number of events accepted by Emit.
	Emitted uint64

	// Delivered is the number of listener invocations.
	Delivered uint64

	// Panicked is the number of listener invocations that panicked.
	Panicked uint64

	// Refused is the number of nested emits that were dropped.
	Refused uint64

	// TotalDuration is the cumulative time spent in listeners.
	TotalDuration time.Duration
}

// Stats returns dispatch statistics.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Emitted:       d.emitted.Load(),
		Delivered:     d.delivered.Load(),
		Panicked:      d.panicked.Load(),
		Refused:       d.refused.Load(),
		TotalDuration: time.Duration(d.totalTimeNs.Load()),
	}
}

// ResetStats resets all statistics to zero.
func (d *Dispatcher) ResetStats() {
	d.emitted.Store(0)
	d.delivered.Store(0)
	d.panicked.Store(0)
	d.refused.Store(0)
	d.totalTimeNs.Store(0)
}

// Guard refuses nested entry into an operation.
type Guard struct {
	busy    atomic.Bool
	refused atomic.Uint64
}

// Enter marks the guarded operation as running. It fails with
// ErrReentrantCall when the operation is already running; otherwise the
// returned function must be called to leave.
func (g *Guard) Enter() (leave func(), err error) {
	if !g.busy.CompareAndSwap(false, true) {
		g.refused.Add(1)
		return nil, ErrReentrantCall
	}
	return func() { g.busy.Store(false) }, nil
}

// Busy reports whether the guarded operation is running.
func (g *Guard) Busy() bool {
	return g.busy.Load()
}

// Refused returns the number of refused entries.
func (g *Guard) Refused() uint64 {
	return g.refused.Load()
}
