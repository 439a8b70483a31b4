package compute

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dshills/ghostline/internal/inline/variant"
	"github.com/dshills/ghostline/internal/logging"
)

// DefaultBufferSize is the default capacity of the results channel.
const DefaultBufferSize = 64

// MessageKind tags a Message.
type MessageKind uint8

const (
	// MessageElement carries the next element of a variant.
	MessageElement MessageKind = iota

	// MessageDone reports that a variant's producer is exhausted.
	MessageDone

	// MessageFailed reports that a variant's producer failed. Err holds the
	// cause.
	MessageFailed

	// MessageMisuse reports a contract violation by the provider. Variant is
	// -1 and Err is a *MisuseError.
	MessageMisuse
)

// String returns the message kind name.
func (k MessageKind) String() string {
	switch k {
	case MessageElement:
		return "element"
	case MessageDone:
		return "done"
	case MessageFailed:
		return "failed"
	case MessageMisuse:
		return "misuse"
	default:
		return "unknown"
	}
}

// Message is one result sent from a task to the foreground. Variant is the
// producer's declaration index.
type Message struct {
	Variant int
	Kind    MessageKind
	Element variant.Element
	Err     error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithBufferSize sets the capacity of the results channel.
func WithBufferSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.bufferSize = n
		}
	}
}

// WithConcurrency limits how many producers compute an element at the same
// time. Zero means no limit.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// Engine computes the variants of one Source.
//
// Start, Demand, Await, Drain, Cancel and Close belong to the foreground and
// must not be called concurrently with each other. Producers run on their
// own goroutines and only communicate through messages.
type Engine struct {
	src        *Source
	logger     *log.Logger
	bufferSize int
	sem        *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
	tasks  []*task

	results   chan Message
	ready     chan struct{}
	misuse    chan *MisuseError
	unbounded atomic.Bool

	started   bool
	closed    bool
	closeOnce sync.Once
	stopWake  func() bool

	owed       []int
	finished   []bool
	running    int
	misuseSeen bool
}

type task struct {
	index    int
	producer Producer
	ctx      context.Context
	cancel   context.CancelFunc
	credits  atomic.Int64
	wake     chan struct{}
}

// New creates an engine for src. Nothing runs until Start.
func New(src *Source, opts ...Option) *Engine {
	if src == nil {
		src = NewSource()
	}
	e := &Engine{
		src:        src,
		logger:     logging.Discard(),
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.results = make(chan Message, e.bufferSize)
	e.ready = make(chan struct{}, 1)
	e.misuse = make(chan *MisuseError, 1)
	return e
}

// Start seals the source and launches one task per producer, each with its
// own child context of ctx.
func (e *Engine) Start(ctx context.Context) error {
	if e.started {
		return ErrAlreadyStarted
	}
	e.started = true

	producers := e.src.seal(e.reportMisuse)
	e.ctx, e.cancel = context.WithCancel(ctx)

	e.tasks = make([]*task, len(producers))
	e.owed = make([]int, len(producers))
	e.finished = make([]bool, len(producers))
	e.running = len(producers)

	for i, p := range producers {
		t := &task{index: i, producer: p, wake: make(chan struct{}, 1)}
		t.ctx, t.cancel = context.WithCancel(e.ctx)
		e.tasks[i] = t
	}
	e.stopWake = context.AfterFunc(e.ctx, func() { poke(e.ready) })
	for _, t := range e.tasks {
		e.group.Go(func() error {
			e.run(t)
			return nil
		})
	}

	e.logger.Debug("engine started", "variants", len(producers))
	return nil
}

// Source returns the source being computed.
func (e *Engine) Source() *Source {
	return e.src
}

// Len returns the number of variants.
func (e *Engine) Len() int {
	return len(e.tasks)
}

// Running returns the number of variants still being computed.
func (e *Engine) Running() int {
	return e.running
}

// IsFinished reports whether variant i is done, failed or cancelled.
func (e *Engine) IsFinished(i int) bool {
	if i < 0 || i >= len(e.finished) {
		return true
	}
	return e.finished[i]
}

// Err returns a non-nil error wrapping ErrScopeEnded once the context given
// to Start ended. It stays nil after Close.
func (e *Engine) Err() error {
	if !e.started || e.closed || e.ctx.Err() == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrScopeEnded, context.Cause(e.ctx))
}

// Ready is signalled whenever a task sent a message and when the engine's
// scope ends.
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

// Demand asks variant i for n more elements.
func (e *Engine) Demand(i, n int) {
	if n <= 0 || e.IsFinished(i) {
		return
	}
	e.owed[i] += n
	t := e.tasks[i]
	t.credits.Add(int64(n))
	poke(t.wake)
}

// DemandAll asks every unfinished variant for n more elements.
func (e *Engine) DemandAll(n int) {
	for i := range e.tasks {
		e.Demand(i, n)
	}
}

// Unbounded lets every producer run to completion without waiting for
// demand.
func (e *Engine) Unbounded() {
	if e.unbounded.Swap(true) {
		return
	}
	for _, t := range e.tasks {
		poke(t.wake)
	}
}

// Cancel stops variant i. Messages it sends afterwards are dropped.
func (e *Engine) Cancel(i int) {
	if e.IsFinished(i) {
		return
	}
	e.finished[i] = true
	e.owed[i] = 0
	e.running--
	e.tasks[i].cancel()
}

// Await blocks until every outstanding demand is met, or, with unbounded
// pacing, until every variant finished. It returns the messages in arrival
// order; messages of one variant keep their production order. A misuse
// report ends the wait early. When ctx or the scope given to Start ends
// first, the messages received so far are returned with the matching error.
func (e *Engine) Await(ctx context.Context) ([]Message, error) {
	if !e.started {
		return nil, ErrNotStarted
	}

	var batch []Message
	for !e.satisfied() {
		select {
		case m := <-e.results:
			batch = e.accept(batch, m)
		case m := <-e.misuse:
			batch = e.acceptMisuse(batch, m)
		case <-e.ctx.Done():
			return e.drain(batch), e.Err()
		case <-ctx.Done():
			if err := e.Err(); err != nil {
				return e.drain(batch), err
			}
			return batch, ctx.Err()
		}
	}
	return e.drain(batch), nil
}

// Drain returns the messages that are ready without blocking.
func (e *Engine) Drain() []Message {
	if !e.started {
		return nil
	}
	return e.drain(nil)
}

// Close cancels every task and waits for them to return.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		if !e.started {
			return
		}
		e.closed = true
		e.stopWake()
		e.cancel()
		_ = e.group.Wait()
		for i := range e.finished {
			e.finished[i] = true
			e.owed[i] = 0
		}
		e.running = 0
		e.logger.Debug("engine closed")
	})
}

func (e *Engine) satisfied() bool {
	if e.misuseSeen {
		return true
	}
	if e.unbounded.Load() {
		return e.running == 0
	}
	for i, owed := range e.owed {
		if owed > 0 && !e.finished[i] {
			return false
		}
	}
	return true
}

func (e *Engine) drain(batch []Message) []Message {
	for {
		select {
		case m := <-e.results:
			batch = e.accept(batch, m)
		case m := <-e.misuse:
			batch = e.acceptMisuse(batch, m)
		default:
			return batch
		}
	}
}

func (e *Engine) accept(batch []Message, m Message) []Message {
	if e.finished[m.Variant] {
		return batch
	}
	switch m.Kind {
	case MessageElement:
		if e.owed[m.Variant] > 0 {
			e.owed[m.Variant]--
		}
	case MessageDone, MessageFailed:
		e.finished[m.Variant] = true
		e.owed[m.Variant] = 0
		e.running--
	}
	return append(batch, m)
}

func (e *Engine) acceptMisuse(batch []Message, m *MisuseError) []Message {
	if e.misuseSeen {
		return batch
	}
	e.misuseSeen = true
	return append(batch, Message{Variant: -1, Kind: MessageMisuse, Err: m})
}

func (e *Engine) reportMisuse(err error) {
	var m *MisuseError
	if !errors.As(err, &m) {
		m = &MisuseError{Op: "source", Err: err}
	}
	e.logger.Error("provider misuse", "err", m)
	select {
	case e.misuse <- m:
	default:
	}
	poke(e.ready)
}

// run is the task loop of one producer.
func (e *Engine) run(t *task) {
	for {
		if !e.acquire(t) {
			return
		}

		el, err := e.next(t)
		if t.ctx.Err() != nil {
			return
		}

		switch {
		case err == nil:
			if !e.send(t, Message{Variant: t.index, Kind: MessageElement, Element: el}) {
				return
			}
		case errors.Is(err, ErrExhausted):
			e.send(t, Message{Variant: t.index, Kind: MessageDone})
			return
		default:
			if errors.Is(err, ErrProducerPanic) {
				e.logger.Warn("producer panicked", "variant", t.index, "err", err)
			} else {
				e.logger.Debug("producer failed", "variant", t.index, "err", err)
			}
			e.send(t, Message{Variant: t.index, Kind: MessageFailed, Err: err})
			return
		}
	}
}

// acquire waits until the task may compute another element.
func (e *Engine) acquire(t *task) bool {
	for {
		if e.unbounded.Load() {
			return true
		}
		for c := t.credits.Load(); c > 0; c = t.credits.Load() {
			if t.credits.CompareAndSwap(c, c-1) {
				return true
			}
		}
		select {
		case <-t.wake:
		case <-t.ctx.Done():
			return false
		}
	}
}

func (e *Engine) next(t *task) (el variant.Element, err error) {
	if e.sem != nil {
		if err := e.sem.Acquire(t.ctx, 1); err != nil {
			return variant.Element{}, err
		}
		defer e.sem.Release(1)
	}
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return t.producer.Next(t.ctx)
}

func (e *Engine) send(t *task, m Message) bool {
	select {
	case e.results <- m:
		poke(e.ready)
		return true
	case <-t.ctx.Done():
		return false
	}
}

func poke(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
