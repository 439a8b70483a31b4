// Package controller connects inline suggestion sessions to an editor
// buffer.
//
// A Controller owns at most one live session for its buffer. It picks the
// provider for each request, turns buffer change notifications into
// update events and maps host actions onto the live session. Every session
// it creates emits through the controller's dispatcher, so listeners see
// one ordered stream across sessions.
package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/dshills/ghostline/internal/document"
	"github.com/dshills/ghostline/internal/inline/dispatch"
	"github.com/dshills/ghostline/internal/inline/event"
	"github.com/dshills/ghostline/internal/inline/provider"
	"github.com/dshills/ghostline/internal/inline/session"
	"github.com/dshills/ghostline/internal/inline/update"
	"github.com/dshills/ghostline/internal/logging"
)

var (
	// ErrNoSession is returned for actions that need a live session.
	ErrNoSession = errors.New("no live session")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("controller closed")
)

// Buffer is the editor buffer a controller serves.
type Buffer interface {
	session.TextBuffer
	Subscribe(fn func(document.Change)) (unsubscribe func())
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDispatcher sets the dispatcher sessions emit through.
func WithDispatcher(d *dispatch.Dispatcher) Option {
	return func(c *Controller) {
		if d != nil {
			c.dispatcher = d
		}
	}
}

// WithSessionOptions passes options to every session.
func WithSessionOptions(opts ...session.Option) Option {
	return func(c *Controller) {
		c.sessionOpts = append(c.sessionOpts, opts...)
	}
}

// WithAutoTrigger starts a typing request whenever text is typed while no
// session is live.
func WithAutoTrigger(enabled bool) Option {
	return func(c *Controller) {
		c.autoTrigger = enabled
	}
}

// Controller manages the inline suggestion session of one buffer. It is
// driven from a single goroutine: host actions and buffer edits must come
// from the same goroutine.
type Controller struct {
	buffer      Buffer
	providers   []provider.Provider
	dispatcher  *dispatch.Dispatcher
	logger      *log.Logger
	sessionOpts []session.Option
	autoTrigger bool

	ctx    context.Context
	cancel context.CancelFunc

	current     *session.Session
	unsubscribe func()
	closed      bool

	stats Stats
}

// Stats counts controller activity.
type Stats struct {
	Requests   int
	NoProvider int
	Replaced   int
	Changes    int
	Ignored    int
	Failures   int
}

// New creates a controller for buffer that asks providers, in order, for
// suggestions.
func New(buffer Buffer, providers []provider.Provider, opts ...Option) *Controller {
	c := &Controller{
		buffer:    buffer,
		providers: providers,
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dispatcher == nil {
		c.dispatcher = dispatch.New(dispatch.WithLogger(c.logger))
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.unsubscribe = buffer.Subscribe(c.onChange)
	return c
}

// Dispatcher returns the dispatcher listeners subscribe to.
func (c *Controller) Dispatcher() *dispatch.Dispatcher {
	return c.dispatcher
}

// Session returns the live session, or nil.
func (c *Controller) Session() *session.Session {
	if c.current == nil || c.current.State() == session.StateTerminated {
		return nil
	}
	return c.current
}

// Last returns the most recent session, live or not.
func (c *Controller) Last() *session.Session {
	return c.current
}

// Stats returns the controller statistics.
func (c *Controller) Stats() Stats {
	return c.stats
}

// Request starts a session for a request made at caret offset. A live
// session is hidden with FinishOther first.
func (c *Controller) Request(ctx context.Context, trigger provider.Trigger, offset int) (*session.Session, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if c.dispatcher.Dispatching() {
		return nil, dispatch.ErrReentrantCall
	}

	if live := c.Session(); live != nil {
		c.stats.Replaced++
		if err := live.Cancel(event.FinishOther); err != nil {
			return nil, fmt.Errorf("replace session: %w", err)
		}
	}

	req := provider.NewRequest(trigger, c.buffer.Text(), offset)
	p, err := provider.Select(c.providers, req)
	if err != nil {
		c.stats.NoProvider++
		return nil, err
	}

	src, err := p.Suggest(ctx, req)
	if err != nil {
		c.stats.Failures++
		return nil, fmt.Errorf("provider %s: %w", p.ID(), err)
	}

	opts := append([]session.Option{session.WithLogger(logging.Sub(c.logger, "session"))}, c.sessionOpts...)
	s := session.New(req, src, c.buffer, c.dispatcher, opts...)
	c.current = s
	c.stats.Requests++

	c.logger.Debug("request", "provider", p.ID(), "request", req, "variants", src.Len())
	if err := s.Start(ctx); err != nil {
		_ = s.Cancel(event.FinishError)
		return nil, err
	}
	return s, nil
}

// ComputeNextElements asks the live session for n more elements per variant.
func (c *Controller) ComputeNextElements(ctx context.Context, n int) error {
	s, err := c.live()
	if err != nil {
		return err
	}
	return s.ComputeNextElements(ctx, n)
}

// CompleteAll runs the live session's producers to completion.
func (c *Controller) CompleteAll(ctx context.Context) error {
	s, err := c.live()
	if err != nil {
		return err
	}
	return s.CompleteAll(ctx)
}

// Pump incorporates ready output into the live session.
func (c *Controller) Pump() (int, error) {
	s := c.Session()
	if s == nil {
		return 0, nil
	}
	return s.Pump()
}

// NextVariant switches the live session to its next variant.
func (c *Controller) NextVariant() error {
	s, err := c.live()
	if err != nil {
		return err
	}
	return s.NextVariant()
}

// PrevVariant switches the live session to its previous variant.
func (c *Controller) PrevVariant() error {
	s, err := c.live()
	if err != nil {
		return err
	}
	return s.PrevVariant()
}

// Insert accepts the displayed variant.
func (c *Controller) Insert() error {
	s, err := c.live()
	if err != nil {
		return err
	}
	return s.Insert()
}

// Cancel hides the live session. It does nothing when no session is live.
func (c *Controller) Cancel(finish event.FinishType) error {
	s := c.Session()
	if s == nil {
		return nil
	}
	return s.Cancel(finish)
}

// HandleEvent forwards a host event to the live session.
func (c *Controller) HandleEvent(ev update.Event) error {
	s, err := c.live()
	if err != nil {
		return err
	}
	return s.HandleEvent(ev)
}

// Close hides the live session with FinishEditorRemoved and stops
// observing the buffer.
func (c *Controller) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.Cancel(event.FinishEditorRemoved)
	c.unsubscribe()
	c.cancel()
	return err
}

func (c *Controller) live() (*session.Session, error) {
	if c.closed {
		return nil, ErrClosed
	}
	s := c.Session()
	if s == nil {
		return nil, ErrNoSession
	}
	return s, nil
}

// onChange turns a buffer edit into an update event for the live session.
func (c *Controller) onChange(ch document.Change) {
	if c.closed {
		return
	}
	c.stats.Changes++

	if c.dispatcher.Dispatching() {
		c.stats.Ignored++
		c.logger.Warn("buffer edited from a listener", "change", ch)
		return
	}

	s := c.Session()
	if s == nil {
		c.maybeTrigger(ch)
		return
	}

	ev := update.DocumentChange{Offset: ch.Offset, Inserted: ch.Inserted, Removed: ch.Removed}
	if err := s.HandleEvent(ev); err != nil {
		c.stats.Ignored++
		c.logger.Warn("change not delivered", "change", ch, "err", err)
	}
}

func (c *Controller) maybeTrigger(ch document.Change) {
	if !c.autoTrigger || ch.Inserted == "" || ch.Removed != "" {
		return
	}
	_, err := c.Request(c.ctx, provider.TriggerTyping, ch.Offset+len(ch.Inserted))
	if err != nil && !errors.Is(err, provider.ErrNoProvider) {
		c.logger.Warn("typing request failed", "err", err)
	}
}
