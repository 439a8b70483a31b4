// Package session implements the inline suggestion session: the state
// machine that owns one request's variants, decides which one is
// displayed, reconciles them against edits and reports every transition as
// an event.
//
// A session is driven from a single foreground goroutine. Producers run on
// their own goroutines inside a compute.Engine; their output is only
// incorporated when the foreground calls ComputeNextElements, Await,
// CompleteAll or Pump.
package session

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dshills/ghostline/internal/inline/compute"
	"github.com/dshills/ghostline/internal/inline/dispatch"
	"github.com/dshills/ghostline/internal/inline/event"
	"github.com/dshills/ghostline/internal/inline/provider"
	"github.com/dshills/ghostline/internal/inline/update"
	"github.com/dshills/ghostline/internal/inline/variant"
	"github.com/dshills/ghostline/internal/logging"
)

// State is the lifecycle state of a session.
type State uint8

const (
	StateIdle State = iota
	StateActive
	StateInserting
	StateTerminated
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateInserting:
		return "inserting"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// TextBuffer is the part of the editor buffer a session needs.
type TextBuffer interface {
	Text() string
	InsertText(offset int, text string) error
	SuppressNotifications(fn func() error) error
}

// Emitter receives the session's events.
type Emitter interface {
	Emit(ev event.Event) error
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEngineOptions passes options to the session's compute engine.
func WithEngineOptions(opts ...compute.Option) Option {
	return func(s *Session) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// WithEager makes every producer run to completion without waiting for
// demand.
func WithEager(eager bool) Option {
	return func(s *Session) {
		s.eager = eager
	}
}

// WithFallbackReconciler sets the reconciler used when the source has none.
func WithFallbackReconciler(r update.Reconciler) Option {
	return func(s *Session) {
		s.fallback = r
	}
}

// slot is one variant of the suggestion.
type slot struct {
	decl int
	snap variant.Snapshot
}

// Session is one inline suggestion request and everything it displays.
type Session struct {
	id      uuid.UUID
	request provider.Request
	buffer  TextBuffer
	emitter Emitter
	logger  *log.Logger

	engineOpts []compute.Option
	eager      bool
	fallback   update.Reconciler

	engine  *compute.Engine
	manager *update.Manager
	guard   dispatch.Guard

	state     State
	slots     []*slot
	byDecl    map[int]int
	active    int
	typed     string
	landed    int
	completed bool
	err       error

	reconciling bool
	misuse      error

	stats Stats
}

// Stats counts what a session did.
type Stats struct {
	Events        int
	Elements      int
	Switches      int
	Invalidations int
	Refused       uint64
}

// New creates an idle session for req computing the variants of src.
func New(req provider.Request, src *compute.Source, buffer TextBuffer, emitter Emitter, opts ...Option) *Session {
	s := &Session{
		id:      uuid.New(),
		request: req,
		buffer:  buffer,
		emitter: emitter,
		logger:  logging.Discard(),
		byDecl:  make(map[int]int),
		active:  -1,
		landed:  -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.emitter == nil {
		s.emitter = dispatch.New(dispatch.WithLogger(s.logger))
	}
	s.engine = compute.New(src, append([]compute.Option{compute.WithLogger(s.logger)}, s.engineOpts...)...)
	s.manager = update.NewManager(s.fallback)
	return s
}

// ID returns the session ID.
func (s *Session) ID() uuid.UUID { return s.id }

// Request returns the request the session serves.
func (s *Session) Request() provider.Request { return s.request }

// State returns the lifecycle state.
func (s *Session) State() State { return s.state }

// Err returns the failure that ended the session, if any.
func (s *Session) Err() error { return s.err }

// ActiveIndex returns the displayed variant's index, or -1.
func (s *Session) ActiveIndex() int { return s.active }

// Len returns the number of variants discovered so far.
func (s *Session) Len() int { return len(s.slots) }

// Variant returns the snapshot of variant i in suggestion order.
func (s *Session) Variant(i int) (variant.Snapshot, bool) {
	if i < 0 || i >= len(s.slots) {
		return variant.Snapshot{}, false
	}
	return s.slots[i].snap, true
}

// Active returns the displayed variant.
func (s *Session) Active() (variant.Snapshot, bool) {
	if s.state != StateActive {
		return variant.Snapshot{}, false
	}
	return s.Variant(s.active)
}

// Typed returns the text typed at the caret since the request.
func (s *Session) Typed() string { return s.typed }

// Caret returns the caret offset the session expects. After Insert it is the
// end of the inserted variant, skip elements included.
func (s *Session) Caret() int {
	if s.landed >= 0 {
		return s.landed
	}
	return s.request.Offset + len(s.typed)
}

// IsComputing reports whether any producer is still running.
func (s *Session) IsComputing() bool {
	return s.engine.Running() > 0
}

// Ready is signalled when producers have output waiting for Pump.
func (s *Session) Ready() <-chan struct{} {
	return s.engine.Ready()
}

// Stats returns the session statistics.
func (s *Session) Stats() Stats {
	st := s.stats
	st.Refused = s.guard.Refused()
	return st
}

// Start emits Request and starts computing.
func (s *Session) Start(ctx context.Context) error {
	leave, err := s.enter()
	if err != nil {
		return err
	}
	defer leave()

	if s.state != StateIdle {
		return ErrAlreadyStarted
	}

	s.emit(event.Request{Request: s.request})
	if err := s.engine.Start(ctx); err != nil {
		return err
	}
	s.state = StateActive
	if s.eager {
		s.engine.Unbounded()
	}
	s.logger.Debug("session started", "id", s.id, "variants", s.engine.Len(), "trigger", s.request.Trigger)

	s.settle()
	s.abandon()
	return nil
}

// ComputeNextElement asks every unfinished variant for one more element and
// waits for them.
func (s *Session) ComputeNextElement(ctx context.Context) error {
	return s.ComputeNextElements(ctx, 1)
}

// ComputeNextElements asks every unfinished variant for n more elements and
// waits for them.
func (s *Session) ComputeNextElements(ctx context.Context, n int) error {
	return s.compute(ctx, func() { s.engine.DemandAll(n) })
}

// Await waits for everything already demanded.
func (s *Session) Await(ctx context.Context) error {
	return s.compute(ctx, func() {})
}

// CompleteAll runs every producer to completion.
func (s *Session) CompleteAll(ctx context.Context) error {
	return s.compute(ctx, s.engine.Unbounded)
}

func (s *Session) compute(ctx context.Context, demand func()) error {
	leave, err := s.enter()
	if err != nil {
		return err
	}
	defer leave()

	if s.state != StateActive {
		return ErrNotActive
	}

	demand()
	batch, err := s.engine.Await(ctx)
	s.process(batch)
	s.settle()
	if scopeErr := s.abandon(); scopeErr != nil {
		return scopeErr
	}
	return err
}

// Pump incorporates whatever output is ready without blocking. It returns
// the number of messages processed.
func (s *Session) Pump() (int, error) {
	leave, err := s.enter()
	if err != nil {
		return 0, err
	}
	defer leave()

	if s.state != StateActive {
		return 0, nil
	}

	batch := s.engine.Drain()
	s.process(batch)
	s.settle()
	return len(batch), s.abandon()
}

// NextVariant displays the next displayable variant, wrapping around.
func (s *Session) NextVariant() error {
	return s.cycle(1)
}

// PrevVariant displays the previous displayable variant, wrapping around.
func (s *Session) PrevVariant() error {
	return s.cycle(-1)
}

func (s *Session) cycle(dir int) error {
	leave, err := s.enter()
	if err != nil {
		return err
	}
	defer leave()

	if s.state != StateActive {
		return ErrNotActive
	}
	if s.active < 0 {
		return nil
	}
	if to := s.candidate(s.active, dir); to >= 0 {
		s.switchTo(to, true)
	}
	return nil
}

// Insert writes the displayed variant into the buffer at the caret and
// ends the session.
func (s *Session) Insert() error {
	leave, err := s.enter()
	if err != nil {
		return err
	}
	defer leave()

	if s.state != StateActive {
		return ErrNotActive
	}
	snap, ok := s.Variant(s.active)
	if !ok {
		return ErrNothingDisplayed
	}

	s.state = StateInserting
	index := s.active
	text := snap.Text()
	s.emit(event.Insert{Variant: index, Text: text})

	offset := s.Caret()
	err = s.buffer.SuppressNotifications(func() error {
		for _, el := range snap.Elements() {
			if el.Kind() == variant.KindInsertable {
				if err := s.buffer.InsertText(offset, el.Text()); err != nil {
					return err
				}
			}
			offset += len(el.Text())
		}
		return nil
	})
	if err != nil {
		s.fatal(err)
		return err
	}
	s.landed = offset

	s.emit(event.Hide{Finish: event.FinishSelected, Displaying: true})
	s.emit(event.AfterInsert{Variant: index, Text: text})
	s.finish(event.FinishSelected)
	return nil
}

// Cancel hides the session for the given reason and stops computation.
func (s *Session) Cancel(finish event.FinishType) error {
	leave, err := s.enter()
	if err != nil {
		return err
	}
	defer leave()

	switch s.state {
	case StateTerminated:
		return nil
	case StateIdle:
		s.state = StateTerminated
		s.engine.Close()
		return nil
	}
	s.terminate(finish)
	return nil
}

// HandleEvent reconciles every variant against ev.
func (s *Session) HandleEvent(ev update.Event) error {
	leave, err := s.enter()
	if err != nil {
		return err
	}
	defer leave()

	if s.state != StateActive {
		return ErrNotActive
	}

	if change, ok := ev.(update.DocumentChange); ok {
		if finish, stop := s.track(change); stop {
			s.terminate(finish)
			return nil
		}
	}

	targets := make([]update.Target, 0, len(s.slots))
	reconciler := s.engine.Source().Reconciler()
	for i, sl := range s.slots {
		if sl.snap.Status().IsTerminal() {
			continue
		}
		targets = append(targets, update.Target{Index: i, Snapshot: sl.snap, Reconciler: reconciler})
	}

	s.reconciling = true
	decisions := s.manager.Apply(ev, targets)
	s.reconciling = false

	if s.misuse != nil {
		s.fatal(s.misuse)
		return nil
	}
	s.apply(decisions)
	s.settle()
	return nil
}

// track follows the caret through a document change. It reports whether
// the change ends the session and why.
func (s *Session) track(c update.DocumentChange) (event.FinishType, bool) {
	caret := s.Caret()
	switch {
	case c.IsTyping():
		if c.Offset != caret {
			return event.FinishDocumentChanged, true
		}
		s.typed += c.Inserted
	case c.IsDeletion():
		if c.Offset+len(c.Removed) != caret {
			return event.FinishDocumentChanged, true
		}
		if len(c.Removed) > len(s.typed) {
			return event.FinishBackspacePressed, true
		}
		if s.typed[len(s.typed)-len(c.Removed):] != c.Removed {
			return event.FinishDocumentChanged, true
		}
		s.typed = s.typed[:len(s.typed)-len(c.Removed)]
	default:
		return event.FinishDocumentChanged, true
	}
	return 0, false
}

// apply incorporates reconciliation decisions. Change and Invalidated go
// out in ascending variant order before the displayed variant is replaced.
func (s *Session) apply(decisions []update.Decision) {
	activeInvalidated, activeTyped := false, false

	for _, d := range decisions {
		sl := s.slots[d.Index]
		if d.Err != nil {
			s.fatal(d.Err)
			return
		}

		switch d.Outcome {
		case update.OutcomeChanged:
			sl.snap = d.After
			if d.Before.Text() != d.After.Text() || d.Before.Len() != d.After.Len() {
				s.emit(event.Change{Variant: d.Index, LengthDiff: d.LengthDiff()})
			}
			if d.FullyTyped() && d.Index == s.active {
				activeTyped = true
			}
		case update.OutcomeInvalidated:
			s.invalidate(d.Index)
			if d.Index == s.active {
				activeInvalidated = true
			}
		}
	}

	switch {
	case activeInvalidated:
		s.advance(event.FinishInvalidated)
	case activeTyped:
		s.emit(event.Empty{Variant: s.active})
		s.advance(event.FinishTyped)
	}
}

// process incorporates engine messages in order.
func (s *Session) process(batch []compute.Message) {
	for _, m := range batch {
		if s.state != StateActive {
			return
		}
		switch m.Kind {
		case compute.MessageMisuse:
			s.fatal(m.Err)
		case compute.MessageElement:
			s.arrived(m.Variant, m.Element)
		case compute.MessageDone:
			s.done(m.Variant)
		case compute.MessageFailed:
			s.failed(m.Variant, m.Err)
		}
	}
}

// slotFor returns the slot for a producer, appending it to the suggestion
// the first time the producer is heard from.
func (s *Session) slotFor(decl int) (int, *slot) {
	if i, ok := s.byDecl[decl]; ok {
		return i, s.slots[i]
	}
	sl := &slot{decl: decl, snap: variant.New(variant.ID(decl)).WithPending(s.typed)}
	s.slots = append(s.slots, sl)
	i := len(s.slots) - 1
	s.byDecl[decl] = i
	return i, sl
}

func (s *Session) arrived(decl int, el variant.Element) {
	i, sl := s.slotFor(decl)
	if sl.snap.Status().IsTerminal() {
		return
	}
	s.stats.Elements++

	before := sl.snap.Len()
	next, outcome := update.Incoming(sl.snap, el)
	if outcome == update.OutcomeInvalidated {
		s.invalidate(i)
		if i == s.active {
			s.advance(event.FinishInvalidated)
		}
		return
	}
	sl.snap = next

	if s.active < 0 && s.displayable(i) {
		s.active = i
		s.stats.Switches++
		s.emit(event.VariantSwitched{From: -1, To: i, Explicit: false})
	}
	if i != s.active {
		return
	}
	for k := before; k < next.Len(); k++ {
		s.emit(event.Computed{Variant: i, Element: next.Element(k), Index: k})
		s.emit(event.Show{Variant: i, Element: next.Element(k), Index: k})
	}
}

func (s *Session) done(decl int) {
	i, sl := s.slotFor(decl)
	if sl.snap.Status().IsTerminal() {
		return
	}

	next, outcome := update.Finish(sl.snap)
	sl.snap = next
	switch {
	case next.Status().Kind == variant.StatusEmpty:
	case outcome == update.OutcomeInvalidated:
		s.stats.Invalidations++
		s.emit(event.Invalidated{Variant: i})
		if i == s.active {
			s.advance(event.FinishInvalidated)
		}
	default:
		s.emit(event.VariantComputed{Variant: i})
		if i == s.active && next.IsEmpty() {
			s.emit(event.Empty{Variant: i})
			s.advance(event.FinishTyped)
		}
	}
}

func (s *Session) failed(decl int, err error) {
	i, sl := s.slotFor(decl)
	if sl.snap.Status().IsTerminal() {
		return
	}
	sl.snap = sl.snap.WithStatus(variant.Errored(sl.snap.Status().Count, err))
	if i == s.active {
		s.fatal(err)
		return
	}
	s.logger.Debug("variant failed before it was displayed", "variant", i, "err", err)
}

// invalidate marks variant i invalid, stops its producer and reports it.
func (s *Session) invalidate(i int) {
	sl := s.slots[i]
	sl.snap = sl.snap.WithStatus(variant.Invalidated(sl.snap.Status().Count))
	s.engine.Cancel(sl.decl)
	s.stats.Invalidations++
	s.emit(event.Invalidated{Variant: i})
}

// advance moves away from a displayed variant that can no longer be shown,
// or hides the session when no other variant can be.
func (s *Session) advance(finish event.FinishType) {
	if to := s.candidate(s.active, 1); to >= 0 && to != s.active {
		s.switchTo(to, false)
		return
	}
	s.terminate(finish)
}

// candidate returns the next displayable variant after from in direction
// dir, wrapping, or -1. from itself is never returned.
func (s *Session) candidate(from, dir int) int {
	n := len(s.slots)
	for k := 1; k < n; k++ {
		i := ((from+dir*k)%n + n) % n
		if s.displayable(i) {
			return i
		}
	}
	return -1
}

// displayable reports whether variant i has text to show.
func (s *Session) displayable(i int) bool {
	snap := s.slots[i].snap
	return !snap.Status().IsTerminal() && !snap.IsEmpty()
}

// switchTo displays variant to and replays its elements.
func (s *Session) switchTo(to int, explicit bool) {
	from := s.active
	s.active = to
	s.stats.Switches++
	s.emit(event.VariantSwitched{From: from, To: to, Explicit: explicit})

	snap := s.slots[to].snap
	for k := range snap.Len() {
		s.emit(event.Show{Variant: to, Element: snap.Element(k), Index: k})
	}
}

// settle emits Completion once every producer finished, or ends a session
// that has nothing to show.
func (s *Session) settle() {
	if s.state != StateActive || s.completed || s.engine.Running() > 0 {
		return
	}
	if s.active >= 0 {
		s.completed = true
		s.emit(event.Completion{Cause: nil, IsActive: true})
		return
	}
	s.resolveNone()
}

// resolveNone ends a session whose producers all finished without a
// variant ever being displayed.
func (s *Session) resolveNone() {
	typed, invalid := false, false
	for _, sl := range s.slots {
		switch sl.snap.Status().Kind {
		case variant.StatusComputed:
			typed = true
		case variant.StatusInvalidated:
			invalid = true
		}
	}

	switch {
	case typed:
		s.terminate(event.FinishTyped)
	case invalid:
		s.terminate(event.FinishInvalidated)
	default:
		s.emit(event.NoVariants{})
		s.terminate(event.FinishEmpty)
	}
}

// terminate hides the session and reports Completion if it has not been
// reported yet.
func (s *Session) terminate(finish event.FinishType) {
	if s.state == StateTerminated {
		return
	}
	s.emit(event.Hide{Finish: finish, Displaying: s.active >= 0})
	s.finish(finish)
}

// finish stops computation and emits the pending Completion.
func (s *Session) finish(finish event.FinishType) {
	running := s.engine.Running() > 0
	s.engine.Close()
	s.state = StateTerminated

	if s.completed {
		return
	}
	s.completed = true
	var cause error
	if running {
		cause = &event.CancellationCause{Finish: finish}
	}
	s.emit(event.Completion{Cause: cause, IsActive: false})
	s.logger.Debug("session finished", "id", s.id, "finish", finish)
}

// abandon terminates the session once the context it was started with has
// ended. Producers still running make the Completion a cancellation.
func (s *Session) abandon() error {
	err := s.engine.Err()
	if err == nil || s.state != StateActive {
		return nil
	}
	s.logger.Debug("computation scope ended", "id", s.id, "err", err)
	s.terminate(event.FinishOther)
	return err
}

// fatal ends the session with a failure.
func (s *Session) fatal(err error) {
	if s.state == StateTerminated {
		return
	}
	s.err = err
	s.logger.Error("session failed", "id", s.id, "err", err)

	s.emit(event.Hide{Finish: event.FinishError, Displaying: s.active >= 0})
	s.engine.Close()
	s.state = StateTerminated
	if !s.completed {
		s.completed = true
		s.emit(event.Completion{Cause: err, IsActive: false})
	}
}

func (s *Session) emit(ev event.Event) {
	s.stats.Events++
	if err := s.emitter.Emit(ev); err != nil {
		s.logger.Warn("event not delivered", "event", ev.String(), "err", err)
	}
}

// enter guards a public operation against reentrant calls. A reentrant
// call made by a reconciler is recorded as misuse.
func (s *Session) enter() (func(), error) {
	leave, err := s.guard.Enter()
	if err != nil {
		if s.reconciling && s.misuse == nil {
			s.misuse = &compute.MisuseError{Op: "session call during reconciliation", Err: err}
		}
		s.logger.Warn("refused reentrant session call", "id", s.id)
		return nil, err
	}
	return leave, nil
}
