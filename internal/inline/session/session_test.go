package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ghostline/internal/document"
	"github.com/dshills/ghostline/internal/inline/compute"
	"github.com/dshills/ghostline/internal/inline/dispatch"
	"github.com/dshills/ghostline/internal/inline/event"
	"github.com/dshills/ghostline/internal/inline/provider"
	"github.com/dshills/ghostline/internal/inline/update"
	"github.com/dshills/ghostline/internal/inline/variant"
)

type recorder struct {
	events []event.Event
}

func (r *recorder) Emit(ev event.Event) error {
	r.events = append(r.events, ev)
	return nil
}

// take returns the events recorded since the last call.
func (r *recorder) take() []event.Event {
	out := r.events
	r.events = nil
	return out
}

func ins(text string) variant.Element { return variant.Insertable(text) }

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newSession(t *testing.T, text string, src *compute.Source, opts ...Option) (*Session, *recorder, *document.Document) {
	t.Helper()
	doc := document.New(text)
	rec := &recorder{}
	req := provider.NewRequest(provider.TriggerExplicit, text, len(text))
	s := New(req, src, doc, rec, opts...)
	t.Cleanup(func() { _ = s.Cancel(event.FinishOther) })
	return s, rec, doc
}

func start(t *testing.T, s *Session, rec *recorder) {
	t.Helper()
	require.NoError(t, s.Start(testCtx(t)))
	evs := rec.take()
	require.NotEmpty(t, evs)
	require.IsType(t, event.Request{}, evs[0])
	rec.events = evs[1:]
}

// behind holds p back until another producer of *s has sent output, so p
// is discovered after it.
func behind(s **Session, p compute.Producer) compute.Producer {
	held := true
	return compute.ProducerFunc(func(ctx context.Context) (variant.Element, error) {
		if held {
			held = false
			select {
			case <-(*s).Ready():
			case <-ctx.Done():
				return variant.Element{}, ctx.Err()
			}
		}
		return p.Next(ctx)
	})
}

func typed(offset int, text string) update.DocumentChange {
	return update.DocumentChange{Offset: offset, Inserted: text}
}

func deleted(offset int, text string) update.DocumentChange {
	return update.DocumentChange{Offset: offset, Removed: text}
}

func TestZeroVariants(t *testing.T) {
	t.Parallel()

	s, rec, _ := newSession(t, "", compute.NewSource())
	require.NoError(t, s.Start(testCtx(t)))

	assert.Equal(t, []event.Event{
		event.Request{Request: s.Request()},
		event.NoVariants{},
		event.Hide{Finish: event.FinishEmpty, Displaying: false},
		event.Completion{Cause: nil, IsActive: false},
	}, rec.take())
	assert.Equal(t, StateTerminated, s.State())
	assert.ErrorIs(t, s.Start(testCtx(t)), ErrAlreadyStarted)
}

func TestFirstElementIsDisplayed(t *testing.T) {
	t.Parallel()

	var s *Session
	src := compute.NewSource(compute.Texts("one", "two"), behind(&s, compute.Texts("Third")))
	s, rec, _ := newSession(t, "", src)
	start(t, s, rec)
	assert.Empty(t, rec.take())

	require.NoError(t, s.ComputeNextElement(testCtx(t)))
	assert.Equal(t, []event.Event{
		event.VariantSwitched{From: -1, To: 0, Explicit: false},
		event.Computed{Variant: 0, Element: ins("one"), Index: 0},
		event.Show{Variant: 0, Element: ins("one"), Index: 0},
	}, rec.take())

	require.Equal(t, 2, s.Len())
	second, ok := s.Variant(1)
	require.True(t, ok)
	assert.Equal(t, "Third", second.Text())

	require.NoError(t, s.NextVariant())
	assert.Equal(t, []event.Event{
		event.VariantSwitched{From: 0, To: 1, Explicit: true},
		event.Show{Variant: 1, Element: ins("Third"), Index: 0},
	}, rec.take())

	require.NoError(t, s.PrevVariant())
	assert.Equal(t, []event.Event{
		event.VariantSwitched{From: 1, To: 0, Explicit: true},
		event.Show{Variant: 0, Element: ins("one"), Index: 0},
	}, rec.take())

	require.NoError(t, s.NextVariant())
	require.NoError(t, s.NextVariant())
	assert.Equal(t, 0, s.ActiveIndex())
	assert.Equal(t, 5, s.Stats().Switches)
}

func TestSingleCandidateCyclingIsNoop(t *testing.T) {
	t.Parallel()

	var s *Session
	src := compute.NewSource(compute.Texts("only"), behind(&s, compute.Elements()))
	s, rec, _ := newSession(t, "", src)
	start(t, s, rec)
	require.NoError(t, s.CompleteAll(testCtx(t)))
	rec.take()

	require.NoError(t, s.NextVariant())
	require.NoError(t, s.PrevVariant())
	assert.Empty(t, rec.take())
	assert.Equal(t, 0, s.ActiveIndex())
}

func TestOverTyping(t *testing.T) {
	t.Parallel()

	s, rec, _ := newSession(t, "", compute.NewSource(compute.Texts("1234")))
	start(t, s, rec)
	require.NoError(t, s.CompleteAll(testCtx(t)))
	assert.Equal(t, []event.Event{
		event.VariantSwitched{From: -1, To: 0, Explicit: false},
		event.Computed{Variant: 0, Element: ins("1234"), Index: 0},
		event.Show{Variant: 0, Element: ins("1234"), Index: 0},
		event.VariantComputed{Variant: 0},
		event.Completion{Cause: nil, IsActive: true},
	}, rec.take())

	require.NoError(t, s.HandleEvent(typed(0, "12")))
	assert.Equal(t, []event.Event{event.Change{Variant: 0, LengthDiff: -2}}, rec.take())
	active, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, "34", active.Text())
	assert.Equal(t, 2, s.Caret())

	require.NoError(t, s.HandleEvent(typed(2, "34")))
	assert.Equal(t, []event.Event{
		event.Change{Variant: 0, LengthDiff: -2},
		event.Empty{Variant: 0},
		event.Hide{Finish: event.FinishTyped, Displaying: true},
	}, rec.take())
	assert.Equal(t, StateTerminated, s.State())
	assert.ErrorIs(t, s.HandleEvent(typed(4, "x")), ErrNotActive)
}

func TestShowIndexCountsRemainingElements(t *testing.T) {
	t.Parallel()

	s, rec, _ := newSession(t, "", compute.NewSource(compute.Texts("ab", "cd")))
	start(t, s, rec)
	require.NoError(t, s.ComputeNextElement(testCtx(t)))
	rec.take()

	require.NoError(t, s.HandleEvent(typed(0, "ab")))
	assert.Equal(t, []event.Event{event.Change{Variant: 0, LengthDiff: -2}}, rec.take())

	require.NoError(t, s.ComputeNextElement(testCtx(t)))
	assert.Equal(t, []event.Event{
		event.Computed{Variant: 0, Element: ins("cd"), Index: 0},
		event.Show{Variant: 0, Element: ins("cd"), Index: 0},
	}, rec.take())
}

func TestTypingInvalidatesMismatches(t *testing.T) {
	t.Parallel()

	var s *Session
	src := compute.NewSource(compute.Texts("1234"), behind(&s, compute.Texts("1324")))
	s, rec, _ := newSession(t, "", src)
	start(t, s, rec)
	require.NoError(t, s.CompleteAll(testCtx(t)))
	rec.take()

	require.NoError(t, s.HandleEvent(typed(0, "1")))
	assert.Equal(t, []event.Event{
		event.Change{Variant: 0, LengthDiff: -1},
		event.Change{Variant: 1, LengthDiff: -1},
	}, rec.take())

	require.NoError(t, s.HandleEvent(typed(1, "2")))
	assert.Equal(t, []event.Event{
		event.Change{Variant: 0, LengthDiff: -1},
		event.Invalidated{Variant: 1},
	}, rec.take())

	second, _ := s.Variant(1)
	assert.Equal(t, variant.StatusInvalidated, second.Status().Kind)

	require.NoError(t, s.HandleEvent(typed(2, "4")))
	assert.Equal(t, []event.Event{
		event.Invalidated{Variant: 0},
		event.Hide{Finish: event.FinishInvalidated, Displaying: true},
	}, rec.take())
	assert.Equal(t, 2, s.Stats().Invalidations)
}

func TestInvalidatedActiveSwitchesToNext(t *testing.T) {
	t.Parallel()

	var s *Session
	src := compute.NewSource(compute.Texts("ab"), behind(&s, compute.Texts("xy")))
	s, rec, _ := newSession(t, "", src)
	start(t, s, rec)
	require.NoError(t, s.CompleteAll(testCtx(t)))
	rec.take()

	require.NoError(t, s.HandleEvent(typed(0, "x")))
	assert.Equal(t, []event.Event{
		event.Invalidated{Variant: 0},
		event.Change{Variant: 1, LengthDiff: -1},
		event.VariantSwitched{From: 0, To: 1, Explicit: false},
		event.Show{Variant: 1, Element: ins("y"), Index: 0},
	}, rec.take())
	assert.Equal(t, 1, s.ActiveIndex())
}

func TestBackspace(t *testing.T) {
	t.Parallel()

	s, rec, _ := newSession(t, "foo", compute.NewSource(compute.Texts("bar")))
	start(t, s, rec)
	require.NoError(t, s.CompleteAll(testCtx(t)))
	rec.take()

	require.NoError(t, s.HandleEvent(typed(3, "ba")))
	require.NoError(t, s.HandleEvent(deleted(4, "a")))
	assert.Equal(t, []event.Event{
		event.Change{Variant: 0, LengthDiff: -2},
		event.Change{Variant: 0, LengthDiff: 1},
	}, rec.take())
	active, _ := s.Active()
	assert.Equal(t, "ar", active.Text())
	assert.Equal(t, "b", s.Typed())

	require.NoError(t, s.HandleEvent(deleted(3, "b")))
	active, _ = s.Active()
	assert.Equal(t, "bar", active.Text())
	rec.take()

	require.NoError(t, s.HandleEvent(deleted(2, "o")))
	assert.Equal(t, []event.Event{
		event.Hide{Finish: event.FinishBackspacePressed, Displaying: true},
	}, rec.take())
}

func TestEditAwayFromCaret(t *testing.T) {
	t.Parallel()

	s, rec, _ := newSession(t, "foo", compute.NewSource(compute.Texts("bar", "baz")))
	start(t, s, rec)
	require.NoError(t, s.ComputeNextElement(testCtx(t)))
	rec.take()

	require.NoError(t, s.HandleEvent(typed(0, "x")))
	evs := rec.take()
	require.Len(t, evs, 2)
	assert.Equal(t, event.Hide{Finish: event.FinishDocumentChanged, Displaying: true}, evs[0])

	completion, ok := evs[1].(event.Completion)
	require.True(t, ok)
	assert.True(t, event.IsCancellation(completion.Cause))
	assert.ErrorIs(t, completion.Cause, context.Canceled)
	assert.False(t, completion.IsActive)
}

func TestTypingBeforeFirstElement(t *testing.T) {
	t.Parallel()

	s, rec, _ := newSession(t, "", compute.NewSource(compute.Texts("abc")))
	start(t, s, rec)

	require.NoError(t, s.HandleEvent(typed(0, "ab")))
	assert.Empty(t, rec.take())
	assert.Equal(t, "ab", s.Typed())

	require.NoError(t, s.ComputeNextElement(testCtx(t)))
	assert.Equal(t, []event.Event{
		event.VariantSwitched{From: -1, To: 0, Explicit: false},
		event.Computed{Variant: 0, Element: ins("c"), Index: 0},
		event.Show{Variant: 0, Element: ins("c"), Index: 0},
	}, rec.take())
}

func TestTypedPastEveryVariant(t *testing.T) {
	t.Parallel()

	s, rec, _ := newSession(t, "", compute.NewSource(compute.Texts("ab")))
	start(t, s, rec)

	require.NoError(t, s.HandleEvent(typed(0, "ab")))
	require.NoError(t, s.CompleteAll(testCtx(t)))
	assert.Equal(t, []event.Event{
		event.VariantComputed{Variant: 0},
		event.Hide{Finish: event.FinishTyped, Displaying: false},
		event.Completion{Cause: nil, IsActive: false},
	}, rec.take())
}

func TestUnreachedProducerFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	var s *Session
	src := compute.NewSource(compute.Texts("one"), behind(&s, compute.Failing(boom)))
	s, rec, _ := newSession(t, "", src)
	start(t, s, rec)
	require.NoError(t, s.CompleteAll(testCtx(t)))

	assert.Equal(t, []event.Event{
		event.VariantSwitched{From: -1, To: 0, Explicit: false},
		event.Computed{Variant: 0, Element: ins("one"), Index: 0},
		event.Show{Variant: 0, Element: ins("one"), Index: 0},
		event.VariantComputed{Variant: 0},
		event.Completion{Cause: nil, IsActive: true},
	}, rec.take())
	assert.NoError(t, s.Err())

	failed, ok := s.Variant(1)
	require.True(t, ok)
	assert.Equal(t, variant.StatusErrored, failed.Status().Kind)
	assert.ErrorIs(t, failed.Status().Err, boom)
	assert.Equal(t, StateActive, s.State())
}

func TestDisplayedProducerFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	s, rec, _ := newSession(t, "", compute.NewSource(compute.Failing(boom, ins("x"))))
	start(t, s, rec)
	require.NoError(t, s.CompleteAll(testCtx(t)))

	assert.Equal(t, []event.Event{
		event.VariantSwitched{From: -1, To: 0, Explicit: false},
		event.Computed{Variant: 0, Element: ins("x"), Index: 0},
		event.Show{Variant: 0, Element: ins("x"), Index: 0},
		event.Hide{Finish: event.FinishError, Displaying: true},
		event.Completion{Cause: boom, IsActive: false},
	}, rec.take())
	assert.ErrorIs(t, s.Err(), boom)
	assert.Equal(t, StateTerminated, s.State())
}

func TestManyProducers(t *testing.T) {
	t.Parallel()

	const n = 1500
	src := compute.NewSource()
	for i := range n {
		require.NoError(t, src.Add(compute.Texts(fmt.Sprint(i))))
	}
	s, rec, _ := newSession(t, "", src, WithEngineOptions(compute.WithConcurrency(32)))
	start(t, s, rec)
	require.NoError(t, s.CompleteAll(testCtx(t)))

	evs := rec.take()
	computed := 0
	for _, ev := range evs {
		if _, ok := ev.(event.VariantComputed); ok {
			computed++
		}
	}
	assert.Equal(t, n, computed)
	assert.Equal(t, n, s.Len())
	assert.Equal(t, 0, s.ActiveIndex())
	assert.Equal(t, event.Completion{Cause: nil, IsActive: true}, evs[len(evs)-1])

	seen := make(map[string]bool, n)
	for i := range n {
		v, ok := s.Variant(i)
		require.True(t, ok)
		seen[v.Text()] = true
	}
	assert.Len(t, seen, n)
	assert.True(t, seen[fmt.Sprint(n-1)])
}

func TestDiscoveryOrder(t *testing.T) {
	t.Parallel()

	var s *Session
	src := compute.NewSource(behind(&s, compute.Texts("slow")), compute.Texts("fast"))
	s, rec, _ := newSession(t, "", src)
	start(t, s, rec)

	require.NoError(t, s.ComputeNextElement(testCtx(t)))
	assert.Equal(t, []event.Event{
		event.VariantSwitched{From: -1, To: 0, Explicit: false},
		event.Computed{Variant: 0, Element: ins("fast"), Index: 0},
		event.Show{Variant: 0, Element: ins("fast"), Index: 0},
	}, rec.take())

	require.Equal(t, 2, s.Len())
	first, _ := s.Variant(0)
	second, _ := s.Variant(1)
	assert.Equal(t, "fast", first.Text())
	assert.Equal(t, "slow", second.Text())

	require.NoError(t, s.NextVariant())
	assert.Equal(t, []event.Event{
		event.VariantSwitched{From: 0, To: 1, Explicit: true},
		event.Show{Variant: 1, Element: ins("slow"), Index: 0},
	}, rec.take())
}

func TestInsert(t *testing.T) {
	t.Parallel()

	src := compute.NewSource(compute.Elements(ins("oo"), variant.Skip(")"), ins(";")))
	doc := document.New("f)")
	rec := &recorder{}
	s := New(provider.NewRequest(provider.TriggerExplicit, "f)", 1), src, doc, rec)
	start(t, s, rec)
	require.NoError(t, s.CompleteAll(testCtx(t)))
	rec.take()

	notified := 0
	doc.Subscribe(func(document.Change) { notified++ })

	require.NoError(t, s.Insert())
	assert.Equal(t, []event.Event{
		event.Insert{Variant: 0, Text: "oo);"},
		event.Hide{Finish: event.FinishSelected, Displaying: true},
		event.AfterInsert{Variant: 0, Text: "oo);"},
	}, rec.take())
	assert.Equal(t, "foo);", doc.Text())
	assert.Equal(t, 5, s.Caret())
	assert.Empty(t, s.Typed())
	assert.Zero(t, notified)
	assert.Equal(t, StateTerminated, s.State())
	assert.ErrorIs(t, s.Insert(), ErrNotActive)
}

func TestInsertWhileComputing(t *testing.T) {
	t.Parallel()

	s, rec, doc := newSession(t, "", compute.NewSource(compute.Texts("a", "b")))
	start(t, s, rec)
	require.NoError(t, s.ComputeNextElement(testCtx(t)))
	rec.take()

	require.NoError(t, s.Insert())
	evs := rec.take()
	require.Len(t, evs, 4)
	completion, ok := evs[3].(event.Completion)
	require.True(t, ok)
	var cause *event.CancellationCause
	require.ErrorAs(t, completion.Cause, &cause)
	assert.Equal(t, event.FinishSelected, cause.Finish)
	assert.Equal(t, "a", doc.Text())
}

func TestInsertNothingDisplayed(t *testing.T) {
	t.Parallel()

	s, rec, _ := newSession(t, "", compute.NewSource(compute.Texts("a")))
	start(t, s, rec)
	assert.ErrorIs(t, s.Insert(), ErrNothingDisplayed)
	assert.Equal(t, StateActive, s.State())
}

func TestCancel(t *testing.T) {
	t.Parallel()

	s, rec, _ := newSession(t, "", compute.NewSource(compute.Texts("a", "b")))
	start(t, s, rec)
	require.NoError(t, s.ComputeNextElement(testCtx(t)))
	rec.take()

	require.NoError(t, s.Cancel(event.FinishEscapePressed))
	evs := rec.take()
	require.Len(t, evs, 2)
	assert.Equal(t, event.Hide{Finish: event.FinishEscapePressed, Displaying: true}, evs[0])
	completion := evs[1].(event.Completion)
	assert.ErrorIs(t, completion.Cause, context.Canceled)
	assert.False(t, s.IsComputing())

	require.NoError(t, s.Cancel(event.FinishEscapePressed))
	assert.Empty(t, rec.take())
}

func TestCancelIdle(t *testing.T) {
	t.Parallel()

	s, rec, _ := newSession(t, "", compute.NewSource(compute.Texts("a")))
	require.NoError(t, s.Cancel(event.FinishOther))
	assert.Empty(t, rec.take())
	assert.Equal(t, StateTerminated, s.State())
}

func TestScopeEndedWhileComputing(t *testing.T) {
	t.Parallel()

	s, rec, _ := newSession(t, "", compute.NewSource(compute.Texts("a", "b")))
	scope, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(scope))
	require.NoError(t, s.ComputeNextElement(testCtx(t)))
	rec.take()

	cancel()
	err := s.ComputeNextElement(testCtx(t))
	require.ErrorIs(t, err, compute.ErrScopeEnded)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []event.Event{
		event.Hide{Finish: event.FinishOther, Displaying: true},
		event.Completion{Cause: &event.CancellationCause{Finish: event.FinishOther}, IsActive: false},
	}, rec.take())
	assert.Equal(t, StateTerminated, s.State())
	assert.NoError(t, s.Err())
	assert.ErrorIs(t, s.ComputeNextElement(testCtx(t)), ErrNotActive)
}

func TestScopeEndedWhileEager(t *testing.T) {
	t.Parallel()

	blocked := compute.ProducerFunc(func(ctx context.Context) (variant.Element, error) {
		<-ctx.Done()
		return variant.Element{}, ctx.Err()
	})
	s, rec, _ := newSession(t, "", compute.NewSource(blocked), WithEager(true))
	scope, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(scope))
	rec.take()

	cancel()
	select {
	case <-s.Ready():
	case <-testCtx(t).Done():
		t.Fatal("no ready signal when the scope ended")
	}
	_, err := s.Pump()
	require.ErrorIs(t, err, compute.ErrScopeEnded)

	evs := rec.take()
	require.Len(t, evs, 2)
	assert.Equal(t, event.Hide{Finish: event.FinishOther, Displaying: false}, evs[0])
	completion, ok := evs[1].(event.Completion)
	require.True(t, ok)
	assert.True(t, event.IsCancellation(completion.Cause))
	assert.False(t, completion.IsActive)
	assert.False(t, s.IsComputing())
}

func TestReconcilerReplacesDisplayedVariant(t *testing.T) {
	t.Parallel()

	lookup := update.ReconcilerFunc(func(ev update.Event, v variant.Snapshot) (update.Result, error) {
		if l, ok := ev.(update.LookupChange); ok {
			return update.Changed(v.WithElements([]variant.Element{ins(l.Item), variant.Skip(")")})), nil
		}
		return update.Default().Reconcile(ev, v)
	})
	s, rec, _ := newSession(t, "", compute.NewSource(compute.Texts("Print")), WithFallbackReconciler(lookup))
	start(t, s, rec)
	require.NoError(t, s.CompleteAll(testCtx(t)))
	rec.take()

	require.NoError(t, s.HandleEvent(update.LookupChange{Item: "Println("}))
	assert.Equal(t, []event.Event{
		event.Change{Variant: 0, LengthDiff: 4},
	}, rec.take())
	active, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, "Println()", active.Text())
	assert.Equal(t, 2, active.Len())

	require.NoError(t, s.HandleEvent(typed(0, "Pr")))
	assert.Equal(t, []event.Event{
		event.Change{Variant: 0, LengthDiff: -2},
	}, rec.take())
	active, _ = s.Active()
	assert.Equal(t, "intln()", active.Text())
	assert.Equal(t, StateActive, s.State())
}

func TestHandlersThroughSession(t *testing.T) {
	t.Parallel()

	var lookups []string
	src := compute.NewSource(compute.Texts("abc"))
	src.SetReconciler(update.Handlers{
		OnLookupChange: func(ev update.LookupChange, v variant.Snapshot) (update.Result, error) {
			lookups = append(lookups, ev.Item)
			return update.Same(), nil
		},
		OnCustom: func(ev update.Custom, v variant.Snapshot) (update.Result, error) {
			if ev.Name == "reject" {
				return update.Invalidate(), nil
			}
			return update.Same(), nil
		},
	})
	s, rec, _ := newSession(t, "", src)
	start(t, s, rec)
	require.NoError(t, s.CompleteAll(testCtx(t)))
	rec.take()

	require.NoError(t, s.HandleEvent(update.LookupChange{Item: "abc"}))
	assert.Empty(t, rec.take())
	assert.Equal(t, []string{"abc"}, lookups)

	require.NoError(t, s.HandleEvent(typed(0, "a")))
	assert.Equal(t, []event.Event{
		event.Change{Variant: 0, LengthDiff: -1},
	}, rec.take())

	require.NoError(t, s.HandleEvent(update.Custom{Name: "keep"}))
	assert.Empty(t, rec.take())

	require.NoError(t, s.HandleEvent(update.Custom{Name: "reject"}))
	assert.Equal(t, []event.Event{
		event.Invalidated{Variant: 0},
		event.Hide{Finish: event.FinishInvalidated, Displaying: true},
	}, rec.take())
	assert.Equal(t, StateTerminated, s.State())
}

func TestReentrantCallsAreRefused(t *testing.T) {
	t.Parallel()

	d := dispatch.New()
	src := compute.NewSource(compute.Texts("a"), compute.Texts("b"))
	s := New(provider.NewRequest(provider.TriggerExplicit, "", 0), src, document.New(""), d)
	t.Cleanup(func() { _ = s.Cancel(event.FinishOther) })

	var refused []error
	d.SubscribeFunc(func(ev event.Event) {
		if _, ok := ev.(event.Show); ok {
			refused = append(refused, s.NextVariant())
		}
	})

	require.NoError(t, s.Start(testCtx(t)))
	require.NoError(t, s.ComputeNextElement(testCtx(t)))

	require.Len(t, refused, 1)
	assert.ErrorIs(t, refused[0], ErrReentrantCall)
	assert.Equal(t, 0, s.ActiveIndex())
	assert.Equal(t, uint64(1), s.Stats().Refused)

	require.NoError(t, s.NextVariant())
	assert.Equal(t, 1, s.ActiveIndex())
}

func TestReconcilerMisuseIsFatal(t *testing.T) {
	t.Parallel()

	src := compute.NewSource(compute.Texts("abc"))
	s, rec, _ := newSession(t, "", src)
	src.SetReconciler(update.ReconcilerFunc(func(ev update.Event, v variant.Snapshot) (update.Result, error) {
		_ = s.NextVariant()
		return update.Same(), nil
	}))
	start(t, s, rec)
	require.NoError(t, s.CompleteAll(testCtx(t)))
	rec.take()

	require.NoError(t, s.HandleEvent(typed(0, "a")))
	assert.Equal(t, []event.Event{
		event.Hide{Finish: event.FinishError, Displaying: true},
	}, rec.take())
	assert.True(t, compute.IsMisuse(s.Err()))
	assert.ErrorIs(t, s.Err(), ErrReentrantCall)
}

func TestReconcilerErrorIsFatal(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	src := compute.NewSource(compute.Texts("abc"))
	src.SetReconciler(update.ReconcilerFunc(func(update.Event, variant.Snapshot) (update.Result, error) {
		return update.Result{}, boom
	}))
	s, rec, _ := newSession(t, "", src)
	start(t, s, rec)
	require.NoError(t, s.CompleteAll(testCtx(t)))
	rec.take()

	require.NoError(t, s.HandleEvent(update.Custom{Name: "ping"}))
	assert.Equal(t, []event.Event{
		event.Hide{Finish: event.FinishError, Displaying: true},
	}, rec.take())
	assert.ErrorIs(t, s.Err(), boom)
}

func TestNestedVariantIsFatal(t *testing.T) {
	t.Parallel()

	src := compute.NewSource()
	require.NoError(t, src.AddFunc(func(ctx context.Context, emit compute.EmitFunc) error {
		if err := src.Add(compute.Texts("nested")); err == nil {
			return errors.New("nested add accepted")
		}
		return emit(ins("a"))
	}))
	s, rec, _ := newSession(t, "", src)
	start(t, s, rec)
	require.NoError(t, s.CompleteAll(testCtx(t)))

	evs := rec.take()
	require.Len(t, evs, 2)
	assert.Equal(t, event.Hide{Finish: event.FinishError, Displaying: false}, evs[0])
	assert.True(t, compute.IsMisuse(s.Err()))
	assert.ErrorIs(t, s.Err(), compute.ErrNestedVariant)
	assert.Equal(t, StateTerminated, s.State())
}

func TestEagerSession(t *testing.T) {
	t.Parallel()

	s, rec, _ := newSession(t, "", compute.NewSource(compute.Texts("a", "b")), WithEager(true))
	start(t, s, rec)

	select {
	case <-s.Ready():
	case <-testCtx(t).Done():
		t.Fatal("no output ready")
	}
	require.NoError(t, s.Await(testCtx(t)))
	for s.IsComputing() {
		_, err := s.Pump()
		require.NoError(t, err)
	}

	active, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, "ab", active.Text())
}
