package update

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/dshills/ghostline/internal/inline/variant"
)

var (
	// ErrForeignSnapshot is returned when a reconciler answers with a
	// snapshot of a different variant.
	ErrForeignSnapshot = errors.New("reconciler returned a snapshot of another variant")

	// ErrReconcilePanic is returned when a reconciler panics.
	ErrReconcilePanic = errors.New("reconciler panicked")
)

// Target is one live variant handed to the manager, with its position in
// the suggestion.
type Target struct {
	Index      int
	Snapshot   variant.Snapshot
	Reconciler Reconciler
}

// Decision is the manager's verdict for one target.
type Decision struct {
	Index   int
	Before  variant.Snapshot
	After   variant.Snapshot
	Outcome Outcome

	// Err is set when the reconciler failed or misbehaved. The variant is
	// then treated as invalidated.
	Err error
}

// LengthDiff returns the change in remaining text length, in runes.
func (d Decision) LengthDiff() int {
	return utf8.RuneCountInString(d.After.Text()) - utf8.RuneCountInString(d.Before.Text())
}

// FullyTyped reports whether the variant finished computing and the user
// typed all of it.
func (d Decision) FullyTyped() bool {
	return d.Outcome == OutcomeChanged &&
		d.After.Status().Kind == variant.StatusComputed &&
		d.After.IsEmpty() &&
		d.After.Pending() == ""
}

// Manager applies reconcilers to the variants of one session.
type Manager struct {
	fallback Reconciler
}

// NewManager creates a manager. Targets without their own reconciler use
// fallback; a nil fallback selects Default.
func NewManager(fallback Reconciler) *Manager {
	if fallback == nil {
		fallback = Default()
	}
	return &Manager{fallback: fallback}
}

// Apply reconciles ev against every target, in the order given, and returns
// one decision per target in the same order. Apply never stops early: a
// failing reconciler only invalidates its own variant.
func (m *Manager) Apply(ev Event, targets []Target) []Decision {
	decisions := make([]Decision, 0, len(targets))
	for _, t := range targets {
		decisions = append(decisions, m.apply(ev, t))
	}
	return decisions
}

func (m *Manager) apply(ev Event, t Target) Decision {
	d := Decision{Index: t.Index, Before: t.Snapshot, After: t.Snapshot}

	r := t.Reconciler
	if r == nil {
		r = m.fallback
	}

	res, err := reconcile(r, ev, t.Snapshot)
	if err != nil {
		d.Outcome = OutcomeInvalidated
		d.Err = err
		return d
	}

	switch res.Outcome {
	case OutcomeChanged:
		if res.Snapshot.ID() != t.Snapshot.ID() {
			d.Outcome = OutcomeInvalidated
			d.Err = fmt.Errorf("%w: got %d, want %d", ErrForeignSnapshot, res.Snapshot.ID(), t.Snapshot.ID())
			return d
		}
		d.After = res.Snapshot
		d.Outcome = OutcomeChanged
	case OutcomeInvalidated:
		d.Outcome = OutcomeInvalidated
	default:
		d.Outcome = OutcomeSame
	}
	return d
}

func reconcile(r Reconciler, ev Event, v variant.Snapshot) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrReconcilePanic, p)
		}
	}()
	return r.Reconcile(ev, v)
}
