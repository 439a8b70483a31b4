package update

import "github.com/dshills/ghostline/internal/inline/variant"

// Outcome is a reconciler's verdict for one variant.
type Outcome uint8

const (
	// OutcomeSame means the event has no observable effect on the variant.
	OutcomeSame Outcome = iota

	// OutcomeChanged means the variant is replaced by Result.Snapshot.
	OutcomeChanged

	// OutcomeInvalidated means the variant no longer applies.
	OutcomeInvalidated
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeSame:
		return "same"
	case OutcomeChanged:
		return "changed"
	case OutcomeInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// Result is the verdict for one variant.
type Result struct {
	Outcome  Outcome
	Snapshot variant.Snapshot
}

// Same returns a no-op verdict.
func Same() Result { return Result{Outcome: OutcomeSame} }

// Changed returns a verdict replacing the variant with s.
func Changed(s variant.Snapshot) Result { return Result{Outcome: OutcomeChanged, Snapshot: s} }

// Invalidate returns a verdict rejecting the variant.
func Invalidate() Result { return Result{Outcome: OutcomeInvalidated} }

// Reconciler decides what an event does to one variant. It receives a
// snapshot and may only return a snapshot of that same variant. It must not
// call back into the session.
type Reconciler interface {
	Reconcile(ev Event, v variant.Snapshot) (Result, error)
}

// ReconcilerFunc adapts a function to Reconciler.
type ReconcilerFunc func(ev Event, v variant.Snapshot) (Result, error)

// Reconcile implements Reconciler.
func (f ReconcilerFunc) Reconcile(ev Event, v variant.Snapshot) (Result, error) {
	return f(ev, v)
}

// Handlers is a Reconciler assembled from per-event-type hooks. Events
// without a hook fall through to Default.
type Handlers struct {
	OnDocumentChange func(ev DocumentChange, v variant.Snapshot) (Result, error)
	OnLookupChange   func(ev LookupChange, v variant.Snapshot) (Result, error)
	OnCustom         func(ev Custom, v variant.Snapshot) (Result, error)
}

// Reconcile implements Reconciler.
func (h Handlers) Reconcile(ev Event, v variant.Snapshot) (Result, error) {
	switch e := ev.(type) {
	case DocumentChange:
		if h.OnDocumentChange != nil {
			return h.OnDocumentChange(e, v)
		}
	case LookupChange:
		if h.OnLookupChange != nil {
			return h.OnLookupChange(e, v)
		}
	case Custom:
		if h.OnCustom != nil {
			return h.OnCustom(e, v)
		}
	}
	return Default().Reconcile(ev, v)
}

type defaultReconciler struct{}

// Default returns the built-in reconciler. Typing is matched against the
// variant with OverType, deletions are undone with Backspace, replacements
// invalidate. Lookup and custom events leave variants unchanged.
func Default() Reconciler {
	return defaultReconciler{}
}

func (defaultReconciler) Reconcile(ev Event, v variant.Snapshot) (Result, error) {
	switch e := ev.(type) {
	case DocumentChange:
		switch {
		case e.IsTyping():
			return OverType(v, e.Inserted), nil
		case e.IsDeletion():
			return Backspace(v, e.Removed), nil
		default:
			return Invalidate(), nil
		}
	case LookupChange, Custom:
		return Same(), nil
	default:
		return Same(), nil
	}
}
