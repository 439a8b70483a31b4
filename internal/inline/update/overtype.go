package update

import (
	"strings"

	"github.com/dshills/ghostline/internal/inline/variant"
)

// OverType matches typed text against the front of a variant.
//
// When the remaining text starts with typed, that much text is consumed.
// When typed runs past the remaining text of a variant that is still being
// computed, the remainder is kept as pending and checked against the
// elements that arrive later. Any other input invalidates the variant. The
// match is exact and case-sensitive.
func OverType(v variant.Snapshot, typed string) Result {
	if typed == "" {
		return Same()
	}
	if v.Status().IsTerminal() {
		return Same()
	}

	remaining := v.Text()
	if strings.HasPrefix(remaining, typed) {
		next, err := v.Consume(len(typed))
		if err != nil {
			return Invalidate()
		}
		return Changed(next)
	}

	if v.Status().IsFinished() || !strings.HasPrefix(typed, remaining) {
		return Invalidate()
	}

	next, err := v.Consume(len(remaining))
	if err != nil {
		return Invalidate()
	}
	return Changed(next.WithPending(v.Pending() + typed[len(remaining):]))
}

// Backspace undoes over-typing for deleted text. Pending text is trimmed
// first, then consumed text is restored. A deletion that does not match what
// was typed invalidates the variant.
func Backspace(v variant.Snapshot, removed string) Result {
	if removed == "" {
		return Same()
	}
	if v.Status().IsTerminal() {
		return Same()
	}

	pending := v.Pending()
	rest := removed
	if pending != "" {
		n := min(len(pending), len(rest))
		if !strings.HasSuffix(pending, rest[len(rest)-n:]) {
			return Invalidate()
		}
		pending = pending[:len(pending)-n]
		rest = rest[:len(rest)-n]
	}

	next := v.WithPending(pending)
	if rest == "" {
		return Changed(next)
	}

	if !strings.HasSuffix(next.ConsumedText(), rest) {
		return Invalidate()
	}
	restored, err := next.Restore(len(rest))
	if err != nil {
		return Invalidate()
	}
	return Changed(restored)
}

// Incoming appends a newly produced element to a variant, matching it
// against pending typed text first. It returns OutcomeInvalidated when the
// element contradicts what the user already typed.
func Incoming(v variant.Snapshot, el variant.Element) (variant.Snapshot, Outcome) {
	pending := v.Pending()
	next := v.Append(el)
	if pending == "" {
		return next, OutcomeChanged
	}

	text := el.Text()
	switch {
	case strings.HasPrefix(text, pending):
		consumed, err := next.Consume(len(pending))
		if err != nil {
			return v, OutcomeInvalidated
		}
		return consumed.WithPending(""), OutcomeChanged
	case strings.HasPrefix(pending, text):
		consumed, err := next.Consume(len(text))
		if err != nil {
			return v, OutcomeInvalidated
		}
		return consumed.WithPending(pending[len(text):]), OutcomeChanged
	default:
		return v, OutcomeInvalidated
	}
}

// Finish marks a variant's producer as done. A variant that never yielded is
// Empty. A variant that still has unmatched pending text was typed past its
// end and is invalidated.
func Finish(v variant.Snapshot) (variant.Snapshot, Outcome) {
	count := v.Status().Count
	if count == 0 {
		return v.WithStatus(variant.Empty()), OutcomeSame
	}
	if v.Pending() != "" {
		return v.WithStatus(variant.Invalidated(count)), OutcomeInvalidated
	}
	return v.WithStatus(variant.Computed(count)), OutcomeChanged
}
