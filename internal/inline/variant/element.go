// Package variant defines the values an inline suggestion is made of:
// elements, per-variant status and the copy-on-write variant snapshot.
//
// Snapshots are shared between the foreground session and listeners, so they
// are never modified after publication. Every method that changes a snapshot
// returns a new one.
package variant

import "fmt"

// Kind tags an element's text.
type Kind uint8

const (
	// KindInsertable is text that is inserted into the buffer on accept.
	KindInsertable Kind = iota

	// KindSkip is text that already exists after the caret. Accepting moves
	// the caret over it instead of inserting it again.
	KindSkip
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInsertable:
		return "insertable"
	case KindSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// Element is the atomic unit of a suggestion. Elements are immutable.
type Element struct {
	kind Kind
	text string
}

// Insertable creates an element whose text is inserted on accept.
func Insertable(text string) Element {
	return Element{kind: KindInsertable, text: text}
}

// Skip creates an element that matches text already present in the buffer.
func Skip(text string) Element {
	return Element{kind: KindSkip, text: text}
}

// Kind returns the element kind.
func (e Element) Kind() Kind {
	return e.kind
}

// Text returns the element text.
func (e Element) Text() string {
	return e.text
}

// IsEmpty reports whether the element carries no text.
func (e Element) IsEmpty() bool {
	return e.text == ""
}

// WithText returns an element of the same kind with different text.
func (e Element) WithText(text string) Element {
	return Element{kind: e.kind, text: text}
}

// String returns a debug representation of the element.
func (e Element) String() string {
	return fmt.Sprintf("%s(%q)", e.kind, e.text)
}

// Text concatenates the text of the given elements.
func Text(elements []Element) string {
	n := 0
	for _, e := range elements {
		n += len(e.text)
	}
	buf := make([]byte, 0, n)
	for _, e := range elements {
		buf = append(buf, e.text...)
	}
	return string(buf)
}
