package variant

import (
	"slices"
	"strings"
)

// ID identifies a variant within one suggestion. It is the declaration index
// of the producer that computes the variant and never changes, even though
// the variant's position in the suggestion follows discovery order.
type ID int

// Snapshot is an immutable view of one variant.
//
// Elements holds the text still to be shown or inserted. Text the user
// over-typed moves to the consumed list so a backspace can put it back.
// Pending holds typed text that ran ahead of the producer and must match the
// next elements that arrive.
type Snapshot struct {
	id       ID
	elements []Element
	consumed []piece
	pending  string
	status   Status
	data     Data
}

// piece is a consumed run of text. A partial piece was split off the front
// of the element that currently heads the remaining list. Only the last
// piece can be partial.
type piece struct {
	el      Element
	partial bool
}

// New creates an untouched snapshot.
func New(id ID) Snapshot {
	return Snapshot{id: id, status: Untouched()}
}

// FromElements creates a computed snapshot holding elements.
func FromElements(id ID, elements ...Element) Snapshot {
	s := Snapshot{id: id, elements: slices.Clone(elements)}
	if len(elements) == 0 {
		s.status = Empty()
	} else {
		s.status = Computed(len(elements))
	}
	return s
}

// ID returns the variant identity.
func (s Snapshot) ID() ID { return s.id }

// Status returns the computation status.
func (s Snapshot) Status() Status { return s.status }

// Data returns the auxiliary data.
func (s Snapshot) Data() Data { return s.data }

// Pending returns typed text not yet matched against produced content.
func (s Snapshot) Pending() string { return s.pending }

// Elements returns a copy of the remaining elements.
func (s Snapshot) Elements() []Element { return slices.Clone(s.elements) }

// Len returns the number of remaining elements.
func (s Snapshot) Len() int { return len(s.elements) }

// Element returns the remaining element at index i.
func (s Snapshot) Element(i int) Element { return s.elements[i] }

// Text returns the concatenated remaining text.
func (s Snapshot) Text() string { return Text(s.elements) }

// IsEmpty reports whether no text remains.
func (s Snapshot) IsEmpty() bool { return len(s.elements) == 0 }

// Consumed returns the over-typed pieces in typing order.
func (s Snapshot) Consumed() []Element {
	out := make([]Element, len(s.consumed))
	for i, p := range s.consumed {
		out[i] = p.el
	}
	return out
}

// ConsumedText returns the over-typed text.
func (s Snapshot) ConsumedText() string {
	var b strings.Builder
	for _, p := range s.consumed {
		b.WriteString(p.el.text)
	}
	return b.String()
}

// Append returns a snapshot with el added at the end and the yield count
// advanced.
func (s Snapshot) Append(el Element) Snapshot {
	s.elements = append(s.elements[:len(s.elements):len(s.elements)], el)
	s.status = InProgress(s.status.Count + 1)
	return s
}

// WithElements returns a snapshot whose remaining elements are replaced.
func (s Snapshot) WithElements(elements []Element) Snapshot {
	s.elements = slices.Clone(elements)
	return s
}

// WithStatus returns a snapshot with a different status.
func (s Snapshot) WithStatus(status Status) Snapshot {
	s.status = status
	return s
}

// WithData returns a snapshot with different auxiliary data.
func (s Snapshot) WithData(data Data) Snapshot {
	s.data = data
	return s
}

// WithPending returns a snapshot with different pending typed text.
func (s Snapshot) WithPending(pending string) Snapshot {
	s.pending = pending
	return s
}

// Consume removes n bytes from the front of the remaining text. Element
// boundaries are kept: a partly consumed element keeps its kind and the rest
// of its text. Fully consumed elements are dropped from the remaining list.
func (s Snapshot) Consume(n int) (Snapshot, error) {
	if n < 0 || n > len(s.Text()) {
		return s, ErrConsumeOverflow
	}
	elements := slices.Clone(s.elements)
	consumed := slices.Clone(s.consumed)

	for n > 0 {
		first := elements[0]
		take := min(n, len(first.text))
		head := first.WithText(first.text[:take])

		if k := len(consumed); k > 0 && consumed[k-1].partial {
			last := consumed[k-1]
			consumed[k-1] = piece{el: last.el.WithText(last.el.text + head.text)}
		} else {
			consumed = append(consumed, piece{el: head})
		}

		if take == len(first.text) {
			elements = elements[1:]
		} else {
			elements[0] = first.WithText(first.text[take:])
			consumed[len(consumed)-1].partial = true
		}
		n -= take
	}

	s.elements = elements
	s.consumed = consumed
	return s, nil
}

// Restore moves the last n consumed bytes back to the front of the remaining
// text, undoing Consume.
func (s Snapshot) Restore(n int) (Snapshot, error) {
	if n < 0 || n > len(s.ConsumedText()) {
		return s, ErrRestoreOverflow
	}
	elements := slices.Clone(s.elements)
	consumed := slices.Clone(s.consumed)

	for n > 0 {
		last := consumed[len(consumed)-1]
		take := min(n, len(last.el.text))
		tail := last.el.text[len(last.el.text)-take:]

		if last.partial && len(elements) > 0 {
			elements[0] = elements[0].WithText(tail + elements[0].text)
		} else {
			elements = append([]Element{last.el.WithText(tail)}, elements...)
		}

		if take == len(last.el.text) {
			consumed = consumed[:len(consumed)-1]
		} else {
			consumed[len(consumed)-1] = piece{
				el:      last.el.WithText(last.el.text[:len(last.el.text)-take]),
				partial: true,
			}
		}
		n -= take
	}

	s.elements = elements
	s.consumed = consumed
	return s, nil
}
