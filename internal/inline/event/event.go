package event

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/ghostline/internal/inline/provider"
	"github.com/dshills/ghostline/internal/inline/variant"
)

// Event is one session transition. Variant fields hold the variant's index
// in the suggestion (discovery order).
type Event interface {
	Kind() Kind
	String() string
	isEvent()
}

// Request is emitted when a session starts.
type Request struct {
	Request provider.Request
}

// NoVariants is emitted when every producer finished and none yielded text.
type NoVariants struct{}

// VariantComputed is emitted when a non-empty variant's producer finished.
type VariantComputed struct {
	Variant int
}

// Empty is emitted when the displayed variant was typed out completely.
type Empty struct {
	Variant int
}

// VariantSwitched is emitted when the displayed variant changes. From is -1
// for the first variant a session displays.
type VariantSwitched struct {
	From     int
	To       int
	Explicit bool
}

// Computed is emitted when an element of the displayed variant arrives.
// Index is the element's position among the variant's remaining elements,
// so it shifts down as text is typed over.
type Computed struct {
	Variant int
	Element variant.Element
	Index   int
}

// Show is emitted when an element becomes visible, either on arrival or when
// a switch replays the new variant's elements. Index counts from the first
// remaining element; elements consumed by typing are not counted.
type Show struct {
	Variant int
	Element variant.Element
	Index   int
}

// Change is emitted when reconciliation changed a variant's text length.
type Change struct {
	Variant    int
	LengthDiff int
}

// Invalidated is emitted when reconciliation rejected a variant.
type Invalidated struct {
	Variant int
}

// Insert is emitted before the displayed variant is written to the buffer.
type Insert struct {
	Variant int
	Text    string
}

// Hide is emitted when the session stops displaying.
type Hide struct {
	Finish     FinishType
	Displaying bool
}

// AfterInsert is emitted after the accepted text was written.
type AfterInsert struct {
	Variant int
	Text    string
}

// Completion is emitted once per session when computation ends. Cause is nil
// on normal completion, a *CancellationCause when the session was torn down
// with computation in flight, or the failure that ended the session.
// IsActive reports whether the session was still displaying at that point.
type Completion struct {
	Cause    error
	IsActive bool
}

func (Request) Kind() Kind         { return KindRequest }
func (NoVariants) Kind() Kind      { return KindNoVariants }
func (VariantComputed) Kind() Kind { return KindVariantComputed }
func (Empty) Kind() Kind           { return KindEmpty }
func (VariantSwitched) Kind() Kind { return KindVariantSwitched }
func (Computed) Kind() Kind        { return KindComputed }
func (Show) Kind() Kind            { return KindShow }
func (Change) Kind() Kind          { return KindChange }
func (Invalidated) Kind() Kind     { return KindInvalidated }
func (Insert) Kind() Kind          { return KindInsert }
func (Hide) Kind() Kind            { return KindHide }
func (AfterInsert) Kind() Kind     { return KindAfterInsert }
func (Completion) Kind() Kind      { return KindCompletion }

func (Request) isEvent()         {}
func (NoVariants) isEvent()      {}
func (VariantComputed) isEvent() {}
func (Empty) isEvent()           {}
func (VariantSwitched) isEvent() {}
func (Computed) isEvent()        {}
func (Show) isEvent()            {}
func (Change) isEvent()          {}
func (Invalidated) isEvent()     {}
func (Insert) isEvent()          {}
func (Hide) isEvent()            {}
func (AfterInsert) isEvent()     {}
func (Completion) isEvent()      {}

func (e Request) String() string {
	return fmt.Sprintf("Request(%s)", e.Request.Trigger)
}

func (NoVariants) String() string { return "NoVariants" }

func (e VariantComputed) String() string {
	return fmt.Sprintf("VariantComputed(%d)", e.Variant)
}

func (e Empty) String() string {
	return fmt.Sprintf("Empty(%d)", e.Variant)
}

func (e VariantSwitched) String() string {
	return fmt.Sprintf("VariantSwitched(%d,%d,%t)", e.From, e.To, e.Explicit)
}

func (e Computed) String() string {
	return fmt.Sprintf("Computed(%q,%d)", e.Element.Text(), e.Index)
}

func (e Show) String() string {
	return fmt.Sprintf("Show(%q,%d)", e.Element.Text(), e.Index)
}

func (e Change) String() string {
	return fmt.Sprintf("Change(%d,%d)", e.Variant, e.LengthDiff)
}

func (e Invalidated) String() string {
	return fmt.Sprintf("Invalidated(%d)", e.Variant)
}

func (e Insert) String() string {
	return fmt.Sprintf("Insert(%q)", e.Text)
}

func (e Hide) String() string {
	return fmt.Sprintf("Hide(%s)", e.Finish)
}

func (e AfterInsert) String() string {
	return fmt.Sprintf("AfterInsert(%q)", e.Text)
}

func (e Completion) String() string {
	switch {
	case e.Cause == nil:
		return "Completion(nil)"
	case IsCancellation(e.Cause):
		return "Completion(cancelled)"
	default:
		return fmt.Sprintf("Completion(%v)", e.Cause)
	}
}

// CancellationCause is the Completion cause of a session that was torn down
// while its producers were still running.
type CancellationCause struct {
	Finish FinishType
}

// Error implements the error interface.
func (c *CancellationCause) Error() string {
	return "inline session cancelled: " + c.Finish.String()
}

// Is makes errors.Is(cause, context.Canceled) hold.
func (c *CancellationCause) Is(target error) bool {
	return target == context.Canceled
}

// IsCancellation reports whether err is a cancellation rather than a failure.
func IsCancellation(err error) bool {
	var c *CancellationCause
	return errors.As(err, &c)
}

// Listener receives session events on the foreground goroutine.
type Listener interface {
	OnEvent(ev Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ev Event)

// OnEvent implements Listener.
func (f ListenerFunc) OnEvent(ev Event) {
	f(ev)
}
