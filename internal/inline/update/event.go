// Package update reconciles suggestion variants against edits and other
// external events.
//
// A Reconciler decides the fate of one variant for one event. The Manager
// runs a reconciler over every live variant of a session, in suggestion
// order, and reports per-variant decisions. The default reconciler
// implements over-typing: typed text that matches the front of a variant
// consumes it; anything else invalidates the variant.
package update

import "fmt"

// Event is an external event a session reconciles its variants against.
type Event interface {
	String() string
	isUpdateEvent()
}

// DocumentChange is an edit at the session's caret. Inserted holds typed or
// pasted text, Removed holds deleted text.
type DocumentChange struct {
	Offset   int
	Inserted string
	Removed  string
}

// LookupChange is a selection change in the host's completion popup.
type LookupChange struct {
	Item string
}

// Custom is a provider-defined event.
type Custom struct {
	Name    string
	Payload any
}

func (DocumentChange) isUpdateEvent() {}
func (LookupChange) isUpdateEvent()   {}
func (Custom) isUpdateEvent()         {}

func (e DocumentChange) String() string {
	switch {
	case e.Removed == "":
		return fmt.Sprintf("typed(%d,%q)", e.Offset, e.Inserted)
	case e.Inserted == "":
		return fmt.Sprintf("deleted(%d,%q)", e.Offset, e.Removed)
	default:
		return fmt.Sprintf("replaced(%d,%q,%q)", e.Offset, e.Removed, e.Inserted)
	}
}

func (e LookupChange) String() string {
	return fmt.Sprintf("lookup(%q)", e.Item)
}

func (e Custom) String() string {
	return fmt.Sprintf("custom(%s)", e.Name)
}

// IsTyping reports whether the change only inserts text.
func (e DocumentChange) IsTyping() bool {
	return e.Inserted != "" && e.Removed == ""
}

// IsDeletion reports whether the change only removes text.
func (e DocumentChange) IsDeletion() bool {
	return e.Removed != "" && e.Inserted == ""
}
