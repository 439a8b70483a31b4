// Package event defines the events an inline suggestion session emits.
//
// The vocabulary is closed: Event is implemented only by the types in this
// package, and consumers switch over them exhaustively. Listeners receive
// events synchronously, one at a time, in the order the session transitions
// happened.
package event

// Kind identifies an event type.
type Kind uint8

const (
	KindRequest Kind = iota
	KindNoVariants
	KindVariantComputed
	KindEmpty
	KindVariantSwitched
	KindComputed
	KindShow
	KindChange
	KindInvalidated
	KindInsert
	KindHide
	KindAfterInsert
	KindCompletion
)

// String returns the event kind name.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "Request"
	case KindNoVariants:
		return "NoVariants"
	case KindVariantComputed:
		return "VariantComputed"
	case KindEmpty:
		return "Empty"
	case KindVariantSwitched:
		return "VariantSwitched"
	case KindComputed:
		return "Computed"
	case KindShow:
		return "Show"
	case KindChange:
		return "Change"
	case KindInvalidated:
		return "Invalidated"
	case KindInsert:
		return "Insert"
	case KindHide:
		return "Hide"
	case KindAfterInsert:
		return "AfterInsert"
	case KindCompletion:
		return "Completion"
	default:
		return "Unknown"
	}
}

// FinishType says why a session stopped displaying.
type FinishType uint8

const (
	FinishSelected FinishType = iota
	FinishTyped
	FinishEmpty
	FinishError
	FinishEscapePressed
	FinishBackspacePressed
	FinishInvalidated
	FinishCaretChanged
	FinishDocumentChanged
	FinishEditorRemoved
	FinishFocusLost
	FinishOther
)

// String returns the finish type name.
func (f FinishType) String() string {
	switch f {
	case FinishSelected:
		return "SELECTED"
	case FinishTyped:
		return "TYPED"
	case FinishEmpty:
		return "EMPTY"
	case FinishError:
		return "ERROR"
	case FinishEscapePressed:
		return "ESCAPE_PRESSED"
	case FinishBackspacePressed:
		return "BACKSPACE_PRESSED"
	case FinishInvalidated:
		return "INVALIDATED"
	case FinishCaretChanged:
		return "CARET_CHANGED"
	case FinishDocumentChanged:
		return "DOCUMENT_CHANGED"
	case FinishEditorRemoved:
		return "EDITOR_REMOVED"
	case FinishFocusLost:
		return "FOCUS_LOST"
	case FinishOther:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}
