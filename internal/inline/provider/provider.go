// Package provider defines the boundary between inline suggestion sessions
// and the code that computes suggestions.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dshills/ghostline/internal/inline/compute"
)

// ErrNoProvider is returned when no registered provider accepts a request.
var ErrNoProvider = errors.New("no enabled provider")

// Trigger says what started a request.
type Trigger uint8

const (
	// TriggerTyping is a request made automatically after an edit.
	TriggerTyping Trigger = iota

	// TriggerExplicit is a request the user asked for.
	TriggerExplicit

	// TriggerLookup is a request made when the completion popup changed.
	TriggerLookup

	// TriggerDirect is a request made by code, for instance a test.
	TriggerDirect
)

// String returns the trigger name.
func (t Trigger) String() string {
	switch t {
	case TriggerTyping:
		return "typing"
	case TriggerExplicit:
		return "explicit"
	case TriggerLookup:
		return "lookup"
	case TriggerDirect:
		return "direct"
	default:
		return "unknown"
	}
}

// Request is one suggestion request: the caret offset and the buffer text at
// the time it was made.
type Request struct {
	ID      uuid.UUID
	Trigger Trigger
	Offset  int
	Text    string
}

// NewRequest creates a request with a fresh ID.
func NewRequest(trigger Trigger, text string, offset int) Request {
	return Request{
		ID:      uuid.New(),
		Trigger: trigger,
		Offset:  offset,
		Text:    text,
	}
}

// Prefix returns the text before the caret.
func (r Request) Prefix() string {
	if r.Offset < 0 || r.Offset > len(r.Text) {
		return r.Text
	}
	return r.Text[:r.Offset]
}

// String returns a short description of the request.
func (r Request) String() string {
	return fmt.Sprintf("%s@%d", r.Trigger, r.Offset)
}

// Provider computes suggestions. IsEnabled and Suggest are called on the
// foreground; the producers of the returned source run concurrently.
type Provider interface {
	ID() string
	IsEnabled(req Request) bool
	Suggest(ctx context.Context, req Request) (*compute.Source, error)
}

// Select returns the first provider enabled for req.
func Select(providers []Provider, req Request) (Provider, error) {
	for _, p := range providers {
		if p != nil && p.IsEnabled(req) {
			return p, nil
		}
	}
	return nil, ErrNoProvider
}
