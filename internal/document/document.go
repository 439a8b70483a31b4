// Package document provides the in-memory text buffer that inline
// suggestion sessions edit and observe.
package document

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrOutOfRange is returned for offsets outside the document.
	ErrOutOfRange = errors.New("offset out of range")

	// ErrNotBoundary is returned for offsets inside a UTF-8 sequence.
	ErrNotBoundary = errors.New("offset splits a character")
)

// Change describes one edit. Offset is a byte offset into the text before
// the edit.
type Change struct {
	Offset   int
	Inserted string
	Removed  string
	Revision uint64
}

// String returns a short description of the change.
func (c Change) String() string {
	return fmt.Sprintf("change(%d,-%q,+%q)", c.Offset, c.Removed, c.Inserted)
}

// Document is a thread-safe text buffer with change notifications.
//
// Listeners run synchronously on the goroutine that made the edit, after
// the document lock is released, so they may read the document.
type Document struct {
	mu       sync.RWMutex
	text     string
	revision uint64

	subMu  sync.Mutex
	subs   []*subscriber
	nextID uint64

	suppress int
}

type subscriber struct {
	id uint64
	fn func(Change)
}

// New creates a document holding text.
func New(text string) *Document {
	return &Document{text: text}
}

// Text returns the document text.
func (d *Document) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text
}

// Len returns the text length in bytes.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.text)
}

// Revision returns a counter that increases with every edit.
func (d *Document) Revision() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.revision
}

// InsertText inserts text at offset.
func (d *Document) InsertText(offset int, text string) error {
	return d.Replace(offset, 0, text)
}

// DeleteText removes n bytes starting at offset and returns them.
func (d *Document) DeleteText(offset, n int) (string, error) {
	d.mu.RLock()
	if err := d.checkRange(offset, n); err != nil {
		d.mu.RUnlock()
		return "", err
	}
	removed := d.text[offset : offset+n]
	d.mu.RUnlock()

	if err := d.Replace(offset, n, ""); err != nil {
		return "", err
	}
	return removed, nil
}

// Replace replaces n bytes at offset with text.
func (d *Document) Replace(offset, n int, text string) error {
	d.mu.Lock()
	if err := d.checkRange(offset, n); err != nil {
		d.mu.Unlock()
		return err
	}
	if n == 0 && text == "" {
		d.mu.Unlock()
		return nil
	}

	removed := d.text[offset : offset+n]
	d.text = d.text[:offset] + text + d.text[offset+n:]
	d.revision++
	change := Change{Offset: offset, Inserted: text, Removed: removed, Revision: d.revision}
	d.mu.Unlock()

	d.notify(change)
	return nil
}

// SetText replaces the whole text.
func (d *Document) SetText(text string) error {
	return d.Replace(0, d.Len(), text)
}

// checkRange validates [offset, offset+n) (must hold lock).
func (d *Document) checkRange(offset, n int) error {
	if offset < 0 || n < 0 || offset+n > len(d.text) {
		return fmt.Errorf("%w: [%d,%d) in %d bytes", ErrOutOfRange, offset, offset+n, len(d.text))
	}
	if !d.boundary(offset) || !d.boundary(offset+n) {
		return fmt.Errorf("%w: [%d,%d)", ErrNotBoundary, offset, offset+n)
	}
	return nil
}

func (d *Document) boundary(i int) bool {
	return i == 0 || i == len(d.text) || d.text[i]&0xC0 != 0x80
}

// Subscribe registers fn for change notifications. The returned function
// removes it.
func (d *Document) Subscribe(fn func(Change)) (unsubscribe func()) {
	d.subMu.Lock()
	d.nextID++
	id := d.nextID
	d.subs = append(d.subs, &subscriber{id: id, fn: fn})
	d.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.subMu.Lock()
			defer d.subMu.Unlock()
			for i, s := range d.subs {
				if s.id == id {
					d.subs = append(d.subs[:i:i], d.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// SuppressNotifications runs fn with change notifications switched off.
// Notifications are restored on every exit path, including panics.
func (d *Document) SuppressNotifications(fn func() error) error {
	d.subMu.Lock()
	d.suppress++
	d.subMu.Unlock()

	defer func() {
		d.subMu.Lock()
		d.suppress--
		d.subMu.Unlock()
	}()
	return fn()
}

// Suppressed reports whether notifications are switched off.
func (d *Document) Suppressed() bool {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	return d.suppress > 0
}

func (d *Document) notify(c Change) {
	d.subMu.Lock()
	if d.suppress > 0 {
		d.subMu.Unlock()
		return
	}
	subs := make([]*subscriber, len(d.subs))
	copy(subs, d.subs)
	d.subMu.Unlock()

	for _, s := range subs {
		s.fn(c)
	}
}
