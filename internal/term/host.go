// Package term is an interactive terminal host for inline suggestions: a
// single-line editor drawn with tcell that shows the displayed variant as
// dimmed ghost text after the caret.
package term

import (
	"context"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/uniseg"

	"github.com/dshills/ghostline/internal/document"
	"github.com/dshills/ghostline/internal/inline/controller"
	"github.com/dshills/ghostline/internal/inline/event"
	"github.com/dshills/ghostline/internal/inline/provider"
	"github.com/dshills/ghostline/internal/inline/variant"
	"github.com/dshills/ghostline/internal/logging"
)

const prompt = "> "

// Styles used by the host.
var (
	StyleText   = tcell.StyleDefault
	StyleGhost  = tcell.StyleDefault.Dim(true)
	StyleSkip   = tcell.StyleDefault.Dim(true).Underline(true)
	StyleStatus = tcell.StyleDefault.Reverse(true)
)

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the host logger.
func WithLogger(l *log.Logger) Option {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// Host runs the editor loop on one screen.
type Host struct {
	screen tcell.Screen
	doc    *document.Document
	ctrl   *controller.Controller
	logger *log.Logger

	caret int
	last  string
	count int

	armMu sync.Mutex
	armed chan struct{}
}

// wake is the interrupt payload posted when producers have output.
type wake struct{}

// quit is the interrupt payload posted when the context ends.
type quit struct{}

// New creates a host. The screen must already be initialised.
func New(screen tcell.Screen, doc *document.Document, ctrl *controller.Controller, opts ...Option) *Host {
	h := &Host{
		screen: screen,
		doc:    doc,
		ctrl:   ctrl,
		logger: logging.Discard(),
		caret:  doc.Len(),
	}
	for _, opt := range opts {
		opt(h)
	}
	ctrl.Dispatcher().SubscribeFunc(h.onEvent)
	return h
}

// Caret returns the caret byte offset.
func (h *Host) Caret() int { return h.caret }

// Status returns the status line text.
func (h *Host) Status() string {
	s := h.ctrl.Session()
	if s == nil {
		return fmt.Sprintf(" %d events | %s", h.count, h.last)
	}
	return fmt.Sprintf(" %d events | %s | variant %d/%d | %s", h.count, s.State(), s.ActiveIndex()+1, s.Len(), h.last)
}

func (h *Host) onEvent(ev event.Event) {
	h.count++
	h.last = ev.String()
}

// Run processes terminal events until the user quits or ctx ends.
func (h *Host) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = h.screen.PostEvent(tcell.NewEventInterrupt(quit{}))
	})
	defer stop()
	defer h.disarm()

	h.Draw()
	for {
		switch ev := h.screen.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventResize:
			h.screen.Sync()
		case *tcell.EventInterrupt:
			if _, ok := ev.Data().(quit); ok {
				return ctx.Err()
			}
			if _, err := h.ctrl.Pump(); err != nil {
				h.logger.Warn("pump failed", "err", err)
			}
		case *tcell.EventKey:
			if !h.HandleKey(ctx, ev) {
				return nil
			}
		}
		h.arm(ctx)
		h.Draw()
	}
}

// HandleKey applies one key press. It returns false when the user quits.
func (h *Host) HandleKey(ctx context.Context, ev *tcell.EventKey) bool {
	var err error
	switch ev.Key() {
	case tcell.KeyCtrlC, tcell.KeyCtrlQ:
		return false
	case tcell.KeyCtrlSpace:
		_, err = h.ctrl.Request(ctx, provider.TriggerExplicit, h.caret)
	case tcell.KeyTab:
		err = h.accept()
	case tcell.KeyEscape:
		err = h.ctrl.Cancel(event.FinishEscapePressed)
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		err = h.backspace()
	case tcell.KeyLeft:
		err = h.moveCaret(-1)
	case tcell.KeyRight:
		err = h.moveCaret(1)
	case tcell.KeyRune:
		err = h.typeRune(ev.Rune(), ev.Modifiers())
	}
	if err != nil {
		h.last = err.Error()
		h.logger.Debug("key failed", "key", ev.Name(), "err", err)
	}
	return true
}

func (h *Host) typeRune(r rune, mod tcell.ModMask) error {
	if mod&tcell.ModAlt != 0 {
		switch r {
		case ']':
			return h.ctrl.NextVariant()
		case '[':
			return h.ctrl.PrevVariant()
		}
		return nil
	}
	text := string(r)
	if err := h.doc.InsertText(h.caret, text); err != nil {
		return err
	}
	h.caret += len(text)
	return nil
}

func (h *Host) backspace() error {
	if h.caret == 0 {
		return h.ctrl.Cancel(event.FinishBackspacePressed)
	}
	_, size := utf8.DecodeLastRuneInString(h.doc.Text()[:h.caret])
	if _, err := h.doc.DeleteText(h.caret-size, size); err != nil {
		return err
	}
	h.caret -= size
	return nil
}

func (h *Host) moveCaret(dir int) error {
	text := h.doc.Text()
	switch {
	case dir < 0 && h.caret > 0:
		_, size := utf8.DecodeLastRuneInString(text[:h.caret])
		h.caret -= size
	case dir > 0 && h.caret < len(text):
		_, size := utf8.DecodeRuneInString(text[h.caret:])
		h.caret += size
	default:
		return nil
	}
	return h.ctrl.Cancel(event.FinishCaretChanged)
}

func (h *Host) accept() error {
	s := h.ctrl.Session()
	if s == nil {
		return nil
	}
	if err := s.Insert(); err != nil {
		return err
	}
	h.caret = s.Caret()
	return nil
}

// arm makes the live session's next output wake the event loop.
func (h *Host) arm(ctx context.Context) {
	h.disarm()
	s := h.ctrl.Session()
	if s == nil || !s.IsComputing() {
		return
	}

	stop := make(chan struct{})
	h.armMu.Lock()
	h.armed = stop
	h.armMu.Unlock()

	ready := s.Ready()
	go func() {
		select {
		case <-ready:
			_ = h.screen.PostEvent(tcell.NewEventInterrupt(wake{}))
		case <-stop:
		case <-ctx.Done():
		}
	}()
}

func (h *Host) disarm() {
	h.armMu.Lock()
	defer h.armMu.Unlock()
	if h.armed != nil {
		close(h.armed)
		h.armed = nil
	}
}

// Draw renders the editor line with ghost text and the status line.
func (h *Host) Draw() {
	h.screen.Clear()
	text := h.doc.Text()

	x := drawString(h.screen, 0, 0, prompt, StyleText)
	x = drawString(h.screen, x, 0, text[:h.caret], StyleText)
	cursor := x

	if s := h.ctrl.Session(); s != nil {
		if active, ok := s.Active(); ok {
			for _, el := range active.Elements() {
				style := StyleGhost
				if el.Kind() == variant.KindSkip {
					style = StyleSkip
				}
				x = drawString(h.screen, x, 0, el.Text(), style)
			}
		}
	}
	drawString(h.screen, x, 0, text[h.caret:], StyleText)

	_, height := h.screen.Size()
	if height > 2 {
		drawString(h.screen, 0, height-1, h.Status(), StyleStatus)
	}
	h.screen.ShowCursor(cursor, 0)
	h.screen.Show()
}

// drawString draws s grapheme by grapheme and returns the next column.
func drawString(screen tcell.Screen, x, y int, s string, style tcell.Style) int {
	state := -1
	for s != "" {
		var cluster string
		var width int
		cluster, s, width, state = uniseg.FirstGraphemeClusterInString(s, state)
		runes := []rune(cluster)
		screen.SetContent(x, y, runes[0], runes[1:], style)
		x += width
	}
	return x
}
