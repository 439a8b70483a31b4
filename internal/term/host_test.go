package term

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/ghostline/internal/document"
	"github.com/dshills/ghostline/internal/inline/controller"
	"github.com/dshills/ghostline/internal/inline/provider"
	"github.com/dshills/ghostline/internal/inline/session"
)

func newHost(t *testing.T, text string, variants ...[]string) (*Host, tcell.SimulationScreen, *document.Document) {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatal(err)
	}
	screen.SetSize(40, 3)
	t.Cleanup(screen.Fini)

	doc := document.New(text)
	ctrl := controller.New(doc, []provider.Provider{provider.NewStatic("static", variants...)},
		controller.WithSessionOptions(session.WithEager(true)))
	t.Cleanup(func() { _ = ctrl.Close() })
	return New(screen, doc, ctrl), screen, doc
}

// line returns the text of screen row y with trailing blanks removed.
func line(screen tcell.SimulationScreen, y int) string {
	w, _ := screen.Size()
	var b strings.Builder
	for x := 0; x < w; x++ {
		r, comb, _, _ := screen.GetContent(x, y)
		b.WriteRune(r)
		for _, c := range comb {
			b.WriteRune(c)
		}
	}
	return strings.TrimRight(b.String(), " ")
}

func key(k tcell.Key) *tcell.EventKey { return tcell.NewEventKey(k, 0, tcell.ModNone) }

func char(r rune) *tcell.EventKey { return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone) }

func alt(r rune) *tcell.EventKey { return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModAlt) }

func complete(t *testing.T, h *Host) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.ctrl.CompleteAll(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestHost_GhostText(t *testing.T) {
	h, screen, doc := newHost(t, "fmt.", []string{"Print", "ln()"}, []string{"Errorf()"})
	ctx := context.Background()

	if !h.HandleKey(ctx, key(tcell.KeyCtrlSpace)) {
		t.Fatal("HandleKey quit on Ctrl-Space")
	}
	complete(t, h)
	h.Draw()

	// Variants are shown in the order they were first produced.
	got := line(screen, 0)
	if got != "> fmt.Println()" && got != "> fmt.Errorf()" {
		t.Errorf("line = %q", got)
	}
	_, _, style, _ := screen.GetContent(6, 0)
	if style != StyleGhost {
		t.Errorf("ghost style = %v, want %v", style, StyleGhost)
	}

	if got == "> fmt.Println()" {
		h.HandleKey(ctx, alt(']'))
		h.Draw()
		if got := line(screen, 0); got != "> fmt.Errorf()" {
			t.Errorf("after Alt-] line = %q", got)
		}
	}

	h.HandleKey(ctx, char('E'))
	h.Draw()
	if got := line(screen, 0); got != "> fmt.Errorf()" {
		t.Errorf("after typing line = %q", got)
	}
	if doc.Text() != "fmt.E" {
		t.Errorf("doc = %q", doc.Text())
	}

	h.HandleKey(ctx, key(tcell.KeyTab))
	if doc.Text() != "fmt.Errorf()" {
		t.Errorf("doc after accept = %q", doc.Text())
	}
	if h.Caret() != len("fmt.Errorf()") {
		t.Errorf("caret = %d", h.Caret())
	}
	if h.ctrl.Session() != nil {
		t.Error("session still live after accept")
	}
}

func TestHost_EscapeHides(t *testing.T) {
	h, screen, _ := newHost(t, "", []string{"hello"})
	ctx := context.Background()

	h.HandleKey(ctx, key(tcell.KeyCtrlSpace))
	complete(t, h)
	h.HandleKey(ctx, key(tcell.KeyEscape))
	h.Draw()

	if got := line(screen, 0); got != ">" {
		t.Errorf("line = %q", got)
	}
	if !strings.Contains(h.Status(), "Hide(ESCAPE_PRESSED)") {
		t.Errorf("status = %q", h.Status())
	}
}

func TestHost_Editing(t *testing.T) {
	h, _, doc := newHost(t, "ab")
	ctx := context.Background()

	h.HandleKey(ctx, key(tcell.KeyLeft))
	h.HandleKey(ctx, char('é'))
	if doc.Text() != "aéb" || h.Caret() != 3 {
		t.Errorf("doc = %q caret = %d", doc.Text(), h.Caret())
	}
	h.HandleKey(ctx, key(tcell.KeyBackspace2))
	if doc.Text() != "ab" || h.Caret() != 1 {
		t.Errorf("doc = %q caret = %d", doc.Text(), h.Caret())
	}
	h.HandleKey(ctx, key(tcell.KeyRight))
	h.HandleKey(ctx, key(tcell.KeyRight))
	if h.Caret() != 2 {
		t.Errorf("caret = %d", h.Caret())
	}
	if h.HandleKey(ctx, key(tcell.KeyCtrlQ)) {
		t.Error("Ctrl-Q did not quit")
	}
}

func TestHost_RunStopsWithContext(t *testing.T) {
	h, screen, _ := newHost(t, "", []string{"x"})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()
	screen.InjectKey(tcell.KeyRune, 'a', tcell.ModNone)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}
