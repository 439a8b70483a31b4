package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/dshills/ghostline/internal/document"
	"github.com/dshills/ghostline/internal/inline/controller"
	"github.com/dshills/ghostline/internal/inline/event"
	"github.com/dshills/ghostline/internal/inline/provider"
	"github.com/dshills/ghostline/internal/inline/session"
	"github.com/dshills/ghostline/internal/logging"
	"github.com/dshills/ghostline/internal/trace"
)

// Replay step actions.
const (
	stepType      = "type"
	stepRequest   = "request"
	stepAccept    = "tab"
	stepEscape    = "esc"
	stepBackspace = "bs"
	stepLeft      = "left"
	stepRight     = "right"
	stepNext      = "next"
	stepPrev      = "prev"
)

// ErrBadScript is returned for a malformed replay script.
var ErrBadScript = errors.New("bad replay script")

type step struct {
	action string
	text   string
}

// parseScript splits a replay script into steps. Plain text is typed one
// rune at a time; "{name}" runs an action, and "{{" types a literal brace.
func parseScript(s string) ([]step, error) {
	var steps []step
	for s != "" {
		if strings.HasPrefix(s, "{{") {
			steps = append(steps, step{action: stepType, text: "{"})
			s = s[2:]
			continue
		}
		if s[0] == '{' {
			end := strings.IndexByte(s, '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated action in %q", ErrBadScript, s)
			}
			name := s[1:end]
			switch name {
			case stepRequest, stepAccept, stepEscape, stepBackspace, stepLeft, stepRight, stepNext, stepPrev:
				steps = append(steps, step{action: name})
			default:
				return nil, fmt.Errorf("%w: unknown action {%s}", ErrBadScript, name)
			}
			s = s[end+1:]
			continue
		}
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			return nil, fmt.Errorf("%w: invalid UTF-8", ErrBadScript)
		}
		steps = append(steps, step{action: stepType, text: s[:size]})
		s = s[size:]
	}
	return steps, nil
}

type replayOptions struct {
	text     string
	script   string
	variants []string
	steps    int
	trace    string
}

func newReplayCmd(a *app) *cobra.Command {
	var opts replayOptions
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Run a typing script against the configured providers and print the event stream",
		Long: `Replay runs headless. It requests suggestions at the end of --text and then
applies --type one step at a time, printing every event.

Script actions: {request} {tab} {esc} {bs} {left} {right} {next} {prev}.
Any other text is typed. Use {{ for a literal brace.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.replay(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.text, "text", "", "initial buffer text")
	cmd.Flags().StringVarP(&opts.script, "type", "t", "", "typing script")
	cmd.Flags().StringArrayVar(&opts.variants, "variant", nil, `static variant with elements separated by "|" (repeatable)`)
	cmd.Flags().IntVar(&opts.steps, "steps", 1, "elements computed per variant after each step when not eager")
	cmd.Flags().StringVar(&opts.trace, "trace", "", "write a msgpack event trace to this file")
	return cmd
}

func (a *app) replay(ctx context.Context, opts replayOptions) error {
	steps, err := parseScript(opts.script)
	if err != nil {
		return err
	}

	cfg := *a.cfg
	if len(opts.variants) > 0 {
		cfg.Demo.Providers = []string{"static"}
		cfg.Demo.Variants = make([][]string, len(opts.variants))
		for i, v := range opts.variants {
			cfg.Demo.Variants[i] = strings.Split(v, "|")
		}
	}
	providers, release, err := buildProviders(&cfg, a.logger)
	if err != nil {
		return err
	}
	defer release()

	doc := document.New(opts.text)
	ctrl := controller.New(doc, providers,
		controller.WithLogger(logging.Sub(a.logger, "controller")),
		controller.WithSessionOptions(
			session.WithEager(cfg.Engine.Eager),
			session.WithEngineOptions(cfg.EngineOptions()...),
		),
	)
	defer func() { _ = ctrl.Close() }()

	ctrl.Dispatcher().SubscribeFunc(func(ev event.Event) {
		fmt.Fprintln(a.out, ev.String())
	})
	tracePath := opts.trace
	if tracePath == "" {
		tracePath = cfg.Demo.Trace
	}
	if tracePath != "" {
		f, err := os.Create(tracePath)
		if err != nil {
			return fmt.Errorf("create trace: %w", err)
		}
		defer f.Close()
		rec := trace.NewRecorder(f, trace.WithLogger(logging.Sub(a.logger, "trace")))
		ctrl.Dispatcher().Subscribe(rec)
		defer func() {
			if err := rec.Err(); err != nil {
				a.logger.Error("trace incomplete", "err", err)
			}
		}()
	}

	r := &replayer{doc: doc, ctrl: ctrl, caret: doc.Len(), eager: cfg.Engine.Eager, steps: opts.steps}
	if err := r.request(ctx); err != nil {
		return err
	}
	for _, st := range steps {
		if err := r.apply(ctx, st); err != nil {
			return fmt.Errorf("step %s %q: %w", st.action, st.text, err)
		}
	}

	if err := ctrl.Close(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "text=%q caret=%d\n", doc.Text(), r.caret)
	return nil
}

// replayer drives a controller the way a single-line editor would.
type replayer struct {
	doc   *document.Document
	ctrl  *controller.Controller
	caret int
	eager bool
	steps int
}

func (r *replayer) request(ctx context.Context) error {
	_, err := r.ctrl.Request(ctx, provider.TriggerExplicit, r.caret)
	if errors.Is(err, provider.ErrNoProvider) {
		return nil
	}
	if err != nil {
		return err
	}
	return r.compute(ctx)
}

func (r *replayer) apply(ctx context.Context, st step) error {
	var err error
	switch st.action {
	case stepRequest:
		return r.request(ctx)
	case stepType:
		err = r.doc.InsertText(r.caret, st.text)
		if err == nil {
			r.caret += len(st.text)
		}
	case stepAccept:
		if s := r.ctrl.Session(); s != nil {
			if err := s.Insert(); err != nil {
				return err
			}
			r.caret = s.Caret()
		}
		return nil
	case stepEscape:
		return r.ctrl.Cancel(event.FinishEscapePressed)
	case stepBackspace:
		if r.caret == 0 {
			return r.ctrl.Cancel(event.FinishBackspacePressed)
		}
		_, size := utf8.DecodeLastRuneInString(r.doc.Text()[:r.caret])
		if _, err = r.doc.DeleteText(r.caret-size, size); err == nil {
			r.caret -= size
		}
	case stepLeft, stepRight:
		return r.move(st.action == stepRight)
	case stepNext:
		err = r.ctrl.NextVariant()
	case stepPrev:
		err = r.ctrl.PrevVariant()
	}
	if errors.Is(err, controller.ErrNoSession) {
		err = nil
	}
	if err != nil {
		return err
	}
	return r.compute(ctx)
}

func (r *replayer) move(right bool) error {
	text := r.doc.Text()
	switch {
	case right && r.caret < len(text):
		_, size := utf8.DecodeRuneInString(text[r.caret:])
		r.caret += size
	case !right && r.caret > 0:
		_, size := utf8.DecodeLastRuneInString(text[:r.caret])
		r.caret -= size
	default:
		return nil
	}
	return r.ctrl.Cancel(event.FinishCaretChanged)
}

// compute lets the live session's producers advance before the next step.
func (r *replayer) compute(ctx context.Context) error {
	if r.ctrl.Session() == nil {
		return nil
	}
	if r.eager {
		return r.ctrl.CompleteAll(ctx)
	}
	return r.ctrl.ComputeNextElements(ctx, r.steps)
}
