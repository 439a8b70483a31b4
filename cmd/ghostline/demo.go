package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"

	"github.com/dshills/ghostline/internal/config"
	"github.com/dshills/ghostline/internal/document"
	"github.com/dshills/ghostline/internal/inline/controller"
	"github.com/dshills/ghostline/internal/inline/session"
	"github.com/dshills/ghostline/internal/logging"
	"github.com/dshills/ghostline/internal/term"
	"github.com/dshills/ghostline/internal/trace"
)

type demoOptions struct {
	text  string
	trace string
	watch bool
}

func newDemoCmd(a *app) *cobra.Command {
	var opts demoOptions
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Edit a line in the terminal with inline suggestions",
		Long: `Demo opens a one-line editor. Suggestions appear as dimmed text after the
caret while typing, or on Ctrl-Space.

Keys: Tab accepts, Esc hides, Alt-] and Alt-[ switch variants,
Ctrl-Q quits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.demo(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.text, "text", "", "initial buffer text")
	cmd.Flags().StringVar(&opts.trace, "trace", "", "write a msgpack event trace to this file")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "reload the config file when it changes")
	return cmd
}

func (a *app) demo(ctx context.Context, opts demoOptions) error {
	// The screen owns the terminal, so only a log file receives output.
	logger := a.logger
	if a.logFile == nil {
		logger = logging.Discard()
	}
	cfg := a.cfg

	providers, release, err := buildProviders(cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	doc := document.New(opts.text)
	ctrl := controller.New(doc, providers,
		controller.WithLogger(logging.Sub(logger, "controller")),
		controller.WithAutoTrigger(cfg.Engine.AutoTrigger),
		controller.WithSessionOptions(
			session.WithEager(true),
			session.WithEngineOptions(cfg.EngineOptions()...),
		),
	)
	defer func() { _ = ctrl.Close() }()

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
		ctrl.Dispatcher().Subscribe(trace.NewRecorder(f, trace.WithLogger(logging.Sub(logger, "trace"))))
	}

	if opts.watch && a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, reloadLogLevel(logger),
			config.WithWatcherLogger(logging.Sub(logger, "config")))
		if err != nil {
			return err
		}
		defer w.Close()
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("config watcher stopped", "err", err)
			}
		}()
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("create screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}
	defer screen.Fini()

	host := term.New(screen, doc, ctrl, term.WithLogger(logging.Sub(logger, "term")))
	if err := host.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// reloadLogLevel applies the reloaded log level to logger.
func reloadLogLevel(logger *log.Logger) config.ReloadFunc {
	return func(cfg *config.Config, err error) {
		if err != nil {
			logger.Warn("config reload failed", "err", err)
			return
		}
		logger.SetLevel(logging.ParseLevel(cfg.Log.Level))
		logger.Info("config reloaded", "level", cfg.Log.Level)
	}
}
