package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/dshills/ghostline/internal/trace"
)

type traceOptions struct {
	kinds   []string
	session string
	times   bool
}

func newTraceCmd(a *app) *cobra.Command {
	var opts traceOptions
	cmd := &cobra.Command{
		Use:   "trace FILE",
		Short: "Print a recorded msgpack event trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open trace: %w", err)
			}
			defer f.Close()
			return a.dumpTrace(f, opts)
		},
	}
	cmd.Flags().StringSliceVar(&opts.kinds, "kind", nil, "only print these event kinds")
	cmd.Flags().StringVar(&opts.session, "session", "", "only print events of this session id")
	cmd.Flags().BoolVar(&opts.times, "time", false, "prefix each event with its timestamp")
	return cmd
}

func (a *app) dumpTrace(r io.Reader, opts traceOptions) error {
	tr := trace.NewReader(r)
	printed := 0
	for {
		rec, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if len(opts.kinds) > 0 && !slices.Contains(opts.kinds, rec.Kind) {
			continue
		}
		if opts.session != "" && rec.Session != opts.session {
			continue
		}
		if opts.times {
			fmt.Fprintf(a.out, "%s ", rec.Timestamp().UTC().Format("15:04:05.000"))
		}
		fmt.Fprintln(a.out, rec.String())
		printed++
	}
	a.logger.Debug("trace printed", "records", printed)
	return nil
}
