// Package script provides inline suggestions computed by Lua scripts.
//
// A script defines a global table named variants whose entries are
// functions. Each function computes one variant: it receives the request as
// a table (text, offset, prefix, trigger) and calls emit(text) for text to
// insert or skip(text) for text already present after the caret. A script
// may also define enabled(request) returning a boolean.
//
//	variants = {
//	  function(req) emit("hello") emit(" world") end,
//	  function(req) emit("help") end,
//	}
package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/dshills/ghostline/internal/inline/compute"
	"github.com/dshills/ghostline/internal/inline/provider"
	"github.com/dshills/ghostline/internal/inline/variant"
	"github.com/dshills/ghostline/internal/logging"
)

var (
	// ErrScript is returned when a script fails to compile or run.
	ErrScript = errors.New("script error")

	// ErrNoVariants is returned when a script does not define a variants
	// table.
	ErrNoVariants = errors.New("script defines no variants table")

	// ErrNotFunction is returned when a variants entry is not a function.
	ErrNotFunction = errors.New("not a function")
)

// Script is a provider backed by a Lua script.
type Script struct {
	name   string
	proto  *lua.FunctionProto
	logger *log.Logger

	mu    sync.Mutex
	probe *lua.LState
}

// Option configures a Script.
type Option func(*Script)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Script) {
		if l != nil {
			s.logger = l
		}
	}
}

// Compile compiles source into a provider named name.
func Compile(name, source string, opts ...Option) (*Script, error) {
	chunk, err := parse.Parse(strings.NewReader(source), name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrScript, name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrScript, name, err)
	}

	s := &Script{name: name, proto: proto, logger: logging.Discard()}
	for _, opt := range opts {
		opt(s)
	}

	probe, err := newState(context.Background(), proto)
	if err != nil {
		return nil, err
	}
	if _, ok := probe.GetGlobal("variants").(*lua.LTable); !ok {
		probe.Close()
		return nil, fmt.Errorf("%w: %s", ErrNoVariants, name)
	}
	s.probe = probe
	return s, nil
}

// Load compiles the script at path.
func Load(path string, opts ...Option) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return Compile(path, string(data), opts...)
}

// Close releases the script's Lua state.
func (s *Script) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.probe != nil {
		s.probe.Close()
		s.probe = nil
	}
	return nil
}

// ID implements provider.Provider.
func (s *Script) ID() string {
	return "script:" + s.name
}

// IsEnabled implements provider.Provider.
func (s *Script) IsEnabled(req provider.Request) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.probe == nil {
		return false
	}

	fn := s.probe.GetGlobal("enabled")
	if fn == lua.LNil {
		return true
	}
	ret, err := call(s.probe, fn, requestTable(s.probe, req))
	if err != nil {
		s.logger.Warn("enabled() failed", "script", s.name, "err", err)
		return false
	}
	return len(ret) > 0 && lua.LVAsBool(ret[0])
}

// Suggest implements provider.Provider. Each entry of the variants table
// runs on its own Lua state inside the variant's producer.
func (s *Script) Suggest(ctx context.Context, req provider.Request) (*compute.Source, error) {
	n, err := s.count()
	if err != nil {
		return nil, err
	}

	src := compute.NewSource()
	for i := 1; i <= n; i++ {
		if err := src.AddFunc(s.generator(i, req)); err != nil {
			return nil, err
		}
	}
	return src, nil
}

func (s *Script) count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.probe == nil {
		return 0, fmt.Errorf("%w: %s: closed", ErrScript, s.name)
	}
	tbl, ok := s.probe.GetGlobal("variants").(*lua.LTable)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoVariants, s.name)
	}
	return tbl.Len(), nil
}

func (s *Script) generator(index int, req provider.Request) func(ctx context.Context, emit compute.EmitFunc) error {
	return func(ctx context.Context, emit compute.EmitFunc) error {
		L, err := newState(ctx, s.proto)
		if err != nil {
			return err
		}
		defer L.Close()

		var emitErr error
		yield := func(kind variant.Kind) lua.LGFunction {
			return func(L *lua.LState) int {
				text := L.CheckString(1)
				el := variant.Insertable(text)
				if kind == variant.KindSkip {
					el = variant.Skip(text)
				}
				if err := emit(el); err != nil {
					emitErr = err
					L.RaiseError("consumer gone")
				}
				return 0
			}
		}
		L.SetGlobal("emit", L.NewFunction(yield(variant.KindInsertable)))
		L.SetGlobal("skip", L.NewFunction(yield(variant.KindSkip)))

		tbl, ok := L.GetGlobal("variants").(*lua.LTable)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoVariants, s.name)
		}

		_, err = call(L, tbl.RawGetInt(index), requestTable(L, req))
		if emitErr != nil {
			return emitErr
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("%w: %s variant %d: %v", ErrScript, s.name, index, err)
		}
		return nil
	}
}

func requestTable(L *lua.LState, req provider.Request) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("text", lua.LString(req.Text))
	t.RawSetString("offset", lua.LNumber(req.Offset))
	t.RawSetString("prefix", lua.LString(req.Prefix()))
	t.RawSetString("trigger", lua.LString(req.Trigger.String()))
	return t
}
