package script

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// newState creates a Lua state with only the safe standard libraries and
// runs the compiled script in it.
//
// gopher-lua states are not goroutine-safe. Every state created here is
// owned by exactly one goroutine.
func newState(ctx context.Context, proto *lua.FunctionProto) (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)
	L.SetContext(ctx)

	err := doWithRecovery(func() error {
		L.Push(L.NewFunctionFromProto(proto))
		return L.PCall(0, lua.MultRet, nil)
	})
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("%w: %v", ErrScript, err)
	}
	return L, nil
}

// loaders are the base library functions that read files or compile code.
var loaders = []string{"dofile", "loadfile", "load", "loadstring"}

// openSafeLibraries opens the libraries that cannot reach the host.
// io, os, debug and package stay closed, and the base loaders are removed.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, name := range loaders {
		L.SetGlobal(name, lua.LNil)
	}
}

func doWithRecovery(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// call calls fn with args and returns its results.
func call(L *lua.LState, fn lua.LValue, args ...lua.LValue) ([]lua.LValue, error) {
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("%w: got %s", ErrNotFunction, fn.Type())
	}

	top := L.GetTop()
	L.Push(fn)
	for _, arg := range args {
		L.Push(arg)
	}

	if err := doWithRecovery(func() error {
		return L.PCall(len(args), lua.MultRet, nil)
	}); err != nil {
		return nil, err
	}

	n := L.GetTop() - top
	if n <= 0 {
		return []lua.LValue{}, nil
	}
	results := make([]lua.LValue, n)
	for i := range n {
		results[i] = L.Get(top + i + 1)
	}
	L.Pop(n)
	return results, nil
}
