package continuation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// LuaFunction is the global the script must define:
//
//	function continuation_prompt(line, command) return "... " end
const LuaFunction = "continuation_prompt"

// DefaultLuaTimeout bounds a single continuation_prompt call.
const DefaultLuaTimeout = 50 * time.Millisecond

// ErrLuaClosed is returned after Close.
var ErrLuaClosed = errors.New("lua provider closed")

// Lua asks a Lua script for each continuation prompt.
//
// gopher-lua states are not goroutine-safe; calls are serialized.
type Lua struct {
	mu      sync.Mutex
	L       *lua.LState
	timeout time.Duration
	closed  bool
}

// LuaOption configures a Lua provider.
type LuaOption func(*Lua)

// WithLuaTimeout sets the per-call timeout.
func WithLuaTimeout(d time.Duration) LuaOption {
	return func(p *Lua) {
		p.timeout = d
	}
}

// NewLua creates a provider from Lua source code.
func NewLua(source string, opts ...LuaOption) (*Lua, error) {
	return newLua(func(L *lua.LState) error { return L.DoString(source) }, opts)
}

// NewLuaFile creates a provider from a Lua script file.
func NewLuaFile(path string, opts ...LuaOption) (*Lua, error) {
	return newLua(func(L *lua.LState) error { return L.DoFile(path) }, opts)
}

func newLua(load func(*lua.LState) error, opts []LuaOption) (*Lua, error) {
	p := &Lua{timeout: DefaultLuaTimeout}
	for _, opt := range opts {
		opt(p)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)
	p.L = L

	if err := p.doWithRecovery(func() error { return load(L) }); err != nil {
		L.Close()
		return nil, fmt.Errorf("load continuation script: %w", err)
	}

	fn := L.GetGlobal(LuaFunction)
	if fn.Type() != lua.LTFunction {
		L.Close()
		return nil, fmt.Errorf("continuation script: %q is not a function (got %s)", LuaFunction, fn.Type())
	}
	return p, nil
}

// unsafeGlobals are base functions that load code from files or strings.
var unsafeGlobals = []string{
	"dofile",
	"loadfile",
	"load",
	"loadstring",
	"require",
	"module",
}

// openSafeLibraries opens only the libraries a prompt script needs and
// removes the base loaders.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range unsafeGlobals {
		L.SetGlobal(name, lua.LNil)
	}
}

// PromptForLine calls continuation_prompt(line, command). Errors, panics,
// timeouts and non-string results are returned as errors; the caller falls
// back to DefaultPrompt.
func (p *Lua) PromptForLine(line int, command string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return "", ErrLuaClosed
	}

	if p.timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		p.L.SetContext(ctx)
		defer p.L.RemoveContext()
	}

	top := p.L.GetTop()
	err := p.doWithRecovery(func() error {
		return p.L.CallByParam(lua.P{
			Fn:      p.L.GetGlobal(LuaFunction),
			NRet:    1,
			Protect: true,
		}, lua.LNumber(line), lua.LString(command))
	})
	if err != nil {
		p.L.SetTop(top)
		return "", err
	}

	ret := p.L.Get(-1)
	p.L.SetTop(top)

	s, ok := ret.(lua.LString)
	if !ok {
		return "", fmt.Errorf("%s returned %s, want string", LuaFunction, ret.Type())
	}
	if s == "" {
		return "", ErrNoPrompt
	}
	return string(s), nil
}

// doWithRecovery executes a function with panic recovery.
func (p *Lua) doWithRecovery(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// Close releases the Lua state.
func (p *Lua) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.L.Close()
	p.closed = true
	return nil
}
