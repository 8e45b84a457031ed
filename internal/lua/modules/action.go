package modules

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/vlightd/internal/actions"
)

// Invoker runs actions by name.
type Invoker interface {
	InvokeWithSource(ctx context.Context, name string, args map[string]any, idempotencyKey, source string) error
}

// ActionModule provides action.define() and action.run() to Lua
type ActionModule struct {
	registry *actions.Registry
	invoker  Invoker
}

// NewActionModule creates a new action module
func NewActionModule(registry *actions.Registry, invoker Invoker) *ActionModule {
	return &ActionModule{registry: registry, invoker: invoker}
}

// Loader is the module loader for Lua
func (m *ActionModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "define", L.NewFunction(m.define))
	L.SetField(mod, "run", L.NewFunction(m.run))
	L.SetField(mod, "names", L.NewFunction(m.names))

	L.Push(mod)
	return 1
}

// define(name, function(args) ... end) registers a Lua action.
// Returning a string from the function fails the action with that message.
func (m *ActionModule) define(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)

	if err := m.registry.Register(&luaAction{L: L, name: name, fn: fn}); err != nil {
		L.RaiseError("failed to register action: %s", err.Error())
		return 0
	}

	log.Debug().Str("action", name).Msg("Lua action defined")
	return 0
}

// run(name, args) runs an action immediately, without deduplication.
func (m *ActionModule) run(L *lua.LState) int {
	name := L.CheckString(1)
	args := LuaTableToMap(L.OptTable(2, L.NewTable()))

	log.Debug().Str("action", name).Msg("Running action from Lua")

	if err := m.invoker.InvokeWithSource(luaContext(L), name, args, "", "lua"); err != nil {
		L.RaiseError("action %q failed: %s", name, err.Error())
	}
	return 0
}

// names() returns the registered action names.
func (m *ActionModule) names(L *lua.LState) int {
	tbl := L.NewTable()
	for _, name := range m.registry.Names() {
		tbl.Append(lua.LString(name))
	}
	L.Push(tbl)
	return 1
}

// luaAction wraps a Lua function as an action.
//
// L is captured at definition time. All Lua execution happens on the
// runtime worker goroutine, so Execute must be called from there.
type luaAction struct {
	L    *lua.LState
	name string
	fn   *lua.LFunction
}

func (a *luaAction) Name() string { return a.name }

func (a *luaAction) Execute(ctx *actions.Context, args map[string]any) error {
	a.L.SetContext(ctx.Ctx())

	a.L.Push(a.fn)
	a.L.Push(MapToLuaTable(a.L, args))
	if err := a.L.PCall(1, 1, nil); err != nil {
		return fmt.Errorf("lua action %q: %w", a.name, err)
	}

	ret := a.L.Get(-1)
	a.L.Pop(1)
	if msg, ok := ret.(lua.LString); ok && msg != "" {
		return fmt.Errorf("lua action %q: %s", a.name, string(msg))
	}
	return nil
}
