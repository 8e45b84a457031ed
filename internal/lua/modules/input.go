package modules

import (
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/vlightd/internal/input"
)

// InputModule provides input.button() and input.rotary() to Lua.
// Bindings collected while the script loads are added to the configured ones.
type InputModule struct {
	buttons  []input.ButtonBinding
	rotaries []input.RotaryBinding
}

// NewInputModule creates a new input module
func NewInputModule() *InputModule {
	return &InputModule{}
}

// Loader is the module loader for Lua
func (m *InputModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "button", L.NewFunction(m.button))
	L.SetField(mod, "rotary", L.NewFunction(m.rotary))

	L.Push(mod)
	return 1
}

// button(resource, event, action_name, args)
// resource and event accept "*" and "a|b" patterns.
func (m *InputModule) button(L *lua.LState) int {
	resource := L.CheckString(1)
	event := L.CheckString(2)
	actionName := L.CheckString(3)
	args := LuaTableToMap(L.OptTable(4, L.NewTable()))

	m.buttons = append(m.buttons, input.ButtonBinding{
		Resource: input.ParseMatcher(resource),
		Event:    input.ParseMatcher(event),
		Action:   actionName,
		Args:     args,
	})
	return 0
}

// rotary(resource, action_name, args)
// args.step scales the net steps into "delta" (default 1).
// args.debounce_ms sets the quiet period (default 50).
func (m *InputModule) rotary(L *lua.LState) int {
	resource := L.CheckString(1)
	actionName := L.CheckString(2)
	args := LuaTableToMap(L.OptTable(3, L.NewTable()))

	binding := input.RotaryBinding{
		Resource: input.ParseMatcher(resource),
		Action:   actionName,
		Step:     1,
		Debounce: input.DefaultDebounce,
	}
	if v, ok := number(args["step"]); ok {
		binding.Step = v
	}
	if v, ok := number(args["debounce_ms"]); ok && v > 0 {
		binding.Debounce = time.Duration(v) * time.Millisecond
	}
	delete(args, "step")
	delete(args, "debounce_ms")
	binding.Args = args

	m.rotaries = append(m.rotaries, binding)
	return 0
}

// Buttons returns the button bindings registered by the script.
func (m *InputModule) Buttons() []input.ButtonBinding {
	return m.buttons
}

// Rotaries returns the rotary bindings registered by the script.
func (m *InputModule) Rotaries() []input.RotaryBinding {
	return m.rotaries
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
