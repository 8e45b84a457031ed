package modules

import (
	"context"

	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/vlightd/internal/platform"
	"github.com/dokzlo13/vlightd/internal/vlight"
)

const lightTypeName = "vlight.light"

// Lights resolves virtual lights for scripts.
type Lights interface {
	Light(id string) (*vlight.VirtualLight, bool)
	IDs() []string
}

// VLightModule provides vlight.get() and vlight.list() to Lua
type VLightModule struct {
	lights Lights
}

// NewVLightModule creates a new vlight module
func NewVLightModule(lights Lights) *VLightModule {
	return &VLightModule{lights: lights}
}

// Loader is the module loader for Lua
func (m *VLightModule) Loader(L *lua.LState) int {
	mt := L.NewTypeMetatable(lightTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), lightMethods))

	mod := L.NewTable()
	L.SetField(mod, "get", L.NewFunction(m.get))
	L.SetField(mod, "list", L.NewFunction(m.list))

	L.Push(mod)
	return 1
}

// get(id) -> light or nil
func (m *VLightModule) get(L *lua.LState) int {
	id := L.CheckString(1)
	light, ok := m.lights.Light(id)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	ud := L.NewUserData()
	ud.Value = light
	L.SetMetatable(ud, L.GetTypeMetatable(lightTypeName))
	L.Push(ud)
	return 1
}

// list() -> {id, ...}
func (m *VLightModule) list(L *lua.LState) int {
	tbl := L.NewTable()
	for _, id := range m.lights.IDs() {
		tbl.Append(lua.LString(id))
	}
	L.Push(tbl)
	return 1
}

var lightMethods = map[string]lua.LGFunction{
	// Getters
	"id":         lightID,
	"state":      lightState,
	"brightness": intGetter((*vlight.VirtualLight).Brightness),
	"kelvin":     intGetter((*vlight.VirtualLight).TempKelvin),
	"min_kelvin": intGetter((*vlight.VirtualLight).MinTempKelvin),
	"max_kelvin": intGetter((*vlight.VirtualLight).MaxTempKelvin),
	"rgb":        lightRGB,
	"memory":     lightMemory,

	// Commands (return self for chaining)
	"turn_on":  command(func(ctx context.Context, l *vlight.VirtualLight, _ *lua.LState) error { return l.TurnOn(ctx) }),
	"turn_off": command(func(ctx context.Context, l *vlight.VirtualLight, _ *lua.LState) error { return l.TurnOff(ctx) }),
	"toggle":   command(func(ctx context.Context, l *vlight.VirtualLight, _ *lua.LState) error { return l.Toggle(ctx) }),
	"turn_on_max": command(func(ctx context.Context, l *vlight.VirtualLight, _ *lua.LState) error {
		return l.TurnOnWithMaxIllumination(ctx)
	}),
	"turn_on_last_or_default": command(func(ctx context.Context, l *vlight.VirtualLight, _ *lua.LState) error {
		return l.TurnOnWithLastOrDefaultTempKelvin(ctx)
	}),
	"set_brightness": command(func(ctx context.Context, l *vlight.VirtualLight, L *lua.LState) error {
		return l.TurnOnWithBrightness(ctx, L.CheckInt(2))
	}),
	"brightness_temp": command(func(ctx context.Context, l *vlight.VirtualLight, L *lua.LState) error {
		return l.TurnOnWithBrightnessAndTempKelvin(ctx, L.CheckInt(2), L.CheckInt(3))
	}),
	"brightness_rgb": command(func(ctx context.Context, l *vlight.VirtualLight, L *lua.LState) error {
		rgb, ok := platform.Attributes{"rgb": LuaToGo(L.CheckTable(3))}.RGB("rgb")
		if !ok {
			L.ArgError(3, "{r, g, b} expected")
		}
		return l.TurnOnWithBrightnessAndRGB(ctx, L.CheckInt(2), rgb)
	}),
	"brightness_delta": command(func(ctx context.Context, l *vlight.VirtualLight, L *lua.LState) error {
		return l.TurnOnWithBrightnessDelta(ctx, L.CheckInt(2))
	}),
	"brightness_delta_decimal": command(func(ctx context.Context, l *vlight.VirtualLight, L *lua.LState) error {
		return l.TurnOnWithBrightnessDeltaDecimal(ctx, float64(L.CheckNumber(2)))
	}),
	"temp_kelvin_delta": command(func(ctx context.Context, l *vlight.VirtualLight, L *lua.LState) error {
		return l.TurnOnWithTempKelvinDelta(ctx, L.CheckInt(2))
	}),
	"temp_kelvin_delta_decimal": command(func(ctx context.Context, l *vlight.VirtualLight, L *lua.LState) error {
		return l.TurnOnWithTempKelvinDeltaDecimal(ctx, float64(L.CheckNumber(2)))
	}),
	"overwrite_next_on": command(func(_ context.Context, l *vlight.VirtualLight, L *lua.LState) error {
		opts := LuaTableToMap(L.CheckTable(2))
		if b, ok := platform.Attributes(opts).Int("brightness"); ok {
			l.SetOverwriteNextOnBrightness(b)
		}
		if k, ok := platform.Attributes(opts).Int("kelvin"); ok {
			l.SetOverwriteNextOnTempKelvin(k)
		}
		return nil
	}),
}

func checkLight(L *lua.LState) (*vlight.VirtualLight, *lua.LUserData) {
	ud := L.CheckUserData(1)
	if v, ok := ud.Value.(*vlight.VirtualLight); ok {
		return v, ud
	}
	L.ArgError(1, "vlight.light expected")
	return nil, nil
}

// command wraps a light command. Failures raise a Lua error.
func command(fn func(ctx context.Context, l *vlight.VirtualLight, L *lua.LState) error) lua.LGFunction {
	return func(L *lua.LState) int {
		light, ud := checkLight(L)
		if err := fn(luaContext(L), light, L); err != nil {
			L.RaiseError("%s: %s", light.ID(), err.Error())
			return 0
		}
		L.Push(ud)
		return 1
	}
}

func intGetter(get func(*vlight.VirtualLight, context.Context) (*int, error)) lua.LGFunction {
	return func(L *lua.LState) int {
		light, _ := checkLight(L)
		v, err := get(light, luaContext(L))
		if err != nil {
			L.RaiseError("%s: %s", light.ID(), err.Error())
			return 0
		}
		L.Push(GoToLuaValue(L, v))
		return 1
	}
}

// light:id() -> string
func lightID(L *lua.LState) int {
	light, _ := checkLight(L)
	L.Push(lua.LString(light.ID()))
	return 1
}

// light:state() -> "on" | "off"
func lightState(L *lua.LState) int {
	light, _ := checkLight(L)
	state, err := light.State(luaContext(L))
	if err != nil {
		L.RaiseError("%s: %s", light.ID(), err.Error())
		return 0
	}
	L.Push(lua.LString(state))
	return 1
}

// light:rgb() -> {r, g, b} or nil
func lightRGB(L *lua.LState) int {
	light, _ := checkLight(L)
	rgb, err := light.RGB(luaContext(L))
	if err != nil {
		L.RaiseError("%s: %s", light.ID(), err.Error())
		return 0
	}
	if rgb == nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(GoToLuaValue(L, []any{rgb[0], rgb[1], rgb[2]}))
	return 1
}

// light:memory() -> table
func lightMemory(L *lua.LState) int {
	light, _ := checkLight(L)
	mem := light.Memory()
	L.Push(MapToLuaTable(L, map[string]any{
		"last_on_brightness":           mem.LastOnBrightness,
		"last_on_kelvin":               mem.LastOnTempKelvin,
		"overwrite_next_on_brightness": mem.OverwriteNextOnBrightness,
		"overwrite_next_on_kelvin":     mem.OverwriteNextOnTempKelvin,
	}))
	return 1
}
