package lua

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/vlightd/internal/actions"
	"github.com/dokzlo13/vlightd/internal/platform"
	"github.com/dokzlo13/vlightd/internal/vlight"
)

const lightID = "light.desk_virtual"

type stubSubscription struct{}

func (stubSubscription) Unsubscribe() {}

type recordingPlatform struct {
	state    *platform.State
	turnOns  []platform.TurnOnParams
	turnOffs int
}

func (p *recordingPlatform) GetState(context.Context, string) (*platform.State, error) {
	return p.state.Clone(), nil
}

func (p *recordingPlatform) ListenState(string, platform.StateHandler) (platform.Subscription, error) {
	return stubSubscription{}, nil
}

func (p *recordingPlatform) TurnOn(_ context.Context, _ string, params platform.TurnOnParams) error {
	p.turnOns = append(p.turnOns, params)
	return nil
}

func (p *recordingPlatform) TurnOff(context.Context, string) error {
	p.turnOffs++
	return nil
}

type lightMap map[string]*vlight.VirtualLight

func (m lightMap) Light(id string) (*vlight.VirtualLight, bool) {
	l, ok := m[id]
	return l, ok
}

func (m lightMap) IDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func setup(t *testing.T) (*Runtime, *actions.Invoker, *recordingPlatform) {
	t.Helper()

	p := &recordingPlatform{state: &platform.State{
		EntityID: lightID,
		State:    "on",
		Attributes: platform.Attributes{
			platform.AttrBrightness:         100,
			platform.AttrColorTempKelvin:    3000,
			platform.AttrMinColorTempKelvin: 2000,
			platform.AttrMaxColorTempKelvin: 6500,
		},
	}}
	v, err := vlight.New(p, lightID, nil)
	require.NoError(t, err)
	lights := lightMap{lightID: v}

	registry := actions.NewRegistry()
	require.NoError(t, actions.RegisterBuiltins(registry))
	var inv *actions.Invoker
	inv = actions.NewInvoker(registry, nil, func(ctx context.Context) *actions.Context {
		return actions.NewContext(ctx, lights, func(name string, args map[string]any) error {
			return inv.Invoke(ctx, name, args, "")
		})
	})

	rt := NewRuntime(RuntimeDeps{Registry: registry, Invoker: inv, Lights: lights})
	return rt, inv, p
}

func start(t *testing.T, rt *Runtime) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go rt.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-rt.Done()
	})
}

func TestDefineAndInvokeLuaAction(t *testing.T) {
	rt, inv, p := setup(t)
	require.NoError(t, rt.LoadString(`
		local action = require("action")
		local vlight = require("vlight")
		local log = require("log")

		action.define("evening", function(args)
			local l = vlight.get(args.light)
			log.info("evening scene", {light = l:id(), brightness = l:brightness()})
			l:brightness_temp(args.brightness, 2200)
		end)

		action.define("fails", function(args)
			return "not today"
		end)
	`))
	start(t, rt)

	err := rt.DoSyncWithResult(context.Background(), func(ctx context.Context) error {
		return inv.Invoke(ctx, "evening", map[string]any{"light": lightID, "brightness": 60}, "")
	})
	require.NoError(t, err)
	require.Len(t, p.turnOns, 1)
	assert.Equal(t, platform.TurnOnParams{
		Brightness:      platform.IntPtr(60),
		ColorTempKelvin: platform.IntPtr(2200),
	}, p.turnOns[0])

	err = rt.DoSyncWithResult(context.Background(), func(ctx context.Context) error {
		return inv.Invoke(ctx, "fails", nil, "")
	})
	assert.ErrorContains(t, err, "not today")
}

func TestLuaCallsBuiltins(t *testing.T) {
	rt, inv, p := setup(t)
	require.NoError(t, rt.LoadString(`
		local action = require("action")
		action.define("dim_then_off", function(args)
			action.run("brightness_delta", {light = args.light, delta = -40})
			action.run("turn_off", {light = args.light})
		end)
	`))
	start(t, rt)

	err := rt.DoSyncWithResult(context.Background(), func(ctx context.Context) error {
		return inv.Invoke(ctx, "dim_then_off", map[string]any{"light": lightID}, "")
	})
	require.NoError(t, err)
	require.Len(t, p.turnOns, 1)
	assert.Equal(t, platform.IntPtr(60), p.turnOns[0].Brightness)
	assert.Equal(t, 1, p.turnOffs)
}

func TestVLightModule(t *testing.T) {
	rt, _, p := setup(t)
	require.NoError(t, rt.LoadString(`
		local vlight = require("vlight")
		assert(vlight.get("light.missing") == nil)
		assert(#vlight.list() == 1)

		local l = vlight.get("light.desk_virtual")
		assert(l:state() == "on")
		assert(l:kelvin() == 3000)
		assert(l:min_kelvin() == 2000)
		assert(l:rgb() == nil)

		l:overwrite_next_on({brightness = 42}):turn_on()
		assert(l:memory().overwrite_next_on_brightness == 42)
		l:brightness_rgb(10, {1, 2, 3})
	`))

	require.Len(t, p.turnOns, 2)
	assert.Equal(t, platform.IntPtr(42), p.turnOns[0].Brightness)
	assert.Equal(t, &platform.RGB{1, 2, 3}, p.turnOns[1].RGBColor)
}

func TestInputModule(t *testing.T) {
	rt, _, _ := setup(t)
	require.NoError(t, rt.LoadString(`
		local input = require("input")
		input.button("btn-1|btn-2", "short_release", "toggle", {light = "light.desk_virtual"})
		input.rotary("dial-1", "brightness_delta", {light = "light.desk_virtual", step = 8, debounce_ms = 30})
	`))

	buttons := rt.ButtonBindings()
	require.Len(t, buttons, 1)
	assert.True(t, buttons[0].Resource.Matches("btn-2"))
	assert.Equal(t, "toggle", buttons[0].Action)

	rotaries := rt.RotaryBindings()
	require.Len(t, rotaries, 1)
	assert.Equal(t, float64(8), rotaries[0].Step)
	assert.Equal(t, 30*time.Millisecond, rotaries[0].Debounce)
	assert.Equal(t, map[string]any{"light": "light.desk_virtual"}, rotaries[0].Args)
}

func TestDoAfterClose(t *testing.T) {
	rt, _, _ := setup(t)
	start(t, rt)
	rt.Close()

	assert.False(t, rt.Do(context.Background(), func(context.Context) {}))
	assert.ErrorIs(t, rt.DoSync(context.Background(), func(context.Context) {}), ErrRuntimeClosed)
}

func TestLoadScriptError(t *testing.T) {
	rt, _, _ := setup(t)
	assert.Error(t, rt.LoadString(`this is not lua`))
	assert.Error(t, rt.LoadScript("/nonexistent/script.lua"))
}
