package homekit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/vlightd/internal/eventbus"
	"github.com/dokzlo13/vlightd/internal/platform"
	"github.com/dokzlo13/vlightd/internal/platform/memory"
	"github.com/dokzlo13/vlightd/internal/vlight"
)

const lightID = "light.desk_virtual"

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
	return ids
}

func setup(t *testing.T) (*Bridge, *memory.Platform) {
	t.Helper()

	bus := eventbus.NewWithConfig(1, 50)
	t.Cleanup(func() { bus.Close(context.Background()) })
	p, err := memory.New(platform.NewDispatcher(context.Background(), bus), nil, []memory.Entity{{
		ID:    lightID,
		State: "on",
		Attributes: platform.Attributes{
			platform.AttrBrightness:         255,
			platform.AttrColorTempKelvin:    4000,
			platform.AttrMinColorTempKelvin: 2000,
			platform.AttrMaxColorTempKelvin: 6500,
		},
	}})
	require.NoError(t, err)

	v, err := vlight.New(p, lightID, nil)
	require.NoError(t, err)
	t.Cleanup(v.Close)

	b := NewBridge(Config{Name: "vlightd", Pin: "00102003"}, p, lightMap{lightID: v}, nil)
	t.Cleanup(b.Close)
	return b, p
}

func TestSync_InitialState(t *testing.T) {
	b, _ := setup(t)
	require.NoError(t, b.Sync(context.Background()))

	s := b.bulbs[lightID].service
	assert.True(t, s.On.Value())
	assert.Equal(t, 100, s.Brightness.Value())
	assert.Equal(t, 250, s.ColorTemperature.Value())
}

func TestSync_FollowsStateChanges(t *testing.T) {
	b, p := setup(t)
	require.NoError(t, b.Sync(context.Background()))

	require.NoError(t, p.TurnOff(context.Background(), lightID))

	s := b.bulbs[lightID].service
	assert.Eventually(t, func() bool { return !s.On.Value() }, time.Second, 5*time.Millisecond)
}

func TestRemoteUpdates(t *testing.T) {
	b, p := setup(t)
	bl := b.bulbs[lightID]
	ctx := context.Background()

	bl.onRemoteBrightness(50)
	st, err := p.GetState(ctx, lightID)
	require.NoError(t, err)
	assert.Equal(t, 128, *st.Attributes.IntPtr(platform.AttrBrightness))

	bl.onRemoteColorTemperature(370)
	st, err = p.GetState(ctx, lightID)
	require.NoError(t, err)
	assert.Equal(t, 2703, *st.Attributes.IntPtr(platform.AttrColorTempKelvin))
	assert.Equal(t, 128, *st.Attributes.IntPtr(platform.AttrBrightness), "brightness kept")

	bl.onRemoteOn(false)
	st, err = p.GetState(ctx, lightID)
	require.NoError(t, err)
	assert.Equal(t, "off", st.State)
}

func TestConversions(t *testing.T) {
	assert.Equal(t, 0, brightnessToPercent(0))
	assert.Equal(t, 50, brightnessToPercent(128))
	assert.Equal(t, 100, brightnessToPercent(255))
	assert.Equal(t, 255, percentToBrightness(100))
	assert.Equal(t, 3, percentToBrightness(1))
	assert.Equal(t, 0, percentToBrightness(0))
}
