package platform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributesInt(t *testing.T) {
	attrs := Attributes{
		"int":    200,
		"float":  float64(180),
		"number": json.Number("3000"),
		"nil":    nil,
		"string": "bright",
	}

	v, ok := attrs.Int("int")
	assert.True(t, ok)
	assert.Equal(t, 200, v)

	v, ok = attrs.Int("float")
	assert.True(t, ok)
	assert.Equal(t, 180, v)

	v, ok = attrs.Int("number")
	assert.True(t, ok)
	assert.Equal(t, 3000, v)

	_, ok = attrs.Int("nil")
	assert.False(t, ok)
	_, ok = attrs.Int("string")
	assert.False(t, ok)
	_, ok = attrs.Int("missing")
	assert.False(t, ok)

	assert.Nil(t, attrs.IntPtr("missing"))
	require.NotNil(t, attrs.IntPtr("int"))
	assert.Equal(t, 200, *attrs.IntPtr("int"))
}

func TestAttributesRGB(t *testing.T) {
	var decoded Attributes
	require.NoError(t, json.Unmarshal([]byte(`{"rgb_color":[255,120,10],"bad":[1,2],"none":null}`), &decoded))

	rgb, ok := decoded.RGB(AttrRGBColor)
	require.True(t, ok)
	assert.Equal(t, RGB{255, 120, 10}, rgb)

	_, ok = decoded.RGB("bad")
	assert.False(t, ok)
	assert.Nil(t, decoded.RGBPtr("none"))

	typed := Attributes{AttrRGBColor: RGB{1, 2, 3}}
	assert.Equal(t, &RGB{1, 2, 3}, typed.RGBPtr(AttrRGBColor))
}

func TestTurnOnParamsServiceData(t *testing.T) {
	data := TurnOnParams{}.ServiceData("light.kitchen")
	assert.Equal(t, map[string]any{"entity_id": "light.kitchen"}, data)

	data = TurnOnParams{
		Brightness:      IntPtr(128),
		ColorTempKelvin: IntPtr(2700),
		RGBColor:        &RGB{10, 20, 30},
	}.ServiceData("light.kitchen")
	assert.Equal(t, 128, data[AttrBrightness])
	assert.Equal(t, 2700, data[AttrColorTempKelvin])
	assert.Equal(t, []int{10, 20, 30}, data[AttrRGBColor])
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "light", Domain("light.kitchen"))
	assert.Equal(t, "switch", Domain("switch.fan.extra"))
	assert.Equal(t, "", Domain("kitchen"))
}
