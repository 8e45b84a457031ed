package devices

import (
	"context"
	"fmt"
	"strings"

	"github.com/amimof/huego"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/vlightd/internal/platform"
	"github.com/dokzlo13/vlightd/internal/scale"
)

// Hue v1 API value ranges.
const (
	hueMinBri   = 1
	hueMaxBri   = 254
	hueMinMirek = 153
	hueMaxMirek = 500
)

// HueDriver drives one light on a Hue bridge through the v1 API.
type HueDriver struct {
	bridge  *huego.Bridge
	lightID int
	limiter *rate.Limiter
}

// NewHueDriver creates a driver for lightID. limiter is shared by all
// lights of a bridge; nil disables rate limiting.
func NewHueDriver(bridge *huego.Bridge, lightID int, limiter *rate.Limiter) *HueDriver {
	return &HueDriver{bridge: bridge, lightID: lightID, limiter: limiter}
}

// NewHueLimiter returns a limiter allowing rps light updates per second.
func NewHueLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Apply implements Driver.
func (d *HueDriver) Apply(ctx context.Context, cmd Command) error {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	state := hueState(cmd)
	if _, err := d.bridge.SetLightStateContext(ctx, d.lightID, state); err != nil {
		return fmt.Errorf("failed to set hue light %d: %w", d.lightID, err)
	}

	log.Debug().
		Int("hue_light", d.lightID).
		Bool("on", state.On).
		Uint8("bri", state.Bri).
		Uint16("ct", state.Ct).
		Interface("xy", state.Xy).
		Msg("Hue light state set")

	return nil
}

// Capabilities queries the bridge for the light type.
func (d *HueDriver) Capabilities(ctx context.Context) (Capabilities, error) {
	light, err := d.bridge.GetLightContext(ctx, d.lightID)
	if err != nil {
		return Capabilities{}, fmt.Errorf("failed to get hue light %d: %w", d.lightID, err)
	}
	return HueCapabilities(light.Type), nil
}

// HueCapabilities maps a Hue light type to capabilities.
func HueCapabilities(lightType string) Capabilities {
	switch strings.ToLower(lightType) {
	case "extended color light":
		return Capabilities{Brightness: true, ColorTemp: true, RGB: true}
	case "color light":
		return Capabilities{Brightness: true, RGB: true}
	case "color temperature light":
		return Capabilities{Brightness: true, ColorTemp: true}
	case "dimmable light":
		return Capabilities{Brightness: true}
	default:
		return Capabilities{}
	}
}

func hueState(cmd Command) huego.State {
	state := huego.State{On: cmd.On}
	if !cmd.On {
		return state
	}

	if cmd.Brightness != nil {
		state.Bri = uint8(scale.Clamp(*cmd.Brightness, hueMinBri, hueMaxBri))
	}
	if cmd.Kelvin != nil {
		state.Ct = uint16(scale.Clamp(scale.KelvinToMirek(*cmd.Kelvin), hueMinMirek, hueMaxMirek))
	}
	if cmd.RGB != nil {
		state.Xy = rgbToXY(*cmd.RGB)
	}
	return state
}

func rgbToXY(rgb platform.RGB) []float32 {
	c := colorful.Color{
		R: float64(scale.Clamp(rgb[0], 0, 255)) / 255,
		G: float64(scale.Clamp(rgb[1], 0, 255)) / 255,
		B: float64(scale.Clamp(rgb[2], 0, 255)) / 255,
	}
	x, y, _ := c.Xyy()
	return []float32{float32(x), float32(y)}
}
