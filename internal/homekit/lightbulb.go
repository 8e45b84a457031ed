package homekit

import (
	"context"
	"math"

	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/vlightd/internal/platform"
	"github.com/dokzlo13/vlightd/internal/scale"
	"github.com/dokzlo13/vlightd/internal/vlight"
)

// HomeKit color temperature bounds in mirek.
const (
	minMirek = 140
	maxMirek = 500
)

// lightbulbService is a lightbulb with brightness and color temperature.
type lightbulbService struct {
	*service.S
	On               *characteristic.On
	Brightness       *characteristic.Brightness
	ColorTemperature *characteristic.ColorTemperature
}

func newLightbulbService() *lightbulbService {
	s := &lightbulbService{}
	s.S = service.New(service.TypeLightbulb)

	s.On = characteristic.NewOn()
	s.AddC(s.On.C)

	s.Brightness = characteristic.NewBrightness()
	s.AddC(s.Brightness.C)

	s.ColorTemperature = characteristic.NewColorTemperature()
	s.AddC(s.ColorTemperature.C)

	return s
}

// bulb binds one virtual light to one HomeKit accessory.
type bulb struct {
	light   *vlight.VirtualLight
	a       *accessory.A
	service *lightbulbService
	run     Runner
}

func newBulb(light *vlight.VirtualLight, name string, run Runner) *bulb {
	a := accessory.New(accessory.Info{
		Name:         name,
		SerialNumber: light.ID(),
		Manufacturer: "vlightd",
		Model:        "Virtual Light",
	}, accessory.TypeLightbulb)

	b := &bulb{light: light, a: a, service: newLightbulbService(), run: run}
	a.AddS(b.service.S)

	b.service.On.OnValueRemoteUpdate(b.onRemoteOn)
	b.service.Brightness.OnValueRemoteUpdate(b.onRemoteBrightness)
	b.service.ColorTemperature.OnValueRemoteUpdate(b.onRemoteColorTemperature)
	return b
}

func (b *bulb) onRemoteOn(on bool) {
	b.command("on", func(ctx context.Context) error {
		if on {
			return b.light.TurnOn(ctx)
		}
		return b.light.TurnOff(ctx)
	})
}

func (b *bulb) onRemoteBrightness(percent int) {
	b.command("brightness", func(ctx context.Context) error {
		return b.light.TurnOnWithBrightness(ctx, percentToBrightness(percent))
	})
}

func (b *bulb) onRemoteColorTemperature(mirek int) {
	b.command("color_temperature", func(ctx context.Context) error {
		brightness := scale.MaxBrightness
		if cur, err := b.light.Brightness(ctx); err == nil && cur != nil {
			brightness = *cur
		}
		return b.light.TurnOnWithBrightnessAndTempKelvin(ctx, brightness, scale.MirekToKelvin(mirek))
	})
}

func (b *bulb) command(characteristic string, fn func(ctx context.Context) error) {
	log.Debug().
		Str("light", b.light.ID()).
		Str("characteristic", characteristic).
		Msg("HomeKit remote update")

	if err := b.run(context.Background(), fn); err != nil {
		log.Error().Err(err).
			Str("light", b.light.ID()).
			Str("characteristic", characteristic).
			Msg("Failed to apply HomeKit update")
	}
}

// update mirrors the platform state of the virtual light into the characteristics.
func (b *bulb) update(st *platform.State) {
	if st == nil {
		return
	}
	b.service.On.SetValue(st.State == string(vlight.StateOn))

	if bri, ok := st.Attributes.Int(platform.AttrBrightness); ok {
		b.service.Brightness.SetValue(brightnessToPercent(bri))
	}
	if k, ok := st.Attributes.Int(platform.AttrColorTempKelvin); ok && k > 0 {
		b.service.ColorTemperature.SetValue(scale.Clamp(scale.KelvinToMirek(k), minMirek, maxMirek))
	}
}

func brightnessToPercent(b int) int {
	return scale.Clamp(int(math.Round(float64(b)*100/scale.MaxBrightness)), 0, 100)
}

func percentToBrightness(p int) int {
	return scale.Clamp(scale.DecimalToOctetProportional(float64(p)/100), scale.MinBrightness, scale.MaxBrightness)
}
