// Package devices provides the physical lights a virtual light drives.
//
// Each light is built from a Driver, which knows how to talk to the
// hardware or platform entity, and a set of Capabilities, which decide the
// capability tier (and so the vlight interfaces) the light implements.
package devices

import (
	"context"

	"github.com/dokzlo13/vlightd/internal/platform"
	"github.com/dokzlo13/vlightd/internal/vlight"
)

// Command is one state request for a physical light.
// Nil fields are left to the light.
type Command struct {
	On         bool
	Brightness *int
	Kelvin     *int
	RGB        *platform.RGB
}

// Driver applies commands to one physical light.
type Driver interface {
	Apply(ctx context.Context, cmd Command) error
}

// Capabilities lists what a physical light supports beyond on/off.
type Capabilities struct {
	Brightness bool
	ColorTemp  bool
	RGB        bool
}

// Normalize returns c with brightness implied by color support.
func (c Capabilities) Normalize() Capabilities {
	if c.ColorTemp || c.RGB {
		c.Brightness = true
	}
	return c
}

// New builds the capability tier matching caps.
func New(id string, driver Driver, caps Capabilities) vlight.Light {
	caps = caps.Normalize()
	sw := &Switch{id: id, driver: driver}

	switch {
	case caps.ColorTemp && caps.RGB:
		return &FullColorLight{TempLight{Dimmable{*sw}}}
	case caps.ColorTemp:
		return &TempLight{Dimmable{*sw}}
	case caps.RGB:
		return &ColorLight{Dimmable{*sw}}
	case caps.Brightness:
		return &Dimmable{*sw}
	default:
		return sw
	}
}

// Switch is a light that can only be turned on and off.
type Switch struct {
	id     string
	driver Driver
}

// ID implements vlight.Light.
func (s *Switch) ID() string { return s.id }

// TurnOn implements vlight.Light.
func (s *Switch) TurnOn(ctx context.Context) error {
	return s.driver.Apply(ctx, Command{On: true})
}

// TurnOff implements vlight.Light.
func (s *Switch) TurnOff(ctx context.Context) error {
	return s.driver.Apply(ctx, Command{On: false})
}

// Dimmable adds brightness.
type Dimmable struct {
	Switch
}

// TurnOnWithBrightness implements vlight.DimmableLight.
func (d *Dimmable) TurnOnWithBrightness(ctx context.Context, brightness int) error {
	return d.driver.Apply(ctx, Command{On: true, Brightness: platform.IntPtr(brightness)})
}

// TempLight adds color temperature.
type TempLight struct {
	Dimmable
}

// TurnOnWithBrightnessAndTempKelvin implements vlight.TempKelvinLight.
func (t *TempLight) TurnOnWithBrightnessAndTempKelvin(ctx context.Context, brightness, tempKelvin int) error {
	return t.driver.Apply(ctx, Command{
		On:         true,
		Brightness: platform.IntPtr(brightness),
		Kelvin:     platform.IntPtr(tempKelvin),
	})
}

// ColorLight adds RGB color.
type ColorLight struct {
	Dimmable
}

// TurnOnWithBrightnessAndRGB implements vlight.RGBLight.
func (c *ColorLight) TurnOnWithBrightnessAndRGB(ctx context.Context, brightness int, rgb platform.RGB) error {
	return applyRGB(ctx, c.driver, brightness, rgb)
}

// FullColorLight supports both color temperature and RGB color.
type FullColorLight struct {
	TempLight
}

// TurnOnWithBrightnessAndRGB implements vlight.RGBLight.
func (f *FullColorLight) TurnOnWithBrightnessAndRGB(ctx context.Context, brightness int, rgb platform.RGB) error {
	return applyRGB(ctx, f.driver, brightness, rgb)
}

func applyRGB(ctx context.Context, driver Driver, brightness int, rgb platform.RGB) error {
	return driver.Apply(ctx, Command{
		On:         true,
		Brightness: platform.IntPtr(brightness),
		RGB:        &rgb,
	})
}
