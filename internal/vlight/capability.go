package vlight

import (
	"context"

	"github.com/dokzlo13/vlightd/internal/platform"
)

// Light is a physical light target. Every target can be switched on and off;
// richer control is discovered through the optional interfaces below.
type Light interface {
	ID() string
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
}

// DimmableLight accepts a brightness on the 0-255 scale.
type DimmableLight interface {
	Light
	TurnOnWithBrightness(ctx context.Context, brightness int) error
}

// TempKelvinLight accepts brightness together with a color temperature.
type TempKelvinLight interface {
	Light
	TurnOnWithBrightnessAndTempKelvin(ctx context.Context, brightness, tempKelvin int) error
}

// RGBLight accepts brightness together with an RGB color.
type RGBLight interface {
	Light
	TurnOnWithBrightnessAndRGB(ctx context.Context, brightness int, rgb platform.RGB) error
}
