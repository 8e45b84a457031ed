package devices

import (
	"context"

	"github.com/dokzlo13/vlightd/internal/platform"
)

// EntityDriver drives another platform entity through light service calls.
type EntityDriver struct {
	api      platform.Platform
	entityID string
}

// NewEntityDriver creates a driver for entityID.
func NewEntityDriver(api platform.Platform, entityID string) *EntityDriver {
	return &EntityDriver{api: api, entityID: entityID}
}

// Apply implements Driver.
func (d *EntityDriver) Apply(ctx context.Context, cmd Command) error {
	if !cmd.On {
		return d.api.TurnOff(ctx, d.entityID)
	}
	return d.api.TurnOn(ctx, d.entityID, platform.TurnOnParams{
		Brightness:      cmd.Brightness,
		ColorTempKelvin: cmd.Kelvin,
		RGBColor:        cmd.RGB,
	})
}
