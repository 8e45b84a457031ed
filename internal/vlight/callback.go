package vlight

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dokzlo13/vlightd/internal/platform"
	"github.com/dokzlo13/vlightd/internal/scale"
)

// Below these values a light that can only be switched is turned off rather
// than on, since it would otherwise be far brighter or cooler than asked.
const (
	switchOnMinBrightness = 247
	switchOnMinTempKelvin = 2900
)

func (v *VirtualLight) callback(ctx context.Context, change platform.StateChange) {
	if err := v.HandleStateChange(ctx, change); err != nil {
		v.log().Error().Err(err).Msg("Virtual light event handling failed")
	}
}

// HandleStateChange mirrors a state change of the virtual light onto the
// physical lights. Failures of individual lights do not stop the others;
// they are joined into the returned error.
func (v *VirtualLight) HandleStateChange(ctx context.Context, change platform.StateChange) error {
	if change.New == nil {
		return nil
	}
	logger := v.log()
	newState := change.New

	logger.Info().
		Str("state", newState.State).
		Interface("attributes", newState.Attributes).
		Msg("Virtual light event detected")

	state, err := ParseState(newState.State)
	if err != nil {
		logger.Warn().Str("state", newState.State).Msg("Ignoring virtual light event with unknown state")
		return nil
	}

	attrs := newState.Attributes
	brightness := attrs.IntPtr(platform.AttrBrightness)

	switch {
	case state == StateOn && brightness != nil:
		logger.Info().Msg("Virtual light turned on")
		return v.mirrorOn(ctx, *brightness, attrs.IntPtr(platform.AttrColorTempKelvin), attrs.RGBPtr(platform.AttrRGBColor))

	case state == StateOn:
		logger.Info().Msg("Virtual light turned on, but brightness is unknown; re-issuing with half brightness and default temperature")
		half := scale.DecimalToOctetProportional(0.5)
		err := v.TurnOnWithBrightnessAndTempKelvin(ctx, half, v.defaultTempKelvin)
		v.record(ctx, Event{
			Kind:       EventOnWithoutBrightness,
			Brightness: platform.IntPtr(half),
			TempKelvin: platform.IntPtr(v.defaultTempKelvin),
		})
		return err

	default:
		logger.Info().Msg("Virtual light turned off")
		return v.mirrorOff(ctx)
	}
}

func (v *VirtualLight) mirrorOn(ctx context.Context, brightness int, tempKelvin *int, rgb *platform.RGB) error {
	v.updateMemory(func(m *Memory) {
		m.LastOnBrightness = platform.IntPtr(brightness)
		m.LastOnTempKelvin = tempKelvin
	})

	outcomes := make([]TargetOutcome, 0, len(v.targets))
	var errs []error
	for _, target := range v.targets {
		command, err := v.driveOn(ctx, target, brightness, tempKelvin, rgb)
		outcome := TargetOutcome{LightID: target.ID(), Command: command}
		if err != nil {
			outcome.Error = err.Error()
			errs = append(errs, fmt.Errorf("%s %s: %w", target.ID(), command, err))
			v.log().Error().Err(err).Str("light", target.ID()).Str("command", command).Msg("Failed to drive light")
		}
		outcomes = append(outcomes, outcome)
	}

	v.updateMemory(func(m *Memory) {
		m.OverwriteNextOnBrightness = nil
		m.OverwriteNextOnTempKelvin = nil
	})

	v.record(ctx, Event{
		Kind:       EventOn,
		Brightness: platform.IntPtr(brightness),
		TempKelvin: tempKelvin,
		RGB:        rgb,
		Targets:    outcomes,
	})

	return errors.Join(errs...)
}

// driveOn walks the attribute priority list for one target: color
// temperature, then RGB, then brightness, then a plain switch.
func (v *VirtualLight) driveOn(ctx context.Context, target Light, brightness int, tempKelvin *int, rgb *platform.RGB) (string, error) {
	if l, ok := target.(TempKelvinLight); ok && tempKelvin != nil {
		return "brightness_temp_kelvin", l.TurnOnWithBrightnessAndTempKelvin(ctx, brightness, *tempKelvin)
	}
	if l, ok := target.(RGBLight); ok && rgb != nil {
		return "brightness_rgb", l.TurnOnWithBrightnessAndRGB(ctx, brightness, *rgb)
	}
	if l, ok := target.(DimmableLight); ok {
		return "brightness", l.TurnOnWithBrightness(ctx, brightness)
	}
	if brightness > switchOnMinBrightness && tempKelvin != nil && *tempKelvin > switchOnMinTempKelvin {
		return "on", target.TurnOn(ctx)
	}
	return "off", target.TurnOff(ctx)
}

func (v *VirtualLight) mirrorOff(ctx context.Context) error {
	outcomes := make([]TargetOutcome, 0, len(v.targets))
	var errs []error
	for _, target := range v.targets {
		outcome := TargetOutcome{LightID: target.ID(), Command: "off"}
		if err := target.TurnOff(ctx); err != nil {
			outcome.Error = err.Error()
			errs = append(errs, fmt.Errorf("%s off: %w", target.ID(), err))
			v.log().Error().Err(err).Str("light", target.ID()).Msg("Failed to turn off light")
		}
		outcomes = append(outcomes, outcome)
	}

	v.record(ctx, Event{Kind: EventOff, Targets: outcomes})

	return errors.Join(errs...)
}

func (v *VirtualLight) record(ctx context.Context, event Event) {
	if v.recorder == nil {
		return
	}

	event.LightID = v.id
	if room := v.Room(); room != nil {
		event.Room = room.Name
	}
	event.Timestamp = time.Now().UTC()

	if err := v.recorder.Record(ctx, event); err != nil {
		v.log().Warn().Err(err).Str("kind", string(event.Kind)).Msg("Failed to record virtual light event")
	}
}
