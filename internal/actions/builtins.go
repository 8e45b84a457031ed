package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dokzlo13/vlightd/internal/platform"
	"github.com/dokzlo13/vlightd/internal/vlight"
)

// Builtin action names.
const (
	ActionTurnOn              = "turn_on"
	ActionTurnOff             = "turn_off"
	ActionToggle              = "toggle"
	ActionTurnOnMax           = "turn_on_max"
	ActionTurnOnLastOrDefault = "turn_on_last_or_default"
	ActionBrightness          = "brightness"
	ActionBrightnessTemp      = "brightness_temp"
	ActionBrightnessRGB       = "brightness_rgb"
	ActionBrightnessDelta     = "brightness_delta"
	ActionBrightnessDeltaDec  = "brightness_delta_decimal"
	ActionTempKelvinDelta     = "temp_kelvin_delta"
	ActionTempKelvinDeltaDec  = "temp_kelvin_delta_decimal"
	ActionOverwriteNextOn     = "overwrite_next_on"
)

type lightCommand func(ctx context.Context, l *vlight.VirtualLight, args platform.Attributes) error

// RegisterBuiltins registers the virtual light commands. Every builtin
// takes the virtual light entity ID as the "light" argument.
func RegisterBuiltins(r *Registry) error {
	builtins := map[string]lightCommand{
		ActionTurnOn: func(ctx context.Context, l *vlight.VirtualLight, _ platform.Attributes) error {
			return l.TurnOn(ctx)
		},
		ActionTurnOff: func(ctx context.Context, l *vlight.VirtualLight, _ platform.Attributes) error {
			return l.TurnOff(ctx)
		},
		ActionToggle: func(ctx context.Context, l *vlight.VirtualLight, _ platform.Attributes) error {
			return l.Toggle(ctx)
		},
		ActionTurnOnMax: func(ctx context.Context, l *vlight.VirtualLight, _ platform.Attributes) error {
			return l.TurnOnWithMaxIllumination(ctx)
		},
		ActionTurnOnLastOrDefault: func(ctx context.Context, l *vlight.VirtualLight, _ platform.Attributes) error {
			return l.TurnOnWithLastOrDefaultTempKelvin(ctx)
		},
		ActionBrightness: func(ctx context.Context, l *vlight.VirtualLight, args platform.Attributes) error {
			b, err := intArg(args, "brightness")
			if err != nil {
				return err
			}
			return l.TurnOnWithBrightness(ctx, b)
		},
		ActionBrightnessTemp: func(ctx context.Context, l *vlight.VirtualLight, args platform.Attributes) error {
			b, err := intArg(args, "brightness")
			if err != nil {
				return err
			}
			k, err := intArg(args, "kelvin")
			if err != nil {
				return err
			}
			return l.TurnOnWithBrightnessAndTempKelvin(ctx, b, k)
		},
		ActionBrightnessRGB: func(ctx context.Context, l *vlight.VirtualLight, args platform.Attributes) error {
			b, err := intArg(args, "brightness")
			if err != nil {
				return err
			}
			rgb, ok := args.RGB("rgb")
			if !ok {
				return fmt.Errorf("%w: rgb must be a list of three numbers", ErrInvalidArgument)
			}
			return l.TurnOnWithBrightnessAndRGB(ctx, b, rgb)
		},
		ActionBrightnessDelta: func(ctx context.Context, l *vlight.VirtualLight, args platform.Attributes) error {
			d, err := intArg(args, "delta")
			if err != nil {
				return err
			}
			return l.TurnOnWithBrightnessDelta(ctx, d)
		},
		ActionBrightnessDeltaDec: func(ctx context.Context, l *vlight.VirtualLight, args platform.Attributes) error {
			d, err := floatArg(args, "delta")
			if err != nil {
				return err
			}
			return l.TurnOnWithBrightnessDeltaDecimal(ctx, d)
		},
		ActionTempKelvinDelta: func(ctx context.Context, l *vlight.VirtualLight, args platform.Attributes) error {
			d, err := intArg(args, "delta")
			if err != nil {
				return err
			}
			return l.TurnOnWithTempKelvinDelta(ctx, d)
		},
		ActionTempKelvinDeltaDec: func(ctx context.Context, l *vlight.VirtualLight, args platform.Attributes) error {
			d, err := floatArg(args, "delta")
			if err != nil {
				return err
			}
			return l.TurnOnWithTempKelvinDeltaDecimal(ctx, d)
		},
		ActionOverwriteNextOn: func(_ context.Context, l *vlight.VirtualLight, args platform.Attributes) error {
			b, hasB := args.Int("brightness")
			k, hasK := args.Int("kelvin")
			if !hasB && !hasK {
				return fmt.Errorf("%w: brightness or kelvin is required", ErrInvalidArgument)
			}
			if hasB {
				l.SetOverwriteNextOnBrightness(b)
			}
			if hasK {
				l.SetOverwriteNextOnTempKelvin(k)
			}
			return nil
		},
	}

	for name, cmd := range builtins {
		if err := r.RegisterSimple(name, lightAction(cmd)); err != nil {
			return err
		}
	}
	return nil
}

func lightAction(cmd lightCommand) func(ctx *Context, args map[string]any) error {
	return func(ctx *Context, args map[string]any) error {
		id, _ := args["light"].(string)
		if id == "" {
			return fmt.Errorf("%w: light is required", ErrInvalidArgument)
		}
		l, err := ctx.Light(id)
		if err != nil {
			return err
		}
		return cmd(ctx.Ctx(), l, platform.Attributes(args))
	}
}

func intArg(args platform.Attributes, key string) (int, error) {
	v, ok := args.Int(key)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidArgument, key)
	}
	return v, nil
}

func floatArg(args platform.Attributes, key string) (float64, error) {
	switch v := args[key].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidArgument, key)
}
