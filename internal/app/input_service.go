package app

import (
	"github.com/dokzlo13/vlightd/internal/config"
	"github.com/dokzlo13/vlightd/internal/input"
)

// inputBindings converts configured bindings. Script bindings are appended
// after these, so configuration wins for buttons matched by both.
func inputBindings(cfg config.InputsConfig) ([]input.ButtonBinding, []input.RotaryBinding) {
	buttons := make([]input.ButtonBinding, 0, len(cfg.Buttons))
	for _, b := range cfg.Buttons {
		buttons = append(buttons, input.ButtonBinding{
			Resource: input.ParseMatcher(b.Resource),
			Event:    input.ParseMatcher(b.Event),
			Action:   b.Action,
			Args:     b.Args,
		})
	}

	rotaries := make([]input.RotaryBinding, 0, len(cfg.Rotaries))
	for _, r := range cfg.Rotaries {
		rotaries = append(rotaries, input.RotaryBinding{
			Resource: input.ParseMatcher(r.Resource),
			Action:   r.Action,
			Args:     r.Args,
			Step:     r.Step,
			Debounce: r.Debounce.Duration(),
		})
	}

	return buttons, rotaries
}
