package input

import (
	"maps"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// rotaryDebouncer accumulates signed rotary steps and fires once after a quiet period.
type rotaryDebouncer struct {
	mu       sync.Mutex
	steps    int
	timer    *time.Timer
	debounce time.Duration
	binding  RotaryBinding
	fire     func(args map[string]any)
}

func newRotaryDebouncer(b RotaryBinding, fire func(args map[string]any)) *rotaryDebouncer {
	debounce := b.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if b.Step == 0 {
		b.Step = 1
	}
	return &rotaryDebouncer{debounce: debounce, binding: b, fire: fire}
}

func (d *rotaryDebouncer) add(direction string, steps int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if direction == DirectionCounterClockwise {
		steps = -steps
	}
	d.steps += steps

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.debounce, d.apply)
}

func (d *rotaryDebouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.steps = 0
}

func (d *rotaryDebouncer) apply() {
	d.mu.Lock()
	steps := d.steps
	d.steps = 0
	d.mu.Unlock()

	if steps == 0 {
		return
	}

	direction := DirectionClockwise
	if steps < 0 {
		direction = DirectionCounterClockwise
	}
	delta := float64(steps) * d.binding.Step

	log.Debug().
		Str("direction", direction).
		Int("net_steps", steps).
		Float64("delta", delta).
		Msg("Rotary debounced, applying")

	args := maps.Clone(d.binding.Args)
	if args == nil {
		args = make(map[string]any)
	}
	args["delta"] = delta
	args["steps"] = steps
	args["direction"] = direction
	d.fire(args)
}
