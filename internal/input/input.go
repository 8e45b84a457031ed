// Package input routes Hue button and rotary events to actions.
package input

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/vlightd/internal/eventbus"
)

// Rotary directions reported by the Hue bridge.
const (
	DirectionClockwise        = "clock_wise"
	DirectionCounterClockwise = "counter_clock_wise"
)

// DefaultDebounce is the quiet period before accumulated rotary steps fire.
const DefaultDebounce = 50 * time.Millisecond

// Invocation sources recorded in the ledger.
const (
	SourceButton = "button"
	SourceRotary = "rotary"
)

// ButtonBinding invokes Action when a button resource reports a matching event.
type ButtonBinding struct {
	Resource Matcher
	Event    Matcher
	Action   string
	Args     map[string]any
}

// RotaryBinding invokes Action with a "delta" argument of net steps times Step.
type RotaryBinding struct {
	Resource Matcher
	Action   string
	Args     map[string]any
	Step     float64
	Debounce time.Duration
}

// Invoker runs named actions.
type Invoker interface {
	InvokeWithSource(ctx context.Context, name string, args map[string]any, idempotencyKey, source string) error
}

// Executor serializes work, e.g. onto the Lua worker.
type Executor interface {
	Do(ctx context.Context, work func(ctx context.Context)) bool
}

// Router matches input events against bindings.
type Router struct {
	invoker  Invoker
	exec     Executor
	buttons  []ButtonBinding
	rotaries []RotaryBinding

	mu         sync.Mutex
	debouncers map[string]*rotaryDebouncer
}

// NewRouter creates a router. A nil executor runs actions on the caller's goroutine.
func NewRouter(invoker Invoker, exec Executor, buttons []ButtonBinding, rotaries []RotaryBinding) *Router {
	return &Router{
		invoker:    invoker,
		exec:       exec,
		buttons:    buttons,
		rotaries:   rotaries,
		debouncers: make(map[string]*rotaryDebouncer),
	}
}

// Subscribe attaches the router to button and rotary events on the bus.
func (r *Router) Subscribe(ctx context.Context, bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeButton, func(event eventbus.Event) {
		resourceID, _ := event.Data["resource_id"].(string)
		action, _ := event.Data["action"].(string)
		eventID, _ := event.Data["event_id"].(string)
		r.HandleButton(ctx, resourceID, action, eventID)
	})

	bus.Subscribe(eventbus.EventTypeRotary, func(event eventbus.Event) {
		resourceID, _ := event.Data["resource_id"].(string)
		direction, _ := event.Data["direction"].(string)
		steps, _ := event.Data["steps"].(int)
		r.HandleRotary(ctx, resourceID, direction, steps)
	})

	log.Info().
		Int("buttons", len(r.buttons)).
		Int("rotaries", len(r.rotaries)).
		Msg("Input bindings registered")
}

// HandleButton invokes the first binding matching the button event.
// The event ID is the idempotency key, so redelivered events run once.
func (r *Router) HandleButton(ctx context.Context, resourceID, buttonEvent, eventID string) bool {
	for _, b := range r.buttons {
		if !b.Resource.Matches(resourceID) || !b.Event.Matches(buttonEvent) {
			continue
		}

		log.Debug().
			Str("resource_id", resourceID).
			Str("event", buttonEvent).
			Str("handler_action", b.Action).
			Msg("Button event matched binding")

		name, args := b.Action, maps.Clone(b.Args)
		r.run(ctx, func(workCtx context.Context) {
			if err := r.invoker.InvokeWithSource(workCtx, name, args, eventID, SourceButton); err != nil {
				log.Error().Err(err).Str("action", name).Msg("Failed to invoke button action")
			}
		})
		return true
	}
	return false
}

// HandleRotary feeds steps into the debouncer of the first matching binding.
func (r *Router) HandleRotary(ctx context.Context, resourceID, direction string, steps int) bool {
	binding, ok := r.findRotary(resourceID)
	if !ok {
		return false
	}

	r.mu.Lock()
	d, ok := r.debouncers[resourceID]
	if !ok {
		d = newRotaryDebouncer(binding, func(args map[string]any) {
			r.run(ctx, func(workCtx context.Context) {
				if err := r.invoker.InvokeWithSource(workCtx, binding.Action, args, "", SourceRotary); err != nil {
					log.Error().Err(err).Str("action", binding.Action).Msg("Failed to invoke rotary action")
				}
			})
		})
		log.Debug().
			Str("resource_id", resourceID).
			Dur("debounce", d.debounce).
			Msg("Created rotary debouncer")
		r.debouncers[resourceID] = d
	}
	r.mu.Unlock()

	d.add(direction, steps)
	return true
}

// Close stops pending debounce timers without firing them.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.debouncers {
		d.stop()
	}
}

func (r *Router) findRotary(resourceID string) (RotaryBinding, bool) {
	for _, b := range r.rotaries {
		if b.Resource.Matches(resourceID) {
			return b, true
		}
	}
	return RotaryBinding{}, false
}

func (r *Router) run(ctx context.Context, work func(context.Context)) {
	if r.exec == nil {
		work(ctx)
		return
	}
	r.exec.Do(ctx, work)
}
