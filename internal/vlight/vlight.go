package vlight

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/vlightd/internal/platform"
	"github.com/dokzlo13/vlightd/internal/scale"
)

// DefaultTempKelvin is used when no other color temperature is known.
const DefaultTempKelvin = 3000

// Option configures a VirtualLight.
type Option func(*VirtualLight)

// WithDefaultTempKelvin overrides the default color temperature.
func WithDefaultTempKelvin(kelvin int) Option {
	return func(v *VirtualLight) {
		if kelvin > 0 {
			v.defaultTempKelvin = kelvin
		}
	}
}

// WithMemoryStore persists last-on and overwrite values across restarts.
func WithMemoryStore(store MemoryStore) Option {
	return func(v *VirtualLight) {
		v.store = store
	}
}

// WithRecorder receives an Event for every handled state change.
func WithRecorder(recorder Recorder) Option {
	return func(v *VirtualLight) {
		v.recorder = recorder
	}
}

// WithLogger replaces the logger used until a room is attached.
func WithLogger(logger zerolog.Logger) Option {
	return func(v *VirtualLight) {
		v.logger = logger.With().Str("virtual_light", v.id).Logger()
	}
}

// VirtualLight mirrors a platform light entity onto physical lights.
type VirtualLight struct {
	api               platform.Platform
	id                string
	targets           []Light
	defaultTempKelvin int
	store             MemoryStore
	recorder          Recorder

	mu     sync.Mutex
	logger zerolog.Logger
	room   *Room
	memory Memory
	sub    platform.Subscription
}

// New creates a virtual light for the entity id and subscribes to its state.
func New(api platform.Platform, id string, targets []Light, opts ...Option) (*VirtualLight, error) {
	v := &VirtualLight{
		api:               api,
		id:                id,
		targets:           targets,
		defaultTempKelvin: DefaultTempKelvin,
		logger:            log.With().Str("virtual_light", id).Logger(),
	}
	for _, opt := range opts {
		opt(v)
	}

	if v.store != nil {
		mem, _, err := v.store.Get(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load memory for %s: %w", id, err)
		}
		v.memory = mem
	}

	sub, err := api.ListenState(id, v.callback)
	if err != nil {
		return nil, fmt.Errorf("failed to listen to %s: %w", id, err)
	}
	v.sub = sub

	return v, nil
}

// Close stops listening to state changes.
func (v *VirtualLight) Close() {
	v.mu.Lock()
	sub := v.sub
	v.sub = nil
	v.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

// ID returns the entity ID of the virtual light.
func (v *VirtualLight) ID() string {
	return v.id
}

// Targets returns the physical lights driven by this virtual light.
func (v *VirtualLight) Targets() []Light {
	return v.targets
}

// SetRoom attaches the room whose logger is used from now on.
func (v *VirtualLight) SetRoom(room *Room) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.room = room
	v.logger = room.Logger().With().Str("virtual_light", v.id).Logger()
}

// Room returns the attached room, or nil.
func (v *VirtualLight) Room() *Room {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.room
}

func (v *VirtualLight) log() *zerolog.Logger {
	v.mu.Lock()
	l := v.logger
	v.mu.Unlock()
	return &l
}

// =============================================================================
// Getters
// =============================================================================

func (v *VirtualLight) currentState(ctx context.Context) (*platform.State, error) {
	st, err := v.api.GetState(ctx, v.id)
	if err != nil {
		return nil, fmt.Errorf("failed to get state of %s: %w", v.id, err)
	}
	return st, nil
}

// State returns the current power state.
func (v *VirtualLight) State(ctx context.Context) (State, error) {
	st, err := v.currentState(ctx)
	if err != nil {
		return "", err
	}
	return ParseState(st.State)
}

// Brightness returns the current brightness, nil while off.
func (v *VirtualLight) Brightness(ctx context.Context) (*int, error) {
	return v.intAttribute(ctx, platform.AttrBrightness)
}

// TempKelvin returns the current color temperature, nil when not in a temperature mode.
func (v *VirtualLight) TempKelvin(ctx context.Context) (*int, error) {
	return v.intAttribute(ctx, platform.AttrColorTempKelvin)
}

// MinTempKelvin returns the lowest supported color temperature.
func (v *VirtualLight) MinTempKelvin(ctx context.Context) (*int, error) {
	return v.intAttribute(ctx, platform.AttrMinColorTempKelvin)
}

// MaxTempKelvin returns the highest supported color temperature.
func (v *VirtualLight) MaxTempKelvin(ctx context.Context) (*int, error) {
	return v.intAttribute(ctx, platform.AttrMaxColorTempKelvin)
}

// RGB returns the current color, nil when not in a color mode.
func (v *VirtualLight) RGB(ctx context.Context) (*platform.RGB, error) {
	st, err := v.currentState(ctx)
	if err != nil {
		return nil, err
	}
	return st.Attributes.RGBPtr(platform.AttrRGBColor), nil
}

// DefaultTempKelvin returns the fallback color temperature.
func (v *VirtualLight) DefaultTempKelvin() int {
	return v.defaultTempKelvin
}

// Memory returns a copy of the remembered values.
func (v *VirtualLight) Memory() Memory {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.memory
}

func (v *VirtualLight) intAttribute(ctx context.Context, key string) (*int, error) {
	st, err := v.currentState(ctx)
	if err != nil {
		return nil, err
	}
	return st.Attributes.IntPtr(key), nil
}

// =============================================================================
// Setters
// =============================================================================

// SetOverwriteNextOnBrightness makes the next turn on use brightness instead
// of the platform default. Cleared once the light reports on.
func (v *VirtualLight) SetOverwriteNextOnBrightness(brightness int) {
	v.updateMemory(func(m *Memory) {
		m.OverwriteNextOnBrightness = platform.IntPtr(brightness)
	})
}

// SetOverwriteNextOnTempKelvin makes the next turn on use tempKelvin.
// Cleared once the light reports on.
func (v *VirtualLight) SetOverwriteNextOnTempKelvin(tempKelvin int) {
	v.updateMemory(func(m *Memory) {
		m.OverwriteNextOnTempKelvin = platform.IntPtr(tempKelvin)
	})
}

func (v *VirtualLight) updateMemory(modify func(m *Memory)) {
	v.mu.Lock()
	modify(&v.memory)
	mem := v.memory
	logger := v.logger
	v.mu.Unlock()

	if v.store == nil {
		return
	}
	if err := v.store.Set(v.id, mem); err != nil {
		logger.Warn().Err(err).Msg("Failed to persist virtual light memory")
	}
}

// =============================================================================
// Standard turn on/off commands
// =============================================================================

func (v *VirtualLight) turnOn(ctx context.Context, params platform.TurnOnParams) error {
	if err := v.api.TurnOn(ctx, v.id, params); err != nil {
		return fmt.Errorf("failed to turn on %s: %w", v.id, err)
	}
	return nil
}

// TurnOn turns the light on, honoring any overwrite values.
func (v *VirtualLight) TurnOn(ctx context.Context) error {
	mem := v.Memory()

	switch {
	case mem.OverwriteNextOnBrightness != nil && mem.OverwriteNextOnTempKelvin != nil:
		return v.TurnOnWithBrightnessAndTempKelvin(ctx, *mem.OverwriteNextOnBrightness, *mem.OverwriteNextOnTempKelvin)
	case mem.OverwriteNextOnBrightness != nil:
		return v.TurnOnWithBrightness(ctx, *mem.OverwriteNextOnBrightness)
	}
	return v.turnOn(ctx, platform.TurnOnParams{})
}

// TurnOnWithBrightness turns the light on at brightness. A pending color
// temperature overwrite is applied alongside.
func (v *VirtualLight) TurnOnWithBrightness(ctx context.Context, brightness int) error {
	if kelvin := v.Memory().OverwriteNextOnTempKelvin; kelvin != nil {
		return v.TurnOnWithBrightnessAndTempKelvin(ctx, brightness, *kelvin)
	}
	return v.turnOn(ctx, platform.TurnOnParams{Brightness: platform.IntPtr(brightness)})
}

// TurnOnWithBrightnessAndTempKelvin turns the light on with both values.
func (v *VirtualLight) TurnOnWithBrightnessAndTempKelvin(ctx context.Context, brightness, tempKelvin int) error {
	return v.turnOn(ctx, platform.TurnOnParams{
		Brightness:      platform.IntPtr(brightness),
		ColorTempKelvin: platform.IntPtr(tempKelvin),
	})
}

// TurnOnWithBrightnessAndRGB turns the light on with brightness and color.
func (v *VirtualLight) TurnOnWithBrightnessAndRGB(ctx context.Context, brightness int, rgb platform.RGB) error {
	return v.turnOn(ctx, platform.TurnOnParams{
		Brightness: platform.IntPtr(brightness),
		RGBColor:   &rgb,
	})
}

// TurnOff turns the light off.
func (v *VirtualLight) TurnOff(ctx context.Context) error {
	if err := v.api.TurnOff(ctx, v.id); err != nil {
		return fmt.Errorf("failed to turn off %s: %w", v.id, err)
	}
	return nil
}

// Toggle turns the light off when on, and on otherwise.
// States other than on/off (e.g. unavailable) count as off.
func (v *VirtualLight) Toggle(ctx context.Context) error {
	state, err := v.State(ctx)
	if err != nil && !errors.Is(err, ErrUnknownState) {
		return err
	}
	if state == StateOn {
		return v.TurnOff(ctx)
	}
	return v.TurnOn(ctx)
}

// =============================================================================
// Special turn on commands
// =============================================================================

// TurnOnWithMaxIllumination turns the light on at full brightness and the default temperature.
func (v *VirtualLight) TurnOnWithMaxIllumination(ctx context.Context) error {
	return v.TurnOnWithBrightnessAndTempKelvin(ctx, scale.MaxBrightness, v.defaultTempKelvin)
}

// TurnOnWithLastOrDefaultTempKelvin restores the last on values, filling
// gaps with full brightness and the default temperature.
func (v *VirtualLight) TurnOnWithLastOrDefaultTempKelvin(ctx context.Context) error {
	mem := v.Memory()

	brightness := scale.MaxBrightness
	if mem.LastOnBrightness != nil {
		brightness = *mem.LastOnBrightness
	}

	tempKelvin := v.defaultTempKelvin
	if mem.LastOnTempKelvin != nil {
		tempKelvin = *mem.LastOnTempKelvin
	}

	return v.TurnOnWithBrightnessAndTempKelvin(ctx, brightness, tempKelvin)
}

// TurnOnWithBrightnessDelta shifts brightness by delta, clamped to 0-255.
// An unknown brightness (light off) counts as 0, and a light without
// brightness stays untouched when the result would not be above 0.
func (v *VirtualLight) TurnOnWithBrightnessDelta(ctx context.Context, delta int) error {
	current, err := v.Brightness(ctx)
	if err != nil {
		return err
	}

	brightness := 0
	if current != nil {
		brightness = *current
	}

	next := scale.Clamp(brightness+delta, scale.MinBrightness, scale.MaxBrightness)
	if current == nil && next <= scale.MinBrightness {
		v.log().Debug().Int("delta", delta).Msg("Skipping brightness delta on light without brightness")
		return nil
	}

	return v.TurnOnWithBrightness(ctx, next)
}

// TurnOnWithBrightnessDeltaDecimal shifts brightness by a fraction of the full range.
func (v *VirtualLight) TurnOnWithBrightnessDeltaDecimal(ctx context.Context, delta float64) error {
	return v.TurnOnWithBrightnessDelta(ctx, scale.DecimalToOctetProportional(delta))
}

// TurnOnWithTempKelvinDelta shifts the color temperature by delta kelvin,
// clamped to the light's supported range, keeping the current brightness.
func (v *VirtualLight) TurnOnWithTempKelvinDelta(ctx context.Context, delta int) error {
	st, err := v.currentState(ctx)
	if err != nil {
		return err
	}
	attrs := st.Attributes

	tempKelvin, ok := attrs.Int(platform.AttrColorTempKelvin)
	if !ok {
		tempKelvin = v.defaultTempKelvin
		if last := v.Memory().LastOnTempKelvin; last != nil {
			tempKelvin = *last
		}
	}

	newTempKelvin := tempKelvin + delta
	if maxK, ok := attrs.Int(platform.AttrMaxColorTempKelvin); ok && newTempKelvin > maxK {
		newTempKelvin = maxK
	}
	if minK, ok := attrs.Int(platform.AttrMinColorTempKelvin); ok && newTempKelvin < minK {
		newTempKelvin = minK
	}

	brightness, ok := attrs.Int(platform.AttrBrightness)
	if !ok {
		return v.turnOn(ctx, platform.TurnOnParams{ColorTempKelvin: platform.IntPtr(newTempKelvin)})
	}
	return v.TurnOnWithBrightnessAndTempKelvin(ctx, brightness, newTempKelvin)
}

// TurnOnWithTempKelvinDeltaDecimal shifts the color temperature by a
// fraction of the light's supported range.
func (v *VirtualLight) TurnOnWithTempKelvinDeltaDecimal(ctx context.Context, delta float64) error {
	st, err := v.currentState(ctx)
	if err != nil {
		return err
	}

	minK, okMin := st.Attributes.Int(platform.AttrMinColorTempKelvin)
	maxK, okMax := st.Attributes.Int(platform.AttrMaxColorTempKelvin)
	if !okMin || !okMax {
		return fmt.Errorf("%s: %w", v.id, ErrTemperatureRangeUnavailable)
	}

	return v.TurnOnWithTempKelvinDelta(ctx, scale.DecimalToCustomRangeProportional(delta, minK, maxK))
}
