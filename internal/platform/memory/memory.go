// Package memory is an in-process platform for standalone runs and tests.
// It keeps light entities in memory, optionally persisting them, and
// publishes state changes through the event bus.
package memory

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/vlightd/internal/platform"
	"github.com/dokzlo13/vlightd/internal/scale"
)

const (
	stateOn  = "on"
	stateOff = "off"
)

// Entity seeds one entity on start.
type Entity struct {
	ID         string
	State      string
	Attributes platform.Attributes
}

// EntityStore persists entity states between runs.
type EntityStore interface {
	GetAll() (map[string]platform.State, map[string]int64, error)
	Set(id string, value platform.State) error
}

// Platform implements platform.Platform in memory.
type Platform struct {
	dispatcher *platform.Dispatcher
	store      EntityStore
	now        func() time.Time

	// writeMu serializes writers through persist and publish so listeners
	// and the store see changes in the order they were applied.
	writeMu sync.Mutex

	mu       sync.RWMutex
	entities map[string]*platform.State
}

// New creates the platform. Persisted states override seeds of the same
// entity except for the min/max color temperature, which always come from
// the seed.
func New(dispatcher *platform.Dispatcher, store EntityStore, seeds []Entity) (*Platform, error) {
	p := &Platform{
		dispatcher: dispatcher,
		store:      store,
		now:        time.Now,
		entities:   make(map[string]*platform.State, len(seeds)),
	}

	for _, seed := range seeds {
		state := seed.State
		if state == "" {
			state = stateOff
		}
		attrs := make(platform.Attributes, len(seed.Attributes))
		for k, v := range seed.Attributes {
			attrs[k] = v
		}
		p.entities[seed.ID] = &platform.State{
			EntityID:    seed.ID,
			State:       state,
			Attributes:  attrs,
			LastChanged: p.now().UTC(),
		}
	}

	if store != nil {
		persisted, _, err := store.GetAll()
		if err != nil {
			return nil, fmt.Errorf("failed to load entities: %w", err)
		}
		for id, st := range persisted {
			seed, ok := p.entities[id]
			if !ok {
				continue
			}
			restored := st
			restored.EntityID = id
			if restored.Attributes == nil {
				restored.Attributes = make(platform.Attributes)
			}
			for _, key := range []string{platform.AttrMinColorTempKelvin, platform.AttrMaxColorTempKelvin} {
				if v, ok := seed.Attributes[key]; ok {
					restored.Attributes[key] = v
				}
			}
			p.entities[id] = &restored
		}
		log.Debug().Int("entities", len(persisted)).Msg("Restored memory platform entities")
	}

	return p, nil
}

// GetState implements platform.Platform.
func (p *Platform) GetState(_ context.Context, entityID string) (*platform.State, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st, ok := p.entities[entityID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", entityID, platform.ErrEntityNotFound)
	}
	return st.Clone(), nil
}

// Entities returns the IDs of all known entities, sorted.
func (p *Platform) Entities() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.entities))
	for id := range p.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ListenState implements platform.Platform.
func (p *Platform) ListenState(entityID string, handler platform.StateHandler) (platform.Subscription, error) {
	return p.dispatcher.Listen(entityID, handler), nil
}

// TurnOn implements platform.Platform. A color temperature replaces the
// RGB color and vice versa. Brightness is kept when not given, and is full
// when the light was off.
func (p *Platform) TurnOn(_ context.Context, entityID string, params platform.TurnOnParams) error {
	return p.update(entityID, func(st *platform.State) {
		attrs := st.Attributes

		switch {
		case params.Brightness != nil:
			attrs[platform.AttrBrightness] = scale.Clamp(*params.Brightness, scale.MinBrightness, scale.MaxBrightness)
		case attrs.IntPtr(platform.AttrBrightness) == nil:
			attrs[platform.AttrBrightness] = scale.MaxBrightness
		}

		if params.ColorTempKelvin != nil {
			attrs[platform.AttrColorTempKelvin] = *params.ColorTempKelvin
			attrs[platform.AttrRGBColor] = nil
		}
		if params.RGBColor != nil {
			attrs[platform.AttrRGBColor] = *params.RGBColor
			attrs[platform.AttrColorTempKelvin] = nil
		}

		st.State = stateOn
	})
}

// TurnOff implements platform.Platform. Brightness and color are reported
// as absent while off.
func (p *Platform) TurnOff(_ context.Context, entityID string) error {
	return p.update(entityID, func(st *platform.State) {
		st.State = stateOff
		st.Attributes[platform.AttrBrightness] = nil
		st.Attributes[platform.AttrColorTempKelvin] = nil
		st.Attributes[platform.AttrRGBColor] = nil
	})
}

// SetState replaces an entity's state and attributes, creating it if needed.
func (p *Platform) SetState(entityID, state string, attrs platform.Attributes) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	old := p.entities[entityID]
	if attrs == nil {
		attrs = make(platform.Attributes)
	}
	next := &platform.State{EntityID: entityID, State: state, Attributes: attrs, LastChanged: p.now().UTC()}
	p.entities[entityID] = next
	p.mu.Unlock()

	p.commit(old.Clone(), next.Clone())
}

func (p *Platform) update(entityID string, modify func(st *platform.State)) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	current, ok := p.entities[entityID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%s: %w", entityID, platform.ErrEntityNotFound)
	}

	next := current.Clone()
	modify(next)
	if next.State == current.State && reflect.DeepEqual(next.Attributes, current.Attributes) {
		p.mu.Unlock()
		return nil
	}
	next.LastChanged = p.now().UTC()
	p.entities[entityID] = next
	p.mu.Unlock()

	p.commit(current, next.Clone())
	return nil
}

func (p *Platform) commit(old, next *platform.State) {
	if p.store != nil {
		if err := p.store.Set(next.EntityID, *next); err != nil {
			log.Warn().Err(err).Str("entity_id", next.EntityID).Msg("Failed to persist entity state")
		}
	}

	log.Debug().
		Str("entity_id", next.EntityID).
		Str("state", next.State).
		Interface("attributes", next.Attributes).
		Msg("Entity state changed")

	p.dispatcher.Publish(platform.StateChange{EntityID: next.EntityID, Old: old, New: next})
}
