// Package platform defines the home-automation platform API that virtual
// lights are built on: entity state reads, state-change subscriptions and
// light service calls.
package platform

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrEntityNotFound is returned when the platform does not know an entity.
var ErrEntityNotFound = errors.New("entity not found")

// Attribute keys used by light entities.
const (
	AttrBrightness         = "brightness"
	AttrColorTempKelvin    = "color_temp_kelvin"
	AttrMinColorTempKelvin = "min_color_temp_kelvin"
	AttrMaxColorTempKelvin = "max_color_temp_kelvin"
	AttrRGBColor           = "rgb_color"
)

// State is a snapshot of one entity.
type State struct {
	EntityID    string     `json:"entity_id"`
	State       string     `json:"state"`
	Attributes  Attributes `json:"attributes"`
	LastChanged time.Time  `json:"last_changed"`
}

// Clone returns a deep enough copy for attribute mutation.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.Attributes = make(Attributes, len(s.Attributes))
	for k, v := range s.Attributes {
		c.Attributes[k] = v
	}
	return &c
}

// StateChange is delivered to listeners when an entity changes.
// New is nil when the entity was removed.
type StateChange struct {
	EntityID string
	Old      *State
	New      *State
}

// StateHandler receives state changes for a subscribed entity.
type StateHandler func(ctx context.Context, change StateChange)

// Subscription is an active state listener.
type Subscription interface {
	Unsubscribe()
}

// TurnOnParams are the optional attributes of a turn_on call.
type TurnOnParams struct {
	Brightness      *int
	ColorTempKelvin *int
	RGBColor        *RGB
}

// ServiceData builds the service call payload for the entity.
func (p TurnOnParams) ServiceData(entityID string) map[string]any {
	data := map[string]any{"entity_id": entityID}
	if p.Brightness != nil {
		data[AttrBrightness] = *p.Brightness
	}
	if p.ColorTempKelvin != nil {
		data[AttrColorTempKelvin] = *p.ColorTempKelvin
	}
	if p.RGBColor != nil {
		data[AttrRGBColor] = []int{p.RGBColor[0], p.RGBColor[1], p.RGBColor[2]}
	}
	return data
}

// Platform is the home-automation API a virtual light runs against.
type Platform interface {
	GetState(ctx context.Context, entityID string) (*State, error)
	ListenState(entityID string, handler StateHandler) (Subscription, error)
	TurnOn(ctx context.Context, entityID string, params TurnOnParams) error
	TurnOff(ctx context.Context, entityID string) error
}

// Domain returns the domain part of an entity ID ("light" for "light.kitchen").
func Domain(entityID string) string {
	domain, _, found := strings.Cut(entityID, ".")
	if !found {
		return ""
	}
	return domain
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
