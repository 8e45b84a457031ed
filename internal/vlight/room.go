package vlight

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Room groups virtual lights and owns the logger they write to.
type Room struct {
	Name   string
	logger zerolog.Logger

	mu     sync.RWMutex
	lights []*VirtualLight
}

// NewRoom creates a room logging through the global logger.
func NewRoom(name string) *Room {
	return &Room{
		Name:   name,
		logger: log.With().Str("room", name).Logger(),
	}
}

// Logger returns the room's logger.
func (r *Room) Logger() *zerolog.Logger {
	return &r.logger
}

// Add attaches a virtual light to the room.
func (r *Room) Add(v *VirtualLight) {
	r.mu.Lock()
	r.lights = append(r.lights, v)
	r.mu.Unlock()

	v.SetRoom(r)
}

// Lights returns the room's virtual lights.
func (r *Room) Lights() []*VirtualLight {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*VirtualLight, len(r.lights))
	copy(out, r.lights)
	return out
}
