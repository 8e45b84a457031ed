// Package homekit exposes virtual lights as HomeKit lightbulbs.
package homekit

import (
	"context"
	"fmt"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/vlightd/internal/platform"
	"github.com/dokzlo13/vlightd/internal/vlight"
)

// Config configures the HomeKit bridge.
type Config struct {
	Name        string
	Pin         string
	Addr        string
	StoragePath string
}

// Lights resolves virtual lights.
type Lights interface {
	Light(id string) (*vlight.VirtualLight, bool)
	IDs() []string
}

// Runner executes a light command, e.g. on the Lua worker.
type Runner func(ctx context.Context, fn func(ctx context.Context) error) error

// Bridge is a HomeKit bridge with one lightbulb per virtual light.
type Bridge struct {
	cfg    Config
	api    platform.Platform
	bridge *accessory.Bridge
	bulbs  map[string]*bulb
	order  []string
	subs   []platform.Subscription
}

// NewBridge builds the accessories. A nil runner calls the light directly.
func NewBridge(cfg Config, api platform.Platform, lights Lights, run Runner) *Bridge {
	if run == nil {
		run = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}

	b := &Bridge{
		cfg:    cfg,
		api:    api,
		bridge: accessory.NewBridge(accessory.Info{Name: cfg.Name, Manufacturer: "vlightd"}),
		bulbs:  make(map[string]*bulb),
	}
	for _, id := range lights.IDs() {
		l, ok := lights.Light(id)
		if !ok {
			continue
		}
		name := id
		if room := l.Room(); room != nil {
			name = room.Name + " " + id
		}
		b.bulbs[id] = newBulb(l, name, run)
		b.order = append(b.order, id)
	}
	return b
}

// Sync loads the current state of every light and keeps the
// characteristics updated on platform state changes.
func (b *Bridge) Sync(ctx context.Context) error {
	for _, id := range b.order {
		bl := b.bulbs[id]
		st, err := b.api.GetState(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get state of %s: %w", id, err)
		}
		bl.update(st)

		sub, err := b.api.ListenState(id, func(_ context.Context, change platform.StateChange) {
			bl.update(change.New)
		})
		if err != nil {
			return fmt.Errorf("failed to listen to %s: %w", id, err)
		}
		b.subs = append(b.subs, sub)
	}
	return nil
}

// Run serves the bridge until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	accessories := make([]*accessory.A, 0, len(b.order))
	for _, id := range b.order {
		accessories = append(accessories, b.bulbs[id].a)
	}

	server, err := hap.NewServer(hap.NewFsStore(b.cfg.StoragePath), b.bridge.A, accessories...)
	if err != nil {
		return fmt.Errorf("failed to create HomeKit server: %w", err)
	}
	server.Pin = b.cfg.Pin
	server.Addr = b.cfg.Addr

	log.Info().
		Str("name", b.cfg.Name).
		Str("addr", b.cfg.Addr).
		Int("accessories", len(accessories)).
		Msg("Starting HomeKit bridge")

	if err := server.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("HomeKit server failed: %w", err)
	}
	return nil
}

// Close stops following state changes.
func (b *Bridge) Close() {
	for _, sub := range b.subs {
		sub.Unsubscribe()
	}
	b.subs = nil
}
