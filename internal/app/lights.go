package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/vlightd/internal/config"
	"github.com/dokzlo13/vlightd/internal/devices"
	"github.com/dokzlo13/vlightd/internal/platform"
	"github.com/dokzlo13/vlightd/internal/vlight"
)

// Lights is the registry of configured virtual lights, in configuration order.
type Lights struct {
	mu    sync.RWMutex
	byID  map[string]*vlight.VirtualLight
	order []string
	rooms []*vlight.Room
}

// NewLights creates an empty registry.
func NewLights() *Lights {
	return &Lights{byID: make(map[string]*vlight.VirtualLight)}
}

// Light returns the virtual light with entity ID id.
func (l *Lights) Light(id string) (*vlight.VirtualLight, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.byID[id]
	return v, ok
}

// IDs returns the entity IDs of all lights.
func (l *Lights) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Rooms returns the configured rooms.
func (l *Lights) Rooms() []*vlight.Room {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*vlight.Room(nil), l.rooms...)
}

func (l *Lights) add(room *vlight.Room, v *vlight.VirtualLight) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.byID[v.ID()]; exists {
		return fmt.Errorf("virtual light %q already registered", v.ID())
	}
	l.byID[v.ID()] = v
	l.order = append(l.order, v.ID())
	room.Add(v)
	return nil
}

// Close stops every light listening to state changes.
func (l *Lights) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range l.order {
		l.byID[id].Close()
	}
}

// LightBuilder turns room configuration into virtual lights.
type LightBuilder struct {
	API      platform.Platform
	Hue      *HueService // nil without a bridge
	MQTT     mqtt.Client // nil without a broker
	MQTTQoS  byte
	Memory   vlight.MemoryStore
	Recorder vlight.Recorder
	Timeout  time.Duration // bounds Hue capability lookups
}

// Build creates every configured room and light.
func (b *LightBuilder) Build(ctx context.Context, rooms []config.RoomConfig) (*Lights, error) {
	lights := NewLights()

	for _, rc := range rooms {
		room := vlight.NewRoom(rc.Name)
		lights.rooms = append(lights.rooms, room)

		for _, lc := range rc.Lights {
			targets := make([]vlight.Light, 0, len(lc.Targets))
			for _, tc := range lc.Targets {
				target, err := b.target(ctx, tc)
				if err != nil {
					lights.Close()
					return nil, fmt.Errorf("light %s: %w", lc.ID, err)
				}
				targets = append(targets, target)
			}

			opts := []vlight.Option{
				vlight.WithDefaultTempKelvin(lc.DefaultTempKelvin),
				vlight.WithLogger(room.Logger().With().Str("virtual_light", lc.ID).Logger()),
			}
			if b.Memory != nil {
				opts = append(opts, vlight.WithMemoryStore(b.Memory))
			}
			if b.Recorder != nil {
				opts = append(opts, vlight.WithRecorder(b.Recorder))
			}

			v, err := vlight.New(b.API, lc.ID, targets, opts...)
			if err != nil {
				lights.Close()
				return nil, err
			}
			if err := lights.add(room, v); err != nil {
				v.Close()
				lights.Close()
				return nil, err
			}

			log.Info().
				Str("room", rc.Name).
				Str("virtual_light", lc.ID).
				Int("targets", len(targets)).
				Msg("Virtual light ready")
		}
	}

	return lights, nil
}

func (b *LightBuilder) target(ctx context.Context, tc config.TargetConfig) (vlight.Light, error) {
	var caps devices.Capabilities
	if tc.Capabilities != nil {
		caps = devices.Capabilities{
			Brightness: tc.Capabilities.Brightness,
			ColorTemp:  tc.Capabilities.ColorTemp,
			RGB:        tc.Capabilities.RGB,
		}
	}

	switch tc.Driver {
	case config.DriverEntity:
		return devices.New(tc.ID, devices.NewEntityDriver(b.API, tc.Entity), caps), nil

	case config.DriverHue:
		if b.Hue == nil {
			return nil, fmt.Errorf("target %s: hue bridge is not configured", tc.ID)
		}
		driver := b.Hue.Driver(tc.HueLight)
		if tc.Capabilities == nil {
			lookupCtx, cancel := context.WithTimeout(ctx, b.Timeout)
			detected, err := driver.Capabilities(lookupCtx)
			cancel()
			if err != nil {
				return nil, fmt.Errorf("target %s: %w", tc.ID, err)
			}
			caps = detected
			log.Debug().
				Str("target", tc.ID).
				Int("hue_light", tc.HueLight).
				Bool("brightness", caps.Brightness).
				Bool("color_temp", caps.ColorTemp).
				Bool("rgb", caps.RGB).
				Msg("Detected Hue light capabilities")
		}
		return devices.New(tc.ID, driver, caps), nil

	case config.DriverMQTT:
		if b.MQTT == nil {
			return nil, fmt.Errorf("target %s: mqtt broker is not configured", tc.ID)
		}
		return devices.New(tc.ID, devices.NewMQTTDriver(b.MQTT, tc.Topic, b.MQTTQoS), caps), nil
	}

	return nil, fmt.Errorf("target %s: unknown driver %q", tc.ID, tc.Driver)
}
