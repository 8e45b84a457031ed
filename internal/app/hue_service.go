package app

import (
	"context"
	"errors"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/vlightd/internal/config"
	"github.com/dokzlo13/vlightd/internal/devices"
	"github.com/dokzlo13/vlightd/internal/eventbus"
	"github.com/dokzlo13/vlightd/internal/hue"
)

// HueService wraps the Hue bridge: the v1 client that drives lights and the
// event stream that delivers button and dial events.
type HueService struct {
	cfg *config.Config

	Bridge      *huego.Bridge
	Limiter     *rate.Limiter
	EventStream *hue.EventStream // nil when the event stream is disabled
}

// NewHueService creates a new HueService. Nothing is contacted until a light
// is driven or StartBackground runs.
func NewHueService(cfg *config.Config) *HueService {
	s := &HueService{
		cfg:     cfg,
		Bridge:  huego.New(cfg.Hue.Bridge, cfg.Hue.Token),
		Limiter: devices.NewHueLimiter(cfg.Hue.RateLimitRPS),
	}

	if cfg.Hue.EventStreamEnabled() {
		eventStreamConfig := hue.EventStreamConfig{
			MinBackoff:    cfg.Hue.Retry.MinRetryBackoff.Duration(),
			MaxBackoff:    cfg.Hue.Retry.MaxRetryBackoff.Duration(),
			Multiplier:    cfg.Hue.Retry.RetryMultiplier,
			MaxReconnects: cfg.Hue.Retry.MaxReconnects,
		}
		s.EventStream = hue.NewEventStream(cfg.Hue.Bridge, cfg.Hue.Token, eventStreamConfig)
	}

	return s
}

// Driver returns a rate-limited driver for a v1 light number.
func (s *HueService) Driver(lightID int) *devices.HueDriver {
	return devices.NewHueDriver(s.Bridge, lightID, s.Limiter)
}

// StartBackground starts the event stream listener.
// The optional onFatalError callback is called when a fatal error occurs (e.g., max reconnects exceeded).
func (s *HueService) StartBackground(ctx context.Context, bus *eventbus.Bus, onFatalError func(error)) {
	if s.EventStream == nil {
		return
	}

	go func() {
		if err := s.EventStream.Run(ctx, bus); err != nil {
			if errors.Is(err, hue.ErrMaxReconnectsExceeded) {
				log.Error().Msg("Event stream: max reconnects exceeded, triggering shutdown")
				if onFatalError != nil {
					onFatalError(err)
				}
			} else {
				log.Error().Err(err).Msg("Event stream error")
			}
		}
	}()
}
