package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/vlightd/internal/config"
	"github.com/dokzlo13/vlightd/internal/platform"
	"github.com/dokzlo13/vlightd/internal/platform/homeassistant"
	"github.com/dokzlo13/vlightd/internal/platform/memory"
)

// PlatformService owns the home-automation platform the virtual lights live on.
type PlatformService struct {
	API platform.Platform

	Memory        *memory.Platform      // set for kind memory
	HomeAssistant *homeassistant.Client // set for kind homeassistant
}

// NewPlatformService creates the configured platform. store persists memory
// platform entities and may be nil.
func NewPlatformService(cfg *config.Config, dispatcher *platform.Dispatcher, store memory.EntityStore) (*PlatformService, error) {
	switch cfg.Platform.Kind {
	case config.PlatformHomeAssistant:
		ha := cfg.Platform.HomeAssistant
		client := homeassistant.New(homeassistant.Config{
			URL:     ha.URL,
			Token:   ha.Token,
			Timeout: ha.Timeout.Duration(),
			Stream: homeassistant.StreamConfig{
				MinBackoff:    ha.Retry.MinRetryBackoff.Duration(),
				MaxBackoff:    ha.Retry.MaxRetryBackoff.Duration(),
				Multiplier:    ha.Retry.RetryMultiplier,
				MaxReconnects: ha.Retry.MaxReconnects,
			},
		}, dispatcher)
		log.Info().Str("url", ha.URL).Msg("Using Home Assistant platform")
		return &PlatformService{API: client, HomeAssistant: client}, nil

	case config.PlatformMemory:
		seeds := make([]memory.Entity, 0, len(cfg.Platform.Entities))
		for _, e := range cfg.Platform.Entities {
			seeds = append(seeds, memory.Entity{ID: e.ID, State: e.State, Attributes: e.Attributes})
		}
		mem, err := memory.New(dispatcher, store, seeds)
		if err != nil {
			return nil, err
		}
		log.Info().Int("entities", len(mem.Entities())).Msg("Using in-memory platform")
		return &PlatformService{API: mem, Memory: mem}, nil
	}

	return nil, fmt.Errorf("unknown platform kind %q", cfg.Platform.Kind)
}

// StartBackground starts the Home Assistant event subscription.
func (s *PlatformService) StartBackground(ctx context.Context, onFatalError func(error)) {
	if s.HomeAssistant == nil {
		return
	}

	go func() {
		if err := s.HomeAssistant.Run(ctx); err != nil {
			if errors.Is(err, homeassistant.ErrMaxReconnectsExceeded) || errors.Is(err, homeassistant.ErrAuthInvalid) {
				log.Error().Err(err).Msg("Home Assistant stream stopped, triggering shutdown")
				if onFatalError != nil {
					onFatalError(err)
				}
			} else {
				log.Error().Err(err).Msg("Home Assistant stream error")
			}
		}
	}()
}
