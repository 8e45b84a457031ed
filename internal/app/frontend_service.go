package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/vlightd/internal/api"
	"github.com/dokzlo13/vlightd/internal/config"
	"github.com/dokzlo13/vlightd/internal/homekit"
	"github.com/dokzlo13/vlightd/internal/platform"
)

// Runner executes a light command, serialized with Lua when a script is loaded.
type Runner func(ctx context.Context, fn func(ctx context.Context) error) error

// FrontendService serves the HTTP API and the HomeKit bridge.
type FrontendService struct {
	cfg *config.Config

	API     *api.Server     // nil when disabled
	HomeKit *homekit.Bridge // nil when disabled
}

// NewFrontendService creates the enabled frontends.
func NewFrontendService(cfg *config.Config, platformAPI platform.Platform, lights *Lights, invoker api.Invoker, run Runner, ready func() bool) *FrontendService {
	s := &FrontendService{cfg: cfg}

	if cfg.API.Enabled {
		s.API = api.NewServer(api.Config{
			Host:           cfg.API.Host,
			Port:           cfg.API.Port,
			AllowedOrigins: cfg.API.AllowedOrigins,
		}, lights, invoker, api.Runner(run), ready)
	}

	if cfg.HomeKit.Enabled {
		s.HomeKit = homekit.NewBridge(homekit.Config{
			Name:        cfg.HomeKit.Name,
			Pin:         cfg.HomeKit.Pin,
			Addr:        cfg.HomeKit.Addr,
			StoragePath: cfg.HomeKit.StoragePath,
		}, platformAPI, lights, homekit.Runner(run))
	}

	return s
}

// Start syncs HomeKit accessories and starts serving in the background.
func (s *FrontendService) Start(ctx context.Context) error {
	if s.HomeKit != nil {
		if err := s.HomeKit.Sync(ctx); err != nil {
			return err
		}
		go func() {
			if err := s.HomeKit.Run(ctx); err != nil {
				log.Error().Err(err).Msg("HomeKit bridge error")
			}
		}()
	}

	if s.API != nil {
		go func() {
			if err := s.API.Run(ctx, s.cfg.GetShutdownTimeout()); err != nil {
				log.Error().Err(err).Msg("API server error")
			}
		}()
	}

	return nil
}

// Close releases resources.
func (s *FrontendService) Close() {
	if s.HomeKit != nil {
		s.HomeKit.Close()
	}
}
