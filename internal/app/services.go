package app

import (
	"context"
	"fmt"
	"sync/atomic"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/vlightd/internal/actions"
	"github.com/dokzlo13/vlightd/internal/config"
	"github.com/dokzlo13/vlightd/internal/db"
	"github.com/dokzlo13/vlightd/internal/devices"
	"github.com/dokzlo13/vlightd/internal/eventbus"
	"github.com/dokzlo13/vlightd/internal/input"
	"github.com/dokzlo13/vlightd/internal/ledger"
	"github.com/dokzlo13/vlightd/internal/platform"
	"github.com/dokzlo13/vlightd/internal/storage"
	"github.com/dokzlo13/vlightd/internal/telemetry"
	"github.com/dokzlo13/vlightd/internal/vlight"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Lifetime of state change delivery, which outlives Start's context
	// until Close so in-flight mirroring finishes.
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool

	// Core infrastructure
	DB         *db.DB
	Store      *storage.Store
	Ledger     *ledger.Ledger
	Bus        *eventbus.Bus
	Dispatcher *platform.Dispatcher

	// Platform and physical lights
	Platform *PlatformService
	Hue      *HueService // nil without a bridge
	MQTT     mqtt.Client // nil without a broker
	Influx   influxdb2.Client
	Lights   *Lights

	// Action system
	Registry *actions.Registry
	Invoker  *actions.Invoker

	// High-level services
	Lua      *LuaService // nil without a script
	Input    *input.Router
	Frontend *FrontendService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		s.cancel()
		return nil, err
	}
	s.DB = database
	s.Store = storage.NewStore(database.DB)
	s.Ledger = ledger.New(database.DB)

	// State changes flow platform -> bus -> dispatcher -> virtual lights
	s.Bus = eventbus.NewWithConfig(cfg.EventBus.Workers, cfg.EventBus.QueueSize)
	s.Dispatcher = platform.NewDispatcher(s.ctx, s.Bus)

	s.Platform, err = NewPlatformService(cfg, s.Dispatcher, storage.NewTypedStore[platform.State](s.Store, storage.KindEntity))
	if err != nil {
		s.Close()
		return nil, err
	}

	if cfg.Hue.Enabled() {
		s.Hue = NewHueService(cfg)
	}

	if cfg.MQTT.Enabled() {
		s.MQTT, err = devices.ConnectMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Username, cfg.MQTT.Password, cfg.MQTT.ConnectTimeout.Duration())
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	recorder, err := s.recorder()
	if err != nil {
		s.Close()
		return nil, err
	}

	builder := &LightBuilder{
		API:      s.Platform.API,
		Hue:      s.Hue,
		MQTT:     s.MQTT,
		MQTTQoS:  cfg.MQTT.QoS,
		Memory:   storage.NewTypedStore[vlight.Memory](s.Store, storage.KindVirtualLight),
		Recorder: recorder,
		Timeout:  cfg.Hue.Timeout.Duration(),
	}
	s.Lights, err = builder.Build(s.ctx, cfg.Rooms)
	if err != nil {
		s.Close()
		return nil, err
	}

	// Initialize action registry
	s.Registry = actions.NewRegistry()
	if err := actions.RegisterBuiltins(s.Registry); err != nil {
		s.Close()
		return nil, err
	}

	// Nested actions run without a key so they are never deduplicated on their own
	ctxFactory := func(ctx context.Context) *actions.Context {
		return actions.NewContext(ctx, s.Lights, func(name string, args map[string]any) error {
			return s.Invoker.Invoke(ctx, name, args, "")
		})
	}
	s.Invoker = actions.NewInvoker(s.Registry, s.Ledger, ctxFactory)

	var run Runner
	if cfg.Script != "" {
		s.Lua = NewLuaService(cfg, s.Registry, s.Invoker, s.Lights)
		run = s.Lua.Run
	}

	s.Frontend = NewFrontendService(cfg, s.Platform.API, s.Lights, s.Invoker, run, s.ready.Load)

	return s, nil
}

// recorder collects the sinks virtual light events are written to.
func (s *Services) recorder() (vlight.Recorder, error) {
	recorders := vlight.MultiRecorder{ledger.NewLightRecorder(s.Ledger)}

	if s.cfg.Influx.Enabled {
		influxCfg := telemetry.Config{
			URL:     s.cfg.Influx.URL,
			Token:   s.cfg.Influx.Token,
			Org:     s.cfg.Influx.Org,
			Bucket:  s.cfg.Influx.Bucket,
			Timeout: s.cfg.Influx.Timeout.Duration(),
		}
		ctx, cancel := context.WithTimeout(s.ctx, influxCfg.Timeout)
		client, err := telemetry.Connect(ctx, influxCfg)
		cancel()
		if err != nil {
			return nil, err
		}
		s.Influx = client
		recorders = append(recorders, telemetry.NewRecorder(client.WriteAPIBlocking(influxCfg.Org, influxCfg.Bucket), influxCfg.Timeout))
		log.Info().Str("url", influxCfg.URL).Str("bucket", influxCfg.Bucket).Msg("Writing light events to InfluxDB")
	}

	return recorders, nil
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a fatal error occurs (e.g., max reconnects exceeded).
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	buttons, rotaries := inputBindings(s.cfg.Inputs)

	var exec input.Executor
	if s.Lua != nil {
		// Load Lua script before starting worker
		if err := s.Lua.LoadScript(); err != nil {
			return err
		}
		buttons = append(buttons, s.Lua.ButtonBindings()...)
		rotaries = append(rotaries, s.Lua.RotaryBindings()...)
		exec = s.Lua
		s.Lua.Start(ctx)
	}

	for _, b := range buttons {
		if !s.Invoker.HasAction(b.Action) {
			return fmt.Errorf("button binding refers to unknown action %q", b.Action)
		}
	}
	for _, r := range rotaries {
		if !s.Invoker.HasAction(r.Action) {
			return fmt.Errorf("rotary binding refers to unknown action %q", r.Action)
		}
	}

	s.Input = input.NewRouter(s.Invoker, exec, buttons, rotaries)
	s.Input.Subscribe(ctx, s.Bus)

	// Start all background services
	s.Platform.StartBackground(ctx, onFatalError)
	if s.Hue != nil {
		s.Hue.StartBackground(ctx, s.Bus, onFatalError)
	}
	go s.Ledger.RunRetention(ctx, s.cfg.Ledger.Retention(), s.cfg.Ledger.CleanupInterval.Duration())

	if err := s.Frontend.Start(ctx); err != nil {
		return err
	}

	s.ready.Store(true)
	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.ready.Store(false)
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Frontend != nil {
		s.Frontend.Close()
	}
	if s.Input != nil {
		s.Input.Close()
	}
	if s.Lua != nil {
		s.Lua.Close()
	}
	if s.Lights != nil {
		s.Lights.Close()
	}
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.MQTT != nil {
		s.MQTT.Disconnect(250)
	}
	if s.Influx != nil {
		s.Influx.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
