package app

import (
	"context"

	"github.com/dokzlo13/vlightd/internal/actions"
	"github.com/dokzlo13/vlightd/internal/config"
	"github.com/dokzlo13/vlightd/internal/input"
	luart "github.com/dokzlo13/vlightd/internal/lua"
)

// LuaService wraps the Lua runtime and provides thread-safe execution.
type LuaService struct {
	cfg     *config.Config
	Runtime *luart.Runtime
	started bool
}

// NewLuaService creates a new LuaService.
func NewLuaService(cfg *config.Config, registry *actions.Registry, invoker *actions.Invoker, lights *Lights) *LuaService {
	runtime := luart.NewRuntime(luart.RuntimeDeps{
		Registry:  registry,
		Invoker:   invoker,
		Lights:    lights,
		QueueSize: cfg.EventBus.QueueSize,
	})

	return &LuaService{
		cfg:     cfg,
		Runtime: runtime,
	}
}

// LoadScript loads and executes the Lua script.
// Must be called before Start().
func (s *LuaService) LoadScript() error {
	return s.Runtime.LoadScript(s.cfg.Script)
}

// Start begins the Lua worker goroutine - the ONLY goroutine that touches Lua.
func (s *LuaService) Start(ctx context.Context) {
	s.started = true
	go s.Runtime.Run(ctx)
}

// Run executes fn on the Lua worker and waits for its result.
// Light commands from the API and HomeKit go through it so they never race
// script-defined actions.
func (s *LuaService) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.Runtime.DoSyncWithResult(ctx, fn)
}

// Do queues work to be executed on the Lua VM.
func (s *LuaService) Do(ctx context.Context, work func(ctx context.Context)) bool {
	return s.Runtime.Do(ctx, work)
}

// ButtonBindings returns the bindings registered through input.button().
func (s *LuaService) ButtonBindings() []input.ButtonBinding {
	return s.Runtime.ButtonBindings()
}

// RotaryBindings returns the bindings registered through input.rotary().
func (s *LuaService) RotaryBindings() []input.RotaryBinding {
	return s.Runtime.RotaryBindings()
}

// Close stops accepting work and waits for the worker to drain.
func (s *LuaService) Close() {
	if s.Runtime == nil {
		return
	}
	s.Runtime.Close()
	if s.started {
		<-s.Runtime.Done()
	}
}
