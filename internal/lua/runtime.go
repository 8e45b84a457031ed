// Package lua hosts the optional user script on a single worker goroutine.
package lua

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/vlightd/internal/input"
	"github.com/dokzlo13/vlightd/internal/lua/modules"
)

// ErrRuntimeClosed is returned when the Lua runtime is closed
var ErrRuntimeClosed = errors.New("lua runtime closed")

// Work represents work to be executed on the Lua VM.
// All Lua execution MUST go through this to ensure thread safety
type Work = func(ctx context.Context)

// Runtime manages the Lua VM with single-threaded execution
type Runtime struct {
	L *lua.LState

	inputModule *modules.InputModule

	// Work queue for thread-safe Lua execution
	workQueue chan Work

	// Closing this channel signals senders to stop
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// NewRuntime creates a new Lua runtime with the log, vlight, action and
// input modules preloaded.
func NewRuntime(deps RuntimeDeps) *Runtime {
	queueSize := deps.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}

	r := &Runtime{
		L:           lua.NewState(),
		inputModule: modules.NewInputModule(),
		workQueue:   make(chan Work, queueSize),
		closing:     make(chan struct{}),
		done:        make(chan struct{}),
	}

	r.L.PreloadModule("log", modules.NewLogModule().Loader)
	r.L.PreloadModule("vlight", modules.NewVLightModule(deps.Lights).Loader)
	r.L.PreloadModule("action", modules.NewActionModule(deps.Registry, deps.Invoker).Loader)
	r.L.PreloadModule("input", r.inputModule.Loader)

	return r
}

// Close signals the runtime to stop accepting new work. Run drains the
// queue and closes the Lua state.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		close(r.closing)
	})
}

// Done is closed once Run has returned.
func (r *Runtime) Done() <-chan struct{} {
	return r.done
}

// Do queues work to be executed on the Lua VM (thread-safe, non-blocking)
// Returns false if the runtime is closing, queue is full, or context is cancelled.
func (r *Runtime) Do(ctx context.Context, work func(ctx context.Context)) bool {
	select {
	case <-r.closing:
		log.Warn().Msg("Lua runtime closing, dropping work")
		return false
	case <-ctx.Done():
		log.Warn().Msg("Context cancelled, dropping Lua work")
		return false
	default:
	}

	select {
	case r.workQueue <- work:
		return true
	default:
		log.Warn().Msg("Lua work queue full, dropping work")
		return false
	}
}

// DoSync queues work and blocks until there's space.
// Returns error if the runtime is closing or context is cancelled.
func (r *Runtime) DoSync(ctx context.Context, work func(ctx context.Context)) error {
	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case r.workQueue <- work:
		return nil
	}
}

// DoSyncWithResult queues work and waits for its result.
func (r *Runtime) DoSyncWithResult(ctx context.Context, work func(context.Context) error) error {
	result := make(chan error, 1)
	if err := r.DoSync(ctx, func(c context.Context) {
		result <- work(c)
	}); err != nil {
		return err
	}

	select {
	case <-r.done:
		// Drained work still reports its result.
		select {
		case err := <-result:
			return err
		default:
			return ErrRuntimeClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	case err := <-result:
		return err
	}
}

// Run starts the Lua worker goroutine - this is the ONLY goroutine that touches Lua
// Exits when context is cancelled or runtime is closed.
func (r *Runtime) Run(ctx context.Context) {
	defer func() {
		r.L.Close()
		close(r.done)
	}()

	for {
		select {
		case <-ctx.Done():
			r.drainQueue(ctx)
			return
		case <-r.closing:
			r.drainQueue(ctx)
			return
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		}
	}
}

// drainQueue processes any remaining work in the queue before exiting
func (r *Runtime) drainQueue(ctx context.Context) {
	for {
		select {
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		default:
			return
		}
	}
}

// executeWork runs a single work item with panic recovery
func (r *Runtime) executeWork(ctx context.Context, work Work) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Msg("Lua work panicked - worker continuing")
		}
	}()
	// Modules read the Go context through L.Context()
	r.L.SetContext(ctx)
	work(ctx)
}

// LoadScript executes a Lua script. It must be called before Run.
func (r *Runtime) LoadScript(path string) error {
	log.Info().Str("path", path).Msg("Loading Lua script")

	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}

	log.Info().Msg("Lua script loaded successfully")
	return nil
}

// LoadString executes Lua source. It must be called before Run.
func (r *Runtime) LoadString(source string) error {
	if err := r.L.DoString(source); err != nil {
		return fmt.Errorf("failed to execute Lua source: %w", err)
	}
	return nil
}

// ButtonBindings returns button bindings registered by the script.
func (r *Runtime) ButtonBindings() []input.ButtonBinding {
	return r.inputModule.Buttons()
}

// RotaryBindings returns rotary bindings registered by the script.
func (r *Runtime) RotaryBindings() []input.RotaryBinding {
	return r.inputModule.Rotaries()
}
