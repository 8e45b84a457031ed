package lua

import (
	"github.com/dokzlo13/vlightd/internal/actions"
	"github.com/dokzlo13/vlightd/internal/lua/modules"
)

// RuntimeDeps groups all dependencies needed by Lua runtime.
type RuntimeDeps struct {
	Registry *actions.Registry
	Invoker  modules.Invoker
	Lights   modules.Lights
	// QueueSize bounds pending work; defaults to 100.
	QueueSize int
}
