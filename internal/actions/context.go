// Package actions provides the action registry and invocation system.
package actions

import (
	"context"
	"fmt"

	"github.com/dokzlo13/vlightd/internal/vlight"
)

// Lights resolves virtual lights by entity ID.
type Lights interface {
	Light(id string) (*vlight.VirtualLight, bool)
}

// Context is the capability interface provided to actions
// It exposes stable methods, not raw pointers
type Context struct {
	ctx       context.Context // Go context for cancellation/timeout
	lights    Lights
	runAction func(name string, args map[string]any) error
}

// NewContext creates a new action Context
func NewContext(
	ctx context.Context,
	lights Lights,
	runAction func(name string, args map[string]any) error,
) *Context {
	return &Context{
		ctx:       ctx,
		lights:    lights,
		runAction: runAction,
	}
}

// Ctx returns the Go context for cancellation
func (c *Context) Ctx() context.Context {
	return c.ctx
}

// Light returns the virtual light with the given entity ID.
func (c *Context) Light(id string) (*vlight.VirtualLight, error) {
	if c.lights != nil {
		if l, ok := c.lights.Light(id); ok {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrLightNotFound, id)
}

// RunAction runs another action by name (for composition)
func (c *Context) RunAction(name string, args map[string]any) error {
	if c.runAction != nil {
		return c.runAction(name, args)
	}
	return nil
}
