package platform

import (
	"context"
	"sync"

	"github.com/dokzlo13/vlightd/internal/eventbus"
)

// Dispatcher routes state changes published on the event bus to the
// listeners of each entity. Changes of one entity are delivered in order.
type Dispatcher struct {
	ctx context.Context
	bus *eventbus.Bus

	mu       sync.RWMutex
	nextID   uint64
	handlers map[string]map[uint64]StateHandler
}

// NewDispatcher subscribes to state_changed events on bus. Handlers are
// called with ctx.
func NewDispatcher(ctx context.Context, bus *eventbus.Bus) *Dispatcher {
	d := &Dispatcher{
		ctx:      ctx,
		bus:      bus,
		handlers: make(map[string]map[uint64]StateHandler),
	}
	bus.Subscribe(eventbus.EventTypeStateChanged, d.handle)
	return d
}

// Listen registers handler for changes of entityID.
func (d *Dispatcher) Listen(entityID string, handler StateHandler) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	if d.handlers[entityID] == nil {
		d.handlers[entityID] = make(map[uint64]StateHandler)
	}
	d.handlers[entityID][id] = handler

	return &dispatcherSubscription{d: d, entityID: entityID, id: id}
}

// Watching reports whether entityID has listeners.
func (d *Dispatcher) Watching(entityID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[entityID]) > 0
}

// Publish queues change for delivery to the entity's listeners.
func (d *Dispatcher) Publish(change StateChange) {
	d.bus.Publish(eventbus.Event{
		Type:    eventbus.EventTypeStateChanged,
		Key:     change.EntityID,
		Payload: change,
	})
}

func (d *Dispatcher) handle(e eventbus.Event) {
	change, ok := e.Payload.(StateChange)
	if !ok {
		return
	}

	d.mu.RLock()
	handlers := make([]StateHandler, 0, len(d.handlers[change.EntityID]))
	for _, h := range d.handlers[change.EntityID] {
		handlers = append(handlers, h)
	}
	d.mu.RUnlock()

	for _, h := range handlers {
		h(d.ctx, change)
	}
}

type dispatcherSubscription struct {
	d        *Dispatcher
	entityID string
	id       uint64
	once     sync.Once
}

func (s *dispatcherSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.d.mu.Lock()
		defer s.d.mu.Unlock()
		delete(s.d.handlers[s.entityID], s.id)
		if len(s.d.handlers[s.entityID]) == 0 {
			delete(s.d.handlers, s.entityID)
		}
	})
}
