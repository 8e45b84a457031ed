package vlight

import (
	"context"
	"errors"
	"sync"

	"github.com/dokzlo13/vlightd/internal/platform"
)

type turnOnCall struct {
	entityID string
	params   platform.TurnOnParams
}

type fakePlatform struct {
	mu       sync.Mutex
	states   map[string]*platform.State
	handlers map[string][]platform.StateHandler
	turnOns  []turnOnCall
	turnOffs []string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		states:   make(map[string]*platform.State),
		handlers: make(map[string][]platform.StateHandler),
	}
}

func (p *fakePlatform) setState(entityID, state string, attrs platform.Attributes) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[entityID] = &platform.State{EntityID: entityID, State: state, Attributes: attrs}
}

func (p *fakePlatform) GetState(_ context.Context, entityID string) (*platform.State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.states[entityID]
	if !ok {
		return nil, platform.ErrEntityNotFound
	}
	return st.Clone(), nil
}

type fakeSubscription struct {
	unsubscribed bool
}

func (s *fakeSubscription) Unsubscribe() { s.unsubscribed = true }

func (p *fakePlatform) ListenState(entityID string, handler platform.StateHandler) (platform.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[entityID] = append(p.handlers[entityID], handler)
	return &fakeSubscription{}, nil
}

func (p *fakePlatform) emit(ctx context.Context, change platform.StateChange) {
	p.mu.Lock()
	handlers := p.handlers[change.EntityID]
	p.mu.Unlock()
	for _, h := range handlers {
		h(ctx, change)
	}
}

func (p *fakePlatform) TurnOn(_ context.Context, entityID string, params platform.TurnOnParams) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turnOns = append(p.turnOns, turnOnCall{entityID: entityID, params: params})
	return nil
}

func (p *fakePlatform) TurnOff(_ context.Context, entityID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turnOffs = append(p.turnOffs, entityID)
	return nil
}

func (p *fakePlatform) lastTurnOn() turnOnCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.turnOns) == 0 {
		return turnOnCall{}
	}
	return p.turnOns[len(p.turnOns)-1]
}

// lightCall is one command received by a fake physical light.
type lightCall struct {
	method     string
	brightness int
	kelvin     int
	rgb        platform.RGB
}

type switchLight struct {
	id    string
	err   error
	calls []lightCall
}

func (l *switchLight) ID() string { return l.id }

func (l *switchLight) TurnOn(context.Context) error {
	l.calls = append(l.calls, lightCall{method: "on"})
	return l.err
}

func (l *switchLight) TurnOff(context.Context) error {
	l.calls = append(l.calls, lightCall{method: "off"})
	return l.err
}

type dimmableLight struct {
	*switchLight
}

func (l *dimmableLight) TurnOnWithBrightness(_ context.Context, brightness int) error {
	l.calls = append(l.calls, lightCall{method: "brightness", brightness: brightness})
	return l.err
}

type tempLight struct {
	*dimmableLight
}

func (l *tempLight) TurnOnWithBrightnessAndTempKelvin(_ context.Context, brightness, kelvin int) error {
	l.calls = append(l.calls, lightCall{method: "temp", brightness: brightness, kelvin: kelvin})
	return l.err
}

type rgbLight struct {
	*dimmableLight
}

func (l *rgbLight) TurnOnWithBrightnessAndRGB(_ context.Context, brightness int, rgb platform.RGB) error {
	l.calls = append(l.calls, lightCall{method: "rgb", brightness: brightness, rgb: rgb})
	return l.err
}

type fullLight struct {
	*tempLight
}

func (l *fullLight) TurnOnWithBrightnessAndRGB(_ context.Context, brightness int, rgb platform.RGB) error {
	l.calls = append(l.calls, lightCall{method: "rgb", brightness: brightness, rgb: rgb})
	return l.err
}

func newSwitch(id string) *switchLight { return &switchLight{id: id} }

func newDimmable(id string) *dimmableLight { return &dimmableLight{newSwitch(id)} }

func newTemp(id string) *tempLight { return &tempLight{newDimmable(id)} }

func newRGB(id string) *rgbLight { return &rgbLight{newDimmable(id)} }

func newFull(id string) *fullLight { return &fullLight{newTemp(id)} }

type memStore struct {
	values map[string]Memory
	sets   int
}

func (s *memStore) Get(id string) (Memory, int64, error) {
	m, ok := s.values[id]
	if !ok {
		return Memory{}, 0, nil
	}
	return m, 1, nil
}

func (s *memStore) Set(id string, value Memory) error {
	if s.values == nil {
		s.values = make(map[string]Memory)
	}
	s.values[id] = value
	s.sets++
	return nil
}

type sliceRecorder struct {
	events []Event
	err    error
}

func (r *sliceRecorder) Record(_ context.Context, event Event) error {
	r.events = append(r.events, event)
	return r.err
}

var errLightOffline = errors.New("light offline")
