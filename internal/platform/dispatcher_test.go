package platform

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/vlightd/internal/eventbus"
)

func TestDispatcher_RoutesByEntity(t *testing.T) {
	bus := eventbus.NewWithConfig(2, 10)
	defer bus.Close(context.Background())
	d := NewDispatcher(context.Background(), bus)

	got := make(chan StateChange, 4)
	d.Listen("light.a", func(_ context.Context, c StateChange) { got <- c })
	d.Listen("light.b", func(context.Context, StateChange) {
		t.Error("light.b listener must not receive light.a changes")
	})

	d.Publish(StateChange{EntityID: "light.a", New: &State{EntityID: "light.a", State: "on"}})

	select {
	case c := <-got:
		require.NotNil(t, c.New)
		assert.Equal(t, "on", c.New.State)
	case <-time.After(time.Second):
		t.Fatal("change not delivered")
	}
}

func TestDispatcher_Unsubscribe(t *testing.T) {
	bus := eventbus.NewWithConfig(1, 10)
	d := NewDispatcher(context.Background(), bus)

	called := make(chan struct{}, 1)
	sub := d.Listen("light.a", func(context.Context, StateChange) { called <- struct{}{} })
	sub.Unsubscribe()
	sub.Unsubscribe()

	d.Publish(StateChange{EntityID: "light.a"})
	bus.Close(context.Background())

	assert.Empty(t, called)
}
