package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewWithConfig(2, 10)

	var wg sync.WaitGroup
	var got atomic.Int32
	wg.Add(2)
	for i := 0; i < 2; i++ {
		bus.Subscribe(EventTypeButton, func(e Event) {
			defer wg.Done()
			if e.Data["resource_id"] == "btn-1" {
				got.Add(1)
			}
		})
	}
	bus.Subscribe(EventTypeRotary, func(Event) {
		t.Error("rotary handler must not receive button events")
	})

	bus.Publish(Event{Type: EventTypeButton, Data: map[string]any{"resource_id": "btn-1"}})

	wg.Wait()
	bus.Close(context.Background())
	assert.Equal(t, int32(2), got.Load())
}

func TestKeyedEventsKeepOrder(t *testing.T) {
	bus := NewWithConfig(4, 400)

	var mu sync.Mutex
	var seen []int
	var wg sync.WaitGroup
	wg.Add(50)
	bus.Subscribe(EventTypeStateChanged, func(e Event) {
		defer wg.Done()
		mu.Lock()
		seen = append(seen, e.Payload.(int))
		mu.Unlock()
	})

	for i := 0; i < 50; i++ {
		bus.Publish(Event{Type: EventTypeStateChanged, Key: "light.a", Payload: i})
	}
	wg.Wait()
	bus.Close(context.Background())

	require.Len(t, seen, 50)
	for i, v := range seen {
		assert.Equal(t, i, v)
	}
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	bus := NewWithConfig(1, 10)

	done := make(chan struct{})
	bus.Subscribe(EventTypeButton, func(e Event) {
		if e.Key == "boom" {
			panic("boom")
		}
		close(done)
	})

	bus.Publish(Event{Type: EventTypeButton, Key: "boom"})
	bus.Publish(Event{Type: EventTypeButton, Key: "ok"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died after panic")
	}
	bus.Close(context.Background())
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	bus := NewWithConfig(1, 10)
	bus.Subscribe(EventTypeButton, func(Event) {
		t.Error("handler called after close")
	})

	bus.Close(context.Background())
	bus.Close(context.Background())

	assert.NotPanics(t, func() {
		bus.Publish(Event{Type: EventTypeButton})
	})
}

// busyBus returns a bus whose single worker is parked in a handler and
// whose queue is full, plus the function that releases the worker.
func busyBus(t *testing.T, wait time.Duration) (*Bus, *atomic.Int32, func()) {
	t.Helper()
	bus := NewWithConfig(1, 1)
	bus.stateWait = wait

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var handled atomic.Int32
	handler := func(Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		handled.Add(1)
	}
	bus.Subscribe(EventTypeButton, handler)
	bus.Subscribe(EventTypeStateChanged, handler)

	bus.Publish(Event{Type: EventTypeButton, Key: "k"})
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("worker did not start")
	}
	bus.Publish(Event{Type: EventTypeButton, Key: "k"})
	require.Zero(t, bus.Dropped())

	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	t.Cleanup(func() {
		unblock()
		bus.Close(context.Background())
	})
	return bus, &handled, unblock
}

func TestFullQueueDropsInputEvents(t *testing.T) {
	bus, _, _ := busyBus(t, time.Second)

	start := time.Now()
	bus.Publish(Event{Type: EventTypeButton, Key: "k"})
	assert.Less(t, time.Since(start), 500*time.Millisecond, "input events must not wait")
	assert.Equal(t, uint64(1), bus.Dropped())
}

func TestFullQueueStateChangeWaitsForRoom(t *testing.T) {
	bus, handled, unblock := busyBus(t, time.Second)

	time.AfterFunc(20*time.Millisecond, unblock)
	bus.Publish(Event{Type: EventTypeStateChanged, Key: "k"})
	assert.Zero(t, bus.Dropped())

	assert.Eventually(t, func() bool { return handled.Load() == 3 }, time.Second, 5*time.Millisecond)
}

func TestFullQueueStateChangeDroppedAfterWait(t *testing.T) {
	bus, _, _ := busyBus(t, 10*time.Millisecond)

	start := time.Now()
	bus.Publish(Event{Type: EventTypeStateChanged, Key: "k"})
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Equal(t, uint64(1), bus.Dropped())
}
