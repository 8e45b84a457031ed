package eventbus

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// EventType represents the type of event
type EventType string

const (
	EventTypeStateChanged EventType = "state_changed"
	EventTypeButton       EventType = "button"
	EventTypeRotary       EventType = "rotary"
)

// Default configuration
const (
	DefaultWorkerCount = 4
	DefaultQueueSize   = 100

	// DefaultStateWait bounds how long a state change waits for a full queue.
	DefaultStateWait = 100 * time.Millisecond
)

// Event represents an event in the system.
// Events sharing a non-empty Key are handled in publish order by the same worker.
type Event struct {
	Type    EventType
	Key     string
	Data    map[string]any
	Payload any
}

// Handler is a function that handles events
type Handler func(Event)

// work represents a unit of work for the worker pool
type work struct {
	event   Event
	handler Handler
}

// Bus provides event routing with a bounded worker pool
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler

	// One queue per worker so keyed events stay ordered.
	queues []chan work
	next   atomic.Uint64
	wg     sync.WaitGroup

	stateWait time.Duration
	dropped   atomic.Uint64

	// Guarded by mu: publishers hold the read lock while sending.
	closed bool
}

// New creates a new event bus with default settings
func New() *Bus {
	return NewWithConfig(DefaultWorkerCount, DefaultQueueSize)
}

// NewWithConfig creates a new event bus with custom worker count and queue size
func NewWithConfig(workerCount, queueSize int) *Bus {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	b := &Bus{
		handlers:  make(map[EventType][]Handler),
		queues:    make([]chan work, workerCount),
		stateWait: DefaultStateWait,
	}

	perWorker := queueSize / workerCount
	if perWorker < 1 {
		perWorker = 1
	}
	for i := range b.queues {
		b.queues[i] = make(chan work, perWorker)
		b.wg.Add(1)
		go b.worker(i, b.queues[i])
	}

	log.Debug().Int("workers", workerCount).Int("queue_size", queueSize).Msg("Event bus worker pool started")
	return b
}

// worker processes events from its work queue
func (b *Bus) worker(id int, queue <-chan work) {
	defer b.wg.Done()

	for w := range queue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("event_type", string(w.event.Type)).
						Int("worker", id).
						Msg("Event handler panicked")
				}
			}()
			w.handler(w.event)
		}()
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

func (b *Bus) queueFor(key string) chan work {
	if key == "" {
		return b.queues[b.next.Add(1)%uint64(len(b.queues))]
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return b.queues[h.Sum32()%uint32(len(b.queues))]
}

// Publish sends an event to all subscribed handlers.
// Input events are dropped at once when the work queue is full. State
// changes wait up to DefaultStateWait for room before being dropped.
// Events published after Close are dropped.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		log.Warn().Str("event_type", string(event.Type)).Msg("Event bus closed, dropping event")
		return
	}

	handlers := b.handlers[event.Type]
	if len(handlers) == 0 {
		return
	}

	queue := b.queueFor(event.Key)
	for _, handler := range handlers {
		w := work{event: event, handler: handler}
		select {
		case queue <- w:
			continue
		default:
		}

		if event.Type == EventTypeStateChanged && b.enqueueWithin(queue, w, b.stateWait) {
			continue
		}

		b.dropped.Add(1)
		entry := log.Warn()
		if event.Type == EventTypeStateChanged {
			entry = log.Error()
		}
		entry.
			Str("event_type", string(event.Type)).
			Str("key", event.Key).
			Uint64("dropped_total", b.dropped.Load()).
			Msg("Event bus queue full, dropping event")
	}
}

func (b *Bus) enqueueWithin(queue chan work, w work, wait time.Duration) bool {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case queue <- w:
		return true
	case <-timer.C:
		return false
	}
}

// Dropped returns how many deliveries were lost to full queues.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close shuts down the worker pool gracefully.
// Queued events are still handled unless ctx expires first.
func (b *Bus) Close(ctx context.Context) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, q := range b.queues {
		close(q)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Msg("Event bus workers stopped gracefully")
	case <-ctx.Done():
		log.Warn().Msg("Event bus shutdown timed out, some events may be lost")
	}
}

// Clear removes all handlers
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers = make(map[EventType][]Handler)
}
