// Package hue listens to the Hue bridge event stream and publishes input events.
package hue

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/vlightd/internal/eventbus"
)

// ErrMaxReconnectsExceeded is returned when the maximum number of reconnect attempts is exceeded.
var ErrMaxReconnectsExceeded = errors.New("max reconnects exceeded")

// EventStreamConfig contains configuration for event stream reconnection.
type EventStreamConfig struct {
	MinBackoff    time.Duration // Minimum backoff between reconnects
	MaxBackoff    time.Duration // Maximum backoff between reconnects
	Multiplier    float64       // Backoff multiplier
	MaxReconnects int           // Max reconnect attempts, 0 = infinite
}

// DefaultEventStreamConfig returns sensible defaults for event stream configuration.
func DefaultEventStreamConfig() EventStreamConfig {
	return EventStreamConfig{
		MinBackoff:    1 * time.Second,
		MaxBackoff:    2 * time.Minute,
		Multiplier:    2.0,
		MaxReconnects: 0, // infinite
	}
}

// EventStream listens to the Hue event stream (SSE)
type EventStream struct {
	address    string
	token      string
	httpClient *http.Client
	config     EventStreamConfig
}

// NewEventStream creates a new event stream listener. The address may carry
// a scheme; https is assumed otherwise.
func NewEventStream(address, token string, config EventStreamConfig) *EventStream {
	// Hue bridges use a self-signed certificate.
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}

	return &EventStream{
		address: address,
		token:   token,
		httpClient: &http.Client{
			Transport: transport,
			// No timeout for SSE - it's a long-lived connection
		},
		config: config,
	}
}

// Run starts listening to the event stream with automatic reconnection.
// Returns ErrMaxReconnectsExceeded if max reconnects is exceeded.
func (e *EventStream) Run(ctx context.Context, bus *eventbus.Bus) error {
	retryCount := 0
	currentBackoff := e.config.MinBackoff

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		connected, err := e.connect(ctx, bus)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			retryCount = 0
			currentBackoff = e.config.MinBackoff
		}
		if err == nil {
			err = errors.New("stream closed by bridge")
		}

		retryCount++
		if e.config.MaxReconnects > 0 && retryCount > e.config.MaxReconnects {
			log.Error().
				Int("max_reconnects", e.config.MaxReconnects).
				Msg("Event stream: max reconnects exceeded, terminating")
			return ErrMaxReconnectsExceeded
		}

		log.Warn().
			Err(err).
			Dur("backoff", currentBackoff).
			Int("retry", retryCount).
			Int("max_reconnects", e.config.MaxReconnects).
			Msg("Event stream disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(currentBackoff):
		}

		nextBackoff := time.Duration(float64(currentBackoff) * e.config.Multiplier)
		if nextBackoff > e.config.MaxBackoff {
			nextBackoff = e.config.MaxBackoff
		}
		currentBackoff = nextBackoff
	}
}

func (e *EventStream) url() string {
	base := e.address
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return strings.TrimSuffix(base, "/") + "/eventstream/clip/v2"
}

// connect reads the stream until it ends. connected reports whether the
// bridge accepted the request.
func (e *EventStream) connect(ctx context.Context, bus *eventbus.Bus) (connected bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url(), nil)
	if err != nil {
		return false, err
	}

	req.Header.Set("hue-application-key", e.token)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	log.Info().Msg("Connected to Hue event stream")

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var dataBuffer strings.Builder

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, ":") {
			log.Debug().Str("comment", line).Msg("Received event stream comment")
			continue
		}

		// Empty line marks end of event
		if line == "" {
			if dataBuffer.Len() > 0 {
				e.processEvent(dataBuffer.String(), bus)
				dataBuffer.Reset()
			}
			continue
		}

		if data, ok := strings.CutPrefix(line, "data:"); ok {
			dataBuffer.WriteString(strings.TrimPrefix(data, " "))
		}
	}

	return true, scanner.Err()
}

func (e *EventStream) processEvent(data string, bus *eventbus.Bus) {
	var messages []streamMessage
	if err := json.Unmarshal([]byte(data), &messages); err != nil {
		log.Warn().Err(err).Str("data", data).Msg("Failed to parse event")
		return
	}

	for _, msg := range messages {
		for _, item := range msg.Data {
			switch item.Type {
			case "button":
				e.handleButtonEvent(msg.ID, item, bus)
			case "relative_rotary":
				e.handleRotaryEvent(msg.ID, item, bus)
			default:
				log.Trace().
					Str("event_type", msg.Type).
					Str("item_type", item.Type).
					Str("id", item.ID).
					Msg("Unhandled event type")
			}
		}
	}
}

func (e *EventStream) handleButtonEvent(messageID string, item resourceData, bus *eventbus.Bus) {
	if item.Button == nil {
		return
	}

	action, updated := item.Button.LastEvent, ""
	if report := item.Button.ButtonReport; report != nil {
		action, updated = report.Event, report.Updated
	}
	if action == "" {
		return
	}

	log.Debug().
		Str("id", item.ID).
		Str("action", action).
		Msg("Button event")

	bus.Publish(eventbus.Event{
		Type: eventbus.EventTypeButton,
		Key:  item.ID,
		Data: map[string]any{
			"resource_id": item.ID,
			"action":      action,
			"event_id":    eventID(item.ID, updated, messageID),
		},
	})
}

func (e *EventStream) handleRotaryEvent(messageID string, item resourceData, bus *eventbus.Bus) {
	if item.RelativeRotary == nil || item.RelativeRotary.LastEvent == nil {
		return
	}
	last := item.RelativeRotary.LastEvent

	var updated string
	if report := item.RelativeRotary.RotaryReport; report != nil {
		updated = report.Updated
	}

	log.Debug().
		Str("id", item.ID).
		Str("action", last.Action).
		Str("direction", last.Rotation.Direction).
		Int("steps", last.Rotation.Steps).
		Msg("Rotary event")

	bus.Publish(eventbus.Event{
		Type: eventbus.EventTypeRotary,
		Key:  item.ID,
		Data: map[string]any{
			"resource_id": item.ID,
			"action":      last.Action, // "start" or "repeat"
			"direction":   last.Rotation.Direction,
			"steps":       last.Rotation.Steps,
			"duration":    last.Rotation.Duration,
			"event_id":    eventID(item.ID, updated, messageID),
		},
	})
}

// eventID identifies a report uniquely: the report timestamp when the
// firmware sends one, the stream message ID otherwise.
func eventID(resourceID, updated, messageID string) string {
	if updated == "" {
		updated = messageID
	}
	return resourceID + "-" + updated
}
