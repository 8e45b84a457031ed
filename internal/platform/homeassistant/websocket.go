package homeassistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/vlightd/internal/platform"
)

// ErrMaxReconnectsExceeded is returned when the maximum number of reconnect attempts is exceeded.
var ErrMaxReconnectsExceeded = errors.New("max reconnects exceeded")

// ErrAuthInvalid is returned when Home Assistant rejects the access token.
var ErrAuthInvalid = errors.New("home assistant rejected access token")

// StreamConfig contains configuration for WebSocket reconnection.
type StreamConfig struct {
	MinBackoff    time.Duration // Minimum backoff between reconnects
	MaxBackoff    time.Duration // Maximum backoff between reconnects
	Multiplier    float64       // Backoff multiplier
	MaxReconnects int           // Max reconnect attempts, 0 = infinite
}

// DefaultStreamConfig returns sensible defaults for stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		MinBackoff:    1 * time.Second,
		MaxBackoff:    2 * time.Minute,
		Multiplier:    2.0,
		MaxReconnects: 0, // infinite
	}
}

const subscriptionID = 1

type wsMessage struct {
	ID          int      `json:"id,omitempty"`
	Type        string   `json:"type"`
	AccessToken string   `json:"access_token,omitempty"`
	EventType   string   `json:"event_type,omitempty"`
	Success     *bool    `json:"success,omitempty"`
	Message     string   `json:"message,omitempty"`
	Event       *wsEvent `json:"event,omitempty"`
	Error       *wsError `json:"error,omitempty"`
}

type wsEvent struct {
	EventType string           `json:"event_type"`
	Data      stateChangedData `json:"data"`
}

type stateChangedData struct {
	EntityID string          `json:"entity_id"`
	OldState *platform.State `json:"old_state"`
	NewState *platform.State `json:"new_state"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Run listens for state_changed events with automatic reconnection.
// Returns ErrMaxReconnectsExceeded if max reconnects is exceeded, and
// ErrAuthInvalid without retrying when the token is rejected.
func (c *Client) Run(ctx context.Context) error {
	retryCount := 0
	currentBackoff := c.cfg.Stream.MinBackoff

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		connected, err := c.connect(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrAuthInvalid) {
			return err
		}
		if connected {
			// Reset retry count and backoff after a successful session
			retryCount = 0
			currentBackoff = c.cfg.Stream.MinBackoff
		}

		retryCount++
		if c.cfg.Stream.MaxReconnects > 0 && retryCount > c.cfg.Stream.MaxReconnects {
			log.Error().
				Int("max_reconnects", c.cfg.Stream.MaxReconnects).
				Msg("Home Assistant websocket: max reconnects exceeded, terminating")
			return ErrMaxReconnectsExceeded
		}

		log.Warn().
			Err(err).
			Dur("backoff", currentBackoff).
			Int("retry", retryCount).
			Int("max_reconnects", c.cfg.Stream.MaxReconnects).
			Msg("Home Assistant websocket disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(currentBackoff):
		}

		nextBackoff := time.Duration(float64(currentBackoff) * c.cfg.Stream.Multiplier)
		if nextBackoff > c.cfg.Stream.MaxBackoff {
			nextBackoff = c.cfg.Stream.MaxBackoff
		}
		currentBackoff = nextBackoff
	}
}

// connect runs one session. connected is true once the subscription was
// confirmed.
func (c *Client) connect(ctx context.Context) (connected bool, err error) {
	wsURL, err := c.websocketURL()
	if err != nil {
		return false, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := c.authenticate(conn); err != nil {
		return false, err
	}

	if err := conn.WriteJSON(wsMessage{
		ID:        subscriptionID,
		Type:      "subscribe_events",
		EventType: "state_changed",
	}); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return connected, fmt.Errorf("read: %w", err)
		}

		switch msg.Type {
		case "result":
			if msg.ID != subscriptionID {
				continue
			}
			if msg.Success == nil || !*msg.Success {
				return false, fmt.Errorf("subscribe_events failed: %s", errorMessage(msg))
			}
			connected = true
			log.Info().Msg("Connected to Home Assistant websocket")

		case "event":
			if msg.Event == nil || msg.Event.EventType != "state_changed" {
				continue
			}
			c.handleStateChanged(msg.Event.Data)
		}
	}
}

func (c *Client) authenticate(conn *websocket.Conn) error {
	var hello wsMessage
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read auth_required: %w", err)
	}
	if hello.Type != "auth_required" {
		return fmt.Errorf("unexpected message %q, want auth_required", hello.Type)
	}

	if err := conn.WriteJSON(wsMessage{Type: "auth", AccessToken: c.cfg.Token}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	var reply wsMessage
	if err := conn.ReadJSON(&reply); err != nil {
		return fmt.Errorf("read auth reply: %w", err)
	}
	switch reply.Type {
	case "auth_ok":
		return nil
	case "auth_invalid":
		return fmt.Errorf("%w: %s", ErrAuthInvalid, reply.Message)
	default:
		return fmt.Errorf("unexpected message %q, want auth_ok", reply.Type)
	}
}

func (c *Client) handleStateChanged(data stateChangedData) {
	if !c.dispatcher.Watching(data.EntityID) {
		return
	}
	if data.NewState != nil && data.NewState.Attributes == nil {
		data.NewState.Attributes = make(platform.Attributes)
	}

	log.Trace().Str("entity_id", data.EntityID).Msg("Home Assistant state_changed")

	c.dispatcher.Publish(platform.StateChange{
		EntityID: data.EntityID,
		Old:      data.OldState,
		New:      data.NewState,
	})
}

func errorMessage(msg wsMessage) string {
	if msg.Error != nil {
		return msg.Error.Code + ": " + msg.Error.Message
	}
	return "unknown error"
}
