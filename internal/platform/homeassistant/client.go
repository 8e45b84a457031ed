// Package homeassistant implements the platform API against a Home Assistant
// instance: REST for state reads and service calls, the WebSocket API for
// state_changed events.
package homeassistant

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/vlightd/internal/platform"
)

// Config configures the Home Assistant connection.
type Config struct {
	URL     string // e.g. http://homeassistant.local:8123
	Token   string // long-lived access token
	Timeout time.Duration
	Stream  StreamConfig
}

// Client implements platform.Platform.
type Client struct {
	cfg        Config
	rest       *resty.Client
	dispatcher *platform.Dispatcher
}

// New creates a client. State changes are delivered through dispatcher once
// Run is started.
func New(cfg Config, dispatcher *platform.Dispatcher) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Stream == (StreamConfig{}) {
		cfg.Stream = DefaultStreamConfig()
	}

	rest := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetAuthToken(cfg.Token).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{cfg: cfg, rest: rest, dispatcher: dispatcher}
}

// GetState implements platform.Platform.
func (c *Client) GetState(ctx context.Context, entityID string) (*platform.State, error) {
	var st platform.State
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&st).
		Get("/api/states/" + url.PathEscape(entityID))
	if err != nil {
		return nil, fmt.Errorf("failed to get state of %s: %w", entityID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", entityID, platform.ErrEntityNotFound)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to get state of %s: status %d: %s", entityID, resp.StatusCode(), resp.String())
	}
	if st.Attributes == nil {
		st.Attributes = make(platform.Attributes)
	}
	return &st, nil
}

// ListenState implements platform.Platform.
func (c *Client) ListenState(entityID string, handler platform.StateHandler) (platform.Subscription, error) {
	return c.dispatcher.Listen(entityID, handler), nil
}

// TurnOn implements platform.Platform.
func (c *Client) TurnOn(ctx context.Context, entityID string, params platform.TurnOnParams) error {
	return c.callService(ctx, entityID, "turn_on", params.ServiceData(entityID))
}

// TurnOff implements platform.Platform.
func (c *Client) TurnOff(ctx context.Context, entityID string) error {
	return c.callService(ctx, entityID, "turn_off", map[string]any{"entity_id": entityID})
}

func (c *Client) callService(ctx context.Context, entityID, service string, data map[string]any) error {
	domain := platform.Domain(entityID)
	if domain == "" {
		return fmt.Errorf("invalid entity id %q", entityID)
	}

	log.Debug().
		Str("domain", domain).
		Str("service", service).
		Interface("data", data).
		Msg("Calling Home Assistant service")

	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(data).
		Post(fmt.Sprintf("/api/services/%s/%s", domain, service))
	if err != nil {
		return fmt.Errorf("failed to call %s.%s for %s: %w", domain, service, entityID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("failed to call %s.%s for %s: status %d: %s", domain, service, entityID, resp.StatusCode(), resp.String())
	}
	return nil
}

func (c *Client) websocketURL() (string, error) {
	u, err := url.Parse(strings.TrimRight(c.cfg.URL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", c.cfg.URL, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/api/websocket"
	return u.String(), nil
}
