package homeassistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/vlightd/internal/eventbus"
	"github.com/dokzlo13/vlightd/internal/platform"
)

const testToken = "secret-token"

type serviceCall struct {
	path string
	body map[string]any
	auth string
}

type fakeHA struct {
	t        *testing.T
	calls    chan serviceCall
	events   chan map[string]any
	rejected bool
}

func newFakeHA(t *testing.T) (*fakeHA, *httptest.Server) {
	h := &fakeHA{
		t:      t,
		calls:  make(chan serviceCall, 10),
		events: make(chan map[string]any, 10),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/states/{id}", h.handleState)
	mux.HandleFunc("POST /api/services/{domain}/{service}", h.handleService)
	mux.HandleFunc("/api/websocket", h.handleWebsocket)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return h, srv
}

func (h *fakeHA) handleState(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("id") != "light.kitchen" {
		http.Error(w, `{"message":"Entity not found."}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{
		"entity_id": "light.kitchen",
		"state": "on",
		"attributes": {"brightness": 180, "color_temp_kelvin": 2700, "rgb_color": [255, 167, 87]},
		"last_changed": "2024-01-01T10:00:00+00:00"
	}`))
}

func (h *fakeHA) handleService(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	json.NewDecoder(r.Body).Decode(&body)
	h.calls <- serviceCall{path: r.URL.Path, body: body, auth: r.Header.Get("Authorization")}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`[]`))
}

func (h *fakeHA) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.WriteJSON(map[string]any{"type": "auth_required"})

	var auth map[string]any
	if err := conn.ReadJSON(&auth); err != nil {
		return
	}
	if h.rejected || auth["access_token"] != testToken {
		conn.WriteJSON(map[string]any{"type": "auth_invalid", "message": "Invalid access token"})
		return
	}
	conn.WriteJSON(map[string]any{"type": "auth_ok"})

	var sub map[string]any
	if err := conn.ReadJSON(&sub); err != nil {
		return
	}
	conn.WriteJSON(map[string]any{"id": sub["id"], "type": "result", "success": true})

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-h.events:
			if err := conn.WriteJSON(map[string]any{"id": sub["id"], "type": "event", "event": ev}); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func newTestClient(t *testing.T, url string) (*Client, *platform.Dispatcher) {
	t.Helper()
	bus := eventbus.NewWithConfig(1, 10)
	t.Cleanup(func() { bus.Close(context.Background()) })
	d := platform.NewDispatcher(context.Background(), bus)

	return New(Config{
		URL:   url,
		Token: testToken,
		Stream: StreamConfig{
			MinBackoff:    10 * time.Millisecond,
			MaxBackoff:    20 * time.Millisecond,
			Multiplier:    2,
			MaxReconnects: 1,
		},
	}, d), d
}

func TestGetState(t *testing.T) {
	_, srv := newFakeHA(t)
	c, _ := newTestClient(t, srv.URL)

	st, err := c.GetState(context.Background(), "light.kitchen")
	require.NoError(t, err)
	assert.Equal(t, "on", st.State)
	assert.Equal(t, 180, *st.Attributes.IntPtr(platform.AttrBrightness))
	assert.Equal(t, 2700, *st.Attributes.IntPtr(platform.AttrColorTempKelvin))
	assert.Equal(t, platform.RGB{255, 167, 87}, *st.Attributes.RGBPtr(platform.AttrRGBColor))
}

func TestGetState_NotFound(t *testing.T) {
	_, srv := newFakeHA(t)
	c, _ := newTestClient(t, srv.URL)

	_, err := c.GetState(context.Background(), "light.missing")
	assert.ErrorIs(t, err, platform.ErrEntityNotFound)
}

func TestServiceCalls(t *testing.T) {
	h, srv := newFakeHA(t)
	c, _ := newTestClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, c.TurnOn(ctx, "light.kitchen", platform.TurnOnParams{
		Brightness: platform.IntPtr(128),
		RGBColor:   &platform.RGB{255, 0, 0},
	}))
	call := <-h.calls
	assert.Equal(t, "/api/services/light/turn_on", call.path)
	assert.Equal(t, "Bearer "+testToken, call.auth)
	assert.Equal(t, map[string]any{
		"entity_id":  "light.kitchen",
		"brightness": float64(128),
		"rgb_color":  []any{float64(255), float64(0), float64(0)},
	}, call.body)

	require.NoError(t, c.TurnOff(ctx, "switch.plug"))
	call = <-h.calls
	assert.Equal(t, "/api/services/switch/turn_off", call.path)
	assert.Equal(t, map[string]any{"entity_id": "switch.plug"}, call.body)
}

func TestServiceCall_InvalidEntity(t *testing.T) {
	_, srv := newFakeHA(t)
	c, _ := newTestClient(t, srv.URL)

	assert.Error(t, c.TurnOff(context.Background(), "nodomain"))
}

func TestRun_DeliversStateChanges(t *testing.T) {
	h, srv := newFakeHA(t)
	c, _ := newTestClient(t, srv.URL)

	changes := make(chan platform.StateChange, 1)
	_, err := c.ListenState("light.virtual", func(_ context.Context, change platform.StateChange) {
		changes <- change
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// Not watched: dropped before reaching the bus.
	h.events <- map[string]any{
		"event_type": "state_changed",
		"data": map[string]any{
			"entity_id": "light.other",
			"new_state": map[string]any{"entity_id": "light.other", "state": "on"},
		},
	}
	h.events <- map[string]any{
		"event_type": "state_changed",
		"data": map[string]any{
			"entity_id": "light.virtual",
			"old_state": map[string]any{"entity_id": "light.virtual", "state": "off", "attributes": map[string]any{}},
			"new_state": map[string]any{"entity_id": "light.virtual", "state": "on", "attributes": map[string]any{"brightness": 99}},
		},
	}

	select {
	case change := <-changes:
		assert.Equal(t, "light.virtual", change.EntityID)
		assert.Equal(t, "off", change.Old.State)
		assert.Equal(t, 99, *change.New.Attributes.IntPtr(platform.AttrBrightness))
	case <-time.After(2 * time.Second):
		t.Fatal("state change not delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRun_AuthInvalid(t *testing.T) {
	h, srv := newFakeHA(t)
	h.rejected = true
	c, _ := newTestClient(t, srv.URL)

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, ErrAuthInvalid)
}

func TestRun_MaxReconnects(t *testing.T) {
	c, _ := newTestClient(t, "http://127.0.0.1:1")

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, ErrMaxReconnectsExceeded)
}
