package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/vlightd/internal/actions"
	"github.com/dokzlo13/vlightd/internal/platform"
	"github.com/dokzlo13/vlightd/internal/vlight"
)

// sourceAPI is the invocation source recorded in the ledger.
const sourceAPI = "api"

// maxBodySize bounds action argument payloads.
const maxBodySize = 64 << 10

// LightView is the JSON representation of a virtual light.
type LightView struct {
	ID            string        `json:"id"`
	Room          string        `json:"room,omitempty"`
	State         vlight.State  `json:"state"`
	Brightness    *int          `json:"brightness"`
	TempKelvin    *int          `json:"color_temp_kelvin"`
	MinTempKelvin *int          `json:"min_color_temp_kelvin"`
	MaxTempKelvin *int          `json:"max_color_temp_kelvin"`
	RGB           *platform.RGB `json:"rgb_color"`
	Targets       []string      `json:"targets"`
	Memory        vlight.Memory `json:"memory"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil && !s.ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleListLights(w http.ResponseWriter, r *http.Request) {
	views := make([]LightView, 0)
	for _, id := range s.lights.IDs() {
		l, ok := s.lights.Light(id)
		if !ok {
			continue
		}
		view, err := describe(r.Context(), l)
		if err != nil {
			writeError(w, r, statusFor(err), err)
			return
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetLight(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	l, ok := s.lights.Light(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, fmt.Errorf("%w: %q", actions.ErrLightNotFound, id))
		return
	}
	view, err := describe(r.Context(), l)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleLightAction runs an action with "light" bound to the path ID.
func (s *Server) handleLightAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if _, ok := s.lights.Light(vars["id"]); !ok {
		writeError(w, r, http.StatusNotFound, fmt.Errorf("%w: %q", actions.ErrLightNotFound, vars["id"]))
		return
	}
	s.invoke(w, r, vars["action"], map[string]any{"light": vars["id"]})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	s.invoke(w, r, mux.Vars(r)["name"], nil)
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request, name string, fixed map[string]any) {
	if !s.invoker.HasAction(name) {
		writeError(w, r, http.StatusNotFound, fmt.Errorf("%w: %q", actions.ErrActionNotFound, name))
		return
	}

	args, err := decodeArgs(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	for k, v := range fixed {
		args[k] = v
	}

	key := r.Header.Get(IdempotencyKeyHeader)
	call := func(ctx context.Context) error {
		return s.invoker.InvokeWithSource(ctx, name, args, key, sourceAPI)
	}
	if s.runner != nil {
		err = s.runner(r.Context(), call)
	} else {
		err = call(r.Context())
	}
	if err != nil {
		log.Warn().Err(err).Str("action", name).Str("request_id", RequestID(r.Context())).Msg("API action failed")
		writeError(w, r, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"action":     name,
		"request_id": RequestID(r.Context()),
	})
}

func decodeArgs(r *http.Request) (map[string]any, error) {
	args := make(map[string]any)
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if len(body) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(body, &args); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	// A "null" body decodes to a nil map.
	if args == nil {
		args = make(map[string]any)
	}
	return args, nil
}

func describe(ctx context.Context, l *vlight.VirtualLight) (LightView, error) {
	view := LightView{ID: l.ID(), Memory: l.Memory(), Targets: make([]string, 0, len(l.Targets()))}
	if room := l.Room(); room != nil {
		view.Room = room.Name
	}
	for _, t := range l.Targets() {
		view.Targets = append(view.Targets, t.ID())
	}

	var err error
	if view.State, err = l.State(ctx); err != nil {
		if !errors.Is(err, vlight.ErrUnknownState) {
			return view, err
		}
		view.State = "unknown"
	}
	if view.Brightness, err = l.Brightness(ctx); err != nil {
		return view, err
	}
	if view.TempKelvin, err = l.TempKelvin(ctx); err != nil {
		return view, err
	}
	if view.MinTempKelvin, err = l.MinTempKelvin(ctx); err != nil {
		return view, err
	}
	if view.MaxTempKelvin, err = l.MaxTempKelvin(ctx); err != nil {
		return view, err
	}
	if view.RGB, err = l.RGB(ctx); err != nil {
		return view, err
	}
	return view, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, actions.ErrActionNotFound),
		errors.Is(err, actions.ErrLightNotFound),
		errors.Is(err, platform.ErrEntityNotFound):
		return http.StatusNotFound
	case errors.Is(err, actions.ErrInvalidArgument),
		errors.Is(err, vlight.ErrTemperatureRangeUnavailable):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode API response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, status, map[string]string{
		"error":      err.Error(),
		"request_id": RequestID(r.Context()),
	})
}
