// Package api serves the HTTP command API for virtual lights.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/vlightd/internal/vlight"
)

// Lights resolves virtual lights.
type Lights interface {
	Light(id string) (*vlight.VirtualLight, bool)
	IDs() []string
}

// Invoker runs named actions.
type Invoker interface {
	InvokeWithSource(ctx context.Context, name string, args map[string]any, idempotencyKey, source string) error
	HasAction(name string) bool
}

// Runner executes an invocation, e.g. on the Lua worker. nil runs inline.
type Runner func(ctx context.Context, fn func(ctx context.Context) error) error

// Config configures the API server.
type Config struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

// Server is the HTTP command API.
type Server struct {
	addr       string
	lights     Lights
	invoker    Invoker
	runner     Runner
	ready      func() bool
	handler    http.Handler
	httpServer *http.Server
}

// NewServer creates the API server. ready reports readiness for /ready; nil means always ready.
func NewServer(cfg Config, lights Lights, invoker Invoker, runner Runner, ready func() bool) *Server {
	s := &Server{
		addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		lights:  lights,
		invoker: invoker,
		runner:  runner,
		ready:   ready,
	}

	router := mux.NewRouter()
	router.Use(requestIDMiddleware, loggingMiddleware)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	router.HandleFunc("/lights", s.handleListLights).Methods(http.MethodGet)
	router.HandleFunc("/lights/{id}", s.handleGetLight).Methods(http.MethodGet)
	router.HandleFunc("/lights/{id}/{action}", s.handleLightAction).Methods(http.MethodPost)
	router.HandleFunc("/actions/{name}", s.handleAction).Methods(http.MethodPost)
	router.NotFoundHandler = requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, errors.New("route not found"))
	}))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", IdempotencyKeyHeader, RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
	})
	s.handler = c.Handler(router)

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run starts the server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
