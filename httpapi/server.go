// Package httpapi exposes the state engine over a REST API.
//
// Every response uses a uniform JSON envelope:
//
//	{"success": true, "data": ..., "timestamp": 1700000000000}
//	{"success": false, "error": "...", "timestamp": 1700000000000}
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/iotlab/sensorhub/engine"
)

// Config carries the HTTP layer's settings.
type Config struct {
	// CORSOrigin is the value sent as Access-Control-Allow-Origin.
	// Empty disables the CORS headers.
	CORSOrigin string
}

// Option configures a Server.
type Option func(*Server)

// WithWebSocket mounts a WebSocket handler at /ws.
func WithWebSocket(h http.Handler) Option {
	return func(s *Server) { s.ws = h }
}

// Server routes REST requests to the engine.
type Server struct {
	eng *engine.Engine
	cfg Config
	ws  http.Handler
}

// New creates a Server backed by the given engine.
func New(eng *engine.Engine, cfg Config, opts ...Option) *Server {
	s := &Server{eng: eng, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Handler builds the chi router with logging, panic recovery, CORS and
// OTel HTTP instrumentation.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(otelhttp.NewMiddleware("sensorhub.http"))
	if s.cfg.CORSOrigin != "" {
		r.Use(s.corsMiddleware)
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/{id}", s.handleGetDevice)
			r.Post("/{id}", s.handleUpsertDevice)
			r.Delete("/{id}", s.handleDeleteDevice)
			r.Post("/{id}/control", s.handleControl)
		})
		r.Route("/history", func(r chi.Router) {
			r.Get("/", s.handleCombinedHistory)
			r.Get("/{id}", s.handleDeviceHistory)
			r.Post("/{id}", s.handleAppendHistory)
		})
		r.Route("/thresholds", func(r chi.Router) {
			r.Get("/", s.handleListThresholds)
			r.Get("/{id}", s.handleGetThreshold)
			r.Post("/{id}", s.handleSetThreshold)
			r.Post("/{id}/reset", s.handleResetThreshold)
			r.Delete("/{id}", s.handleRemoveThreshold)
		})
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.handleListAlerts)
			r.Post("/", s.handleCreateAlert)
			r.Get("/{id}", s.handleGetAlert)
			r.Post("/{id}/ack", s.handleAckAlert)
			r.Delete("/{id}", s.handleClearAlert)
		})
	})

	if s.ws != nil {
		r.Handle("/ws", s.ws)
	}

	return r
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}
