// Package server provides HTTP server setup and routing.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"subscription_watcher/auth"
	"subscription_watcher/handlers"
	"subscription_watcher/metrics"
	"subscription_watcher/websocket"
)

var log = logrus.WithField("component", "server")

// Config holds server configuration options.
type Config struct {
	Addr         string
	API          *handlers.API       // Query, subscription and blocklist endpoints
	WebSocketHub *websocket.Hub      // WebSocket hub for live matches (nil disables /ws)
	Auth         *auth.Authenticator // Protects subscriptions, blocklists and /ws (nil leaves them open)
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr: ":9090",
	}
}

// Server represents the HTTP server.
type Server struct {
	config *Config
	mux    *http.ServeMux
	http   *http.Server
}

// New creates a new Server with the given configuration.
func New(cfg *Config) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		config: cfg,
		mux:    http.NewServeMux(),
	}

	s.setupRoutes()
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// protected wraps handlers that need an authenticated caller when auth is
// configured.
func (s *Server) protected(h http.HandlerFunc) http.Handler {
	return s.config.Auth.Middleware(h)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.mux.Handle("GET /metrics", metrics.Handler())
	s.mux.HandleFunc("GET /api/auth/status", s.config.Auth.StatusHandler)

	// Browser login
	if p := s.config.Auth.Provider(); p != nil {
		s.mux.HandleFunc("GET /login", p.LoginHandler)
		s.mux.HandleFunc("GET "+p.CallbackPath(), p.CallbackHandler)
		s.mux.HandleFunc("GET /logout", p.LogoutHandler)
	}

	if api := s.config.API; api != nil {
		s.mux.HandleFunc("GET /healthz", api.HealthHandler)

		// Query language
		s.mux.HandleFunc("GET /api/query/compile", api.CompileHandler)
		s.mux.HandleFunc("POST /api/query/test", api.TestHandler)
		s.mux.HandleFunc("GET /api/docs/query", api.DocsHandler)

		// Subscriptions
		s.mux.Handle("GET /api/subscriptions", s.protected(api.ListSubscriptionsHandler))
		s.mux.Handle("POST /api/subscriptions", s.protected(api.CreateSubscriptionHandler))
		s.mux.Handle("GET /api/subscriptions/{id}", s.protected(api.GetSubscriptionHandler))
		s.mux.Handle("DELETE /api/subscriptions/{id}", s.protected(api.DeleteSubscriptionHandler))
		s.mux.Handle("POST /api/subscriptions/{id}/pause", s.protected(api.PauseHandler(true)))
		s.mux.Handle("POST /api/subscriptions/{id}/resume", s.protected(api.PauseHandler(false)))

		// Blocklists
		s.mux.Handle("GET /api/blocklists/{destination}", s.protected(api.GetBlocklistHandler))
		s.mux.Handle("POST /api/blocklists/{destination}", s.protected(api.AddBlockHandler))
		s.mux.Handle("DELETE /api/blocklists/{destination}", s.protected(api.RemoveBlockHandler))
	}

	// WebSocket endpoint for live matches
	if s.config.WebSocketHub != nil {
		s.mux.Handle("GET /ws", s.protected(s.config.WebSocketHub.Handler()))
	}
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the HTTP server. It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	log.WithField("addr", s.config.Addr).Info("Starting server")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
