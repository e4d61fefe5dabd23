// Package server provides the HTTP server for the bodydetect system.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/bodydetect/internal/event"
	"github.com/ayusman/bodydetect/internal/server/api"
	"github.com/ayusman/bodydetect/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Commands  api.Dispatcher
	State     api.StateSource
	Events    *event.Multiplexer
	// Codec is used by event subscribers that do not ask for one.
	Codec event.Codec
	// EventBuffer is the number of events queued per subscriber.
	EventBuffer int
	// Gatherer enables /metrics when set.
	Gatherer prometheus.Gatherer
}

// Server represents the HTTP server for the bodydetect application.
type Server struct {
	config  Config
	mux     *http.ServeMux
	handler http.Handler
	start   time.Time
	// accessLog feeds request logs to logrus until Shutdown closes it.
	accessLog *io.PipeWriter

	mu   sync.Mutex
	http *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	s.accessLog = log.StandardLogger().WriterLevel(log.DebugLevel)
	s.handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(log.StandardLogger()),
	)(handlers.CombinedLoggingHandler(s.accessLog, s.mux))
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Commands != nil {
		s.mux.Handle("/api/commands", api.NewCommandHandler(s.config.Commands))
	}
	if s.config.State != nil {
		s.mux.Handle("/api/state", api.NewStateHandler(s.config.State))
	}
	if s.config.Store != nil {
		sessions := api.NewSessionsHandler(s.config.Store)
		s.mux.Handle("/api/sessions", sessions)
		s.mux.Handle("/api/sessions/", sessions)
	}
	if s.config.Events != nil {
		s.mux.Handle("/api/events", NewEventsHandler(s.config.Events, s.config.Codec, s.config.EventBuffer))
	}
	if s.config.Gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Events != nil {
		response["subscribed"] = s.config.Events.HasSink()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address and blocks
// until Shutdown is called or the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	log.WithField("addr", addr).Info("HTTP server listening")
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops a server started with ListenAndServe and
// releases the access log writer. It is safe to call on a server that was
// only used as an http.Handler.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	s.accessLog.Close()
	return err
}
