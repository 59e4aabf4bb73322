// Package server provides the HTTP interface of the vision service: health
// and status, the processing switch, tuning profiles, the raw and annotated
// MJPEG streams and a websocket feed of results.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/victis/victis-vision/internal/app"
	"github.com/victis/victis-vision/internal/detector"
	"github.com/victis/victis-vision/internal/logging"
	"github.com/victis/victis-vision/internal/server/api"
	"github.com/victis/victis-vision/internal/store"
)

// Controller is the part of the app the API drives.
type Controller interface {
	api.Activator
	IsEnabled() bool
	SetEnabled(ctx context.Context, enabled bool) error
	Status() app.Status
	PipelineConfig() detector.Config
	DrawOptions() detector.DrawOptions
	SetPipelineConfig(cfg detector.Config, draw detector.DrawOptions) error
}

// Config holds the server configuration. Nil fields disable their routes.
type Config struct {
	Store      *store.Store
	Controller Controller
	Raw        FrameSource
	Processed  FrameSource
	Hub        *Hub
	// StreamFPS caps each MJPEG client; 0 means DefaultStreamFPS.
	StreamFPS float64
	// StaticDir serves a dashboard at / when set.
	StaticDir string
	Logger    logrus.FieldLogger
}

// Server represents the HTTP server of the vision service.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	log    logrus.FieldLogger
	http   *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = logging.Discard()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		log:    config.Logger,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Controller != nil {
		s.mux.HandleFunc("/api/status", s.handleStatus)
		s.mux.HandleFunc("/api/enabled", s.handleEnabled)
		s.mux.HandleFunc("/api/config", s.handleConfig)
	}

	if s.config.Store != nil {
		var activator api.Activator
		if s.config.Controller != nil {
			activator = s.config.Controller
		}
		profiles := api.NewProfileHandler(s.config.Store, activator, s.log.WithField("handler", "profiles"))
		s.mux.Handle("/api/profiles", profiles)
		s.mux.Handle("/api/profiles/", profiles)
	}

	if s.config.Raw != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Raw, s.config.StreamFPS))
	}
	if s.config.Processed != nil {
		s.mux.Handle("/api/stream/processed", NewStreamHandler(s.config.Processed, s.config.StreamFPS))
	}

	if s.config.Hub != nil {
		s.mux.Handle("/api/results", s.config.Hub)
	}

	if s.config.StaticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

// handleStatus handles GET /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	api.WriteJSON(w, http.StatusOK, s.config.Controller.Status())
}

type enabledBody struct {
	Enabled *bool `json:"enabled"`
}

// handleEnabled handles GET and PUT /api/enabled.
func (s *Server) handleEnabled(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var body enabledBody
		if err := api.DecodeJSON(w, r, &body); err != nil || body.Enabled == nil {
			api.WriteError(w, http.StatusBadRequest, `Body must be {"enabled": true|false}`)
			return
		}
		if err := s.config.Controller.SetEnabled(r.Context(), *body.Enabled); err != nil {
			// The switch itself changed; only persistence failed.
			s.log.WithError(err).Warn("persisting processing switch")
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	enabled := s.config.Controller.IsEnabled()
	api.WriteJSON(w, http.StatusOK, enabledBody{Enabled: &enabled})
}

type configBody struct {
	Config detector.Config      `json:"config"`
	Draw   detector.DrawOptions `json:"draw"`
}

// handleConfig handles GET and PUT /api/config. PUT replaces the base
// config without touching stored profiles.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		body := configBody{
			Config: s.config.Controller.PipelineConfig(),
			Draw:   s.config.Controller.DrawOptions(),
		}
		if err := api.DecodeJSON(w, r, &body); err != nil {
			api.WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if err := s.config.Controller.SetPipelineConfig(body.Config, body.Draw); err != nil {
			if errors.Is(err, detector.ErrInvalidInput) {
				api.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
			api.WriteError(w, http.StatusInternalServerError, "Failed to apply config")
			return
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	api.WriteJSON(w, http.StatusOK, configBody{
		Config: s.config.Controller.PipelineConfig(),
		Draw:   s.config.Controller.DrawOptions(),
	})
}

// ListenAndServe starts the HTTP server on the given address and blocks
// until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.WithField("addr", addr).Info("http server listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
