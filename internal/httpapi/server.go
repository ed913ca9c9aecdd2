// Package httpapi is the HTTP surface: session management, the offline
// analysis endpoint, the websocket entry point, health, and metrics.
package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/framewise/shotcoach/internal/config"
	"github.com/framewise/shotcoach/internal/metrics"
	"github.com/framewise/shotcoach/internal/model"
	"github.com/framewise/shotcoach/internal/pipeline"
	"github.com/framewise/shotcoach/internal/session"
	"github.com/framewise/shotcoach/internal/stream"
)

type ctxKey int

const requestIDKey ctxKey = 0

// Deps carries the wired components the server exposes.
type Deps struct {
	Sessions     *session.Manager
	Stream       *stream.Handler
	Orchestrator *pipeline.Orchestrator
	Metrics      *metrics.Registry
	Logger       zerolog.Logger
}

// Server is the HTTP server for both the offline and realtime surfaces.
type Server struct {
	cfg    config.ServerConfig
	router *mux.Router
	server *http.Server
	deps   Deps
	logger zerolog.Logger
}

// NewServer builds the server and wires metric observers into the
// stream handler and orchestrator.
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	s := &Server{
		cfg:    cfg,
		router: mux.NewRouter(),
		deps:   deps,
		logger: deps.Logger.With().Str("component", "http_server").Logger(),
	}

	if deps.Metrics != nil {
		if deps.Stream != nil {
			deps.Stream.SetAdviceObserver(deps.Metrics.RecordAdvice)
			deps.Stream.SetCycleObserver(deps.Metrics.RecordAnalysisLatency)
		}
		if deps.Orchestrator != nil {
			deps.Orchestrator.SetStageObserver(func(stage pipeline.Stage, elapsed time.Duration) {
				deps.Metrics.ObserveStage(string(stage), elapsed)
			})
		}
	}

	s.setupRoutes()
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)
	api.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{session_id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{session_id}", s.handleDeleteSession).Methods(http.MethodDelete)

	if s.deps.Stream != nil {
		s.router.HandleFunc("/ws/{session_id}", s.handleWS).Methods(http.MethodGet)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.deps.Sessions.Count(),
	})
}

// handleAnalyze runs the offline pipeline synchronously over a JSON
// bundle and returns the full result, partials included on failure.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.deps.Orchestrator == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis pipeline not configured")
		return
	}

	var bundle pipeline.Bundle
	if err := json.NewDecoder(r.Body).Decode(&bundle); err != nil {
		writeError(w, http.StatusBadRequest, "invalid bundle: "+err.Error())
		return
	}

	result := s.deps.Orchestrator.Run(r.Context(), bundle)

	status := http.StatusOK
	if result.Error != "" {
		status = http.StatusUnprocessableEntity
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordPipelineRun("failed")
		}
	} else if s.deps.Metrics != nil {
		s.deps.Metrics.RecordPipelineRun("completed")
	}
	writeJSON(w, status, result)
}

type createSessionRequest struct {
	SessionID string `json:"session_id"`
	Device    string `json:"device"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.Body != nil {
		// An empty body creates a session with generated id and the
		// standard device profile.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	device := model.DeviceStandard
	if req.Device == string(model.DeviceProfessional) {
		device = model.DeviceProfessional
	}

	s.deps.Sessions.Create(req.SessionID, device)
	if s.deps.Metrics != nil {
		s.deps.Metrics.SessionsTotal.Inc()
		s.deps.Metrics.ActiveSessions.Set(float64(s.deps.Sessions.Count()))
	}

	snap, _ := s.deps.Sessions.Snapshot(req.SessionID)
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ids := s.deps.Sessions.SessionIDs()
	snaps := make([]session.Snapshot, 0, len(ids))
	for _, id := range ids {
		if snap, ok := s.deps.Sessions.Snapshot(id); ok {
			snaps = append(snaps, snap)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": snaps})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["session_id"]
	snap, ok := s.deps.Sessions.Snapshot(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["session_id"]
	s.deps.Sessions.Delete(id)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ActiveSessions.Set(float64(s.deps.Sessions.Count()))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.deps.Stream.ServeWS(w, r, mux.Vars(r)["session_id"])
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		requestID, _ := r.Context().Value(requestIDKey).(string)
		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// Start runs the listener until it fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.cfg.Addr).Msg("http server starting")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("http server shutting down")
	return s.server.Shutdown(ctx)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
