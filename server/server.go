// Package server exposes the graph engine's CRUD and execution surface
// over HTTP/JSON.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/flowgraph/graphengine/execsvc"
	"github.com/flowgraph/graphengine/runconfig"
	"github.com/flowgraph/graphengine/schedulerun"
	"github.com/flowgraph/graphengine/store"
)

// Executor is the subset of *execsvc.Service's surface the server calls.
// *execsvc.Service satisfies it directly; a telemetry-instrumented
// executor (see the telemetry package) also satisfies it, so the server
// never needs to know whether its calls are being traced.
type Executor interface {
	Execute(ctx context.Context, graphID string, cfg runconfig.Config) (execsvc.Result, error)
}

// ServerConfig configures a Server instance.
type ServerConfig struct {
	Store         store.Repository
	ScheduleStore schedulerun.Store
	Service       Executor
	CORSOrigin    string
	MaxBody       int64
	Logger        *slog.Logger
}

// Server is the graph engine's HTTP API server.
type Server struct {
	store         store.Repository
	scheduleStore schedulerun.Store
	service       Executor
	corsOrigin    string
	maxBody       int64
	logger        *slog.Logger
}

// NewServer creates a new Server with the given configuration.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	corsOrigin := cfg.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	maxBody := cfg.MaxBody
	if maxBody <= 0 {
		maxBody = 1 << 20 // 1 MB default
	}
	return &Server{
		store:         cfg.Store,
		scheduleStore: cfg.ScheduleStore,
		service:       cfg.Service,
		corsOrigin:    corsOrigin,
		maxBody:       maxBody,
		logger:        logger,
	}
}

// Handler returns an http.Handler with all routes and middleware wired.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = s.corsMiddleware(handler)
	handler = s.maxBodyMiddleware(handler)
	handler = s.loggingMiddleware(handler)

	return handler
}

// RegisterRoutes mounts graph engine API routes onto an existing mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /crud/create_nodes", s.handleCreateNode)
	mux.HandleFunc("POST /crud/create_edges", s.handleCreateEdge)
	mux.HandleFunc("POST /crud/create_graph", s.handleCreateGraph)
	mux.HandleFunc("POST /crud/get_graph", s.handleGetGraph)
	mux.HandleFunc("GET /crud/get_edges", s.handleGetEdges)

	mux.HandleFunc("POST /graph/process_graph", s.handleProcessGraph)
	mux.HandleFunc("POST /graph/graph_run_config", s.handleProcessGraph)

	mux.HandleFunc("POST /graph/schedules", s.handleCreateSchedule)
	mux.HandleFunc("GET /graph/schedules/{graph_id}", s.handleListSchedules)
	mux.HandleFunc("DELETE /graph/schedules/{id}", s.handleDeleteSchedule)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) maxBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware assigns (or propagates) X-Request-Id and logs one
// structured line per request with method, path, status, and duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Info("http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// apiError is the standard error envelope.
type apiError struct {
	Error apiErrorBody `json:"error"`
}

type apiErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Error: apiErrorBody{Code: code, Message: message}})
}

func decodeJSONBody(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}
