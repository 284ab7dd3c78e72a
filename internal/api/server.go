package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"codeblocks/internal/hub"
	"codeblocks/internal/participant"
	"codeblocks/pkg/interfaces"
	"codeblocks/pkg/types"
)

// Registry reports live connection counts
type Registry interface {
	GetStats() map[string]int
}

// HubStats reports live room counts
type HubStats interface {
	Stats() hub.Stats
}

// HealthChecker probes the database
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	catalog  interfaces.ExerciseCatalog
	roles    interfaces.RoleAssigner
	health   HealthChecker
	registry Registry
	hub      HubStats
	logger   *zap.SugaredLogger
	router   *mux.Router
}

// NewServer wires the REST routes. ws, when non-nil, is mounted at /ws
// outside the JSON middleware.
func NewServer(catalog interfaces.ExerciseCatalog, roles interfaces.RoleAssigner, health HealthChecker,
	registry Registry, hubStats HubStats, ws http.Handler, logger *zap.SugaredLogger) *Server {
	s := &Server{
		catalog:  catalog,
		roles:    roles,
		health:   health,
		registry: registry,
		hub:      hubStats,
		logger:   logger,
		router:   mux.NewRouter(),
	}

	s.setupRoutes(ws)
	return s
}

// ARCHITECTURAL DISCOVERY: Route setup follows REST conventions with proper middleware
// CORS and JSON middleware applied to all REST routes for web client compatibility
func (s *Server) setupRoutes(ws http.Handler) {
	s.router.Use(s.loggingMiddleware)

	if ws != nil {
		s.router.Methods(http.MethodGet).Path("/ws").Handler(ws)
	}

	s.router.Methods(http.MethodGet, http.MethodOptions).Path("/codeblocks").Handler(s.rest(s.listExercises))
	s.router.Methods(http.MethodGet, http.MethodOptions).Path("/codeblocks/{id}").Handler(s.rest(s.getExercise))
	s.router.Methods(http.MethodGet, http.MethodOptions).Path("/codeblocks/{id}/role").Handler(s.rest(s.assignRole))
	s.router.Methods(http.MethodGet, http.MethodOptions).Path("/health").Handler(s.rest(s.healthCheck))

	s.router.NotFoundHandler = s.jsonMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, "Not found", http.StatusNotFound)
	}))
	s.router.MethodNotAllowedHandler = s.jsonMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}))
}

// rest applies the CORS and JSON middleware to one REST handler
func (s *Server) rest(h http.HandlerFunc) http.Handler {
	return s.corsMiddleware(s.jsonMiddleware(h))
}

// FUNCTIONAL DISCOVERY: Implement http.Handler interface for integration with standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type RoleResponse struct {
	Role types.Role `json:"role"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
	Rooms       hub.Stats      `json:"rooms"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// FUNCTIONAL DISCOVERY: GET /codeblocks - catalog ordered by title then id
func (s *Server) listExercises(w http.ResponseWriter, r *http.Request) {
	entries, err := s.catalog.List(r.Context())
	if err != nil {
		s.logger.Errorw("failed to list exercises", "error", err)
		s.sendError(w, "Failed to list exercises", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []types.CatalogEntry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

// FUNCTIONAL DISCOVERY: GET /codeblocks/{id} - full definition
func (s *Server) getExercise(w http.ResponseWriter, r *http.Request) {
	exerciseID := mux.Vars(r)["id"]

	def, err := s.catalog.Get(r.Context(), exerciseID)
	if err != nil {
		if errors.Is(err, interfaces.ErrExerciseNotFound) {
			s.sendError(w, "Exercise not found", http.StatusNotFound)
			return
		}
		s.logger.Errorw("failed to get exercise", "exercise_id", exerciseID, "error", err)
		s.sendError(w, "Failed to get exercise", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, def)
}

// FUNCTIONAL DISCOVERY: GET /codeblocks/{id}/role[?role=] - resolve or change a role
// No role parameter resolves the current assignment; a role parameter is a change request
func (s *Server) assignRole(w http.ResponseWriter, r *http.Request) {
	exerciseID := mux.Vars(r)["id"]

	participantID, cookie, err := participant.Resolve(r)
	if err != nil {
		s.sendError(w, "Invalid participant id", http.StatusBadRequest)
		return
	}
	if cookie != nil {
		http.SetCookie(w, cookie)
	}

	var proposed *types.Role
	if raw := r.URL.Query().Get("role"); raw != "" {
		role, err := types.ParseRole(raw)
		if err != nil {
			s.sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
		proposed = &role
	}

	role, err := s.roles.Assign(r.Context(), exerciseID, participantID, proposed)
	if err != nil {
		switch {
		case errors.Is(err, interfaces.ErrExerciseNotFound):
			s.sendError(w, "Exercise not found", http.StatusNotFound)
		case errors.Is(err, interfaces.ErrRoleChangeRejected):
			s.sendError(w, "Role change rejected", http.StatusConflict)
		case errors.Is(err, types.ErrInvalidRole), errors.Is(err, types.ErrInvalidParticipantID):
			s.sendError(w, err.Error(), http.StatusBadRequest)
		default:
			s.logger.Errorw("failed to assign role", "exercise_id", exerciseID, "participant_id", participantID, "error", err)
			s.sendError(w, "Failed to assign role", http.StatusInternalServerError)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, RoleResponse{Role: role})
}

// FUNCTIONAL DISCOVERY: GET /health - System health check with component validation
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"

	if err := s.health.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.registry.GetStats(),
		Rooms:       s.hub.Stats(),
	}

	// FUNCTIONAL DISCOVERY: Return 503 if any component is unhealthy
	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debugw("failed to encode response", "error", err)
	}
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// loggingMiddleware records method, path, status and duration of every request
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.logger.Debugw("handled",
			"method", r.Method, "path", r.URL.Path, "status", m.Code, "duration", m.Duration)
	})
}

// ARCHITECTURAL DISCOVERY: CORS middleware enables web client access
// Allows all origins; the browser client is served from a different host
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// FUNCTIONAL DISCOVERY: JSON middleware ensures proper content-type headers
func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
