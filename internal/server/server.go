package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/AGENTHIVE/internal/bus"
	"github.com/AGENTHIVE/internal/metrics"
	"github.com/AGENTHIVE/internal/orchestrator"
	"github.com/AGENTHIVE/internal/registry"
	"github.com/AGENTHIVE/internal/scheduler"
	"github.com/AGENTHIVE/internal/types"
)

// statePushInterval paces the websocket state frames
const statePushInterval = 2 * time.Second

// Server is the HTTP control API over the orchestrator
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	hub        *Hub
	orch       *orchestrator.Orchestrator
	cfg        types.ServerConfig
}

// New creates the control API server
func New(cfg types.ServerConfig, orch *orchestrator.Orchestrator) *Server {
	s := &Server{
		router: mux.NewRouter(),
		hub:    NewHub(),
		orch:   orch,
		cfg:    cfg,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(securityHeadersMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/tasks", s.handleSubmitTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}", s.handleCancelTask).Methods(http.MethodDelete)
	api.HandleFunc("/agents", s.handleRegisterAgent).Methods(http.MethodPost)
	api.HandleFunc("/agents", s.handleListAgents).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}", s.handleDeregisterAgent).Methods(http.MethodDelete)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/policies", s.handleListPolicies).Methods(http.MethodGet)
	api.HandleFunc("/sla", s.handleListSLA).Methods(http.MethodGet)
	api.HandleFunc("/sla/violations", s.handleListViolations).Methods(http.MethodGet)
	api.HandleFunc("/hootl/history", s.handleHOOTLHistory).Methods(http.MethodGet)

	s.router.HandleFunc("/ws", s.hub.ServeWS)
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	if s.cfg.MetricsEnabled {
		s.router.Handle("/metrics", metrics.Handler())
	}
}

// Start begins serving and the websocket push loops
func (s *Server) Start(ctx context.Context) error {
	if err := s.orch.Bus.SubscribeAlerts(func(a *bus.Alert) {
		s.hub.BroadcastJSON(types.WSMessage{Type: types.WSTypeAlert, Data: a})
	}); err != nil {
		return fmt.Errorf("failed to subscribe alerts for ws: %w", err)
	}
	go s.statePushLoop(ctx)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("[HTTP] Control API listening on :%d", s.cfg.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[HTTP] Server error: %v", err)
		}
	}()
	return nil
}

// Shutdown stops the HTTP server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the handler for tests
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) statePushLoop(ctx context.Context) {
	ticker := time.NewTicker(statePushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.hub.ClientCount() == 0 {
				continue
			}
			s.hub.BroadcastJSON(types.WSMessage{
				Type: types.WSTypeStateUpdate,
				Data: s.orch.QueryStatus(),
			})
		}
	}
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var req types.SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid task payload")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "task name is required")
		return
	}

	id, err := s.orch.SubmitTask(&req)
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrQueueFull):
			writeError(w, http.StatusServiceUnavailable, "queue_full", "scheduler queue is full")
		case errors.Is(err, scheduler.ErrShuttingDown):
			writeError(w, http.StatusServiceUnavailable, "shutting_down", "scheduler is shutting down")
		default:
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, types.SubmitTaskResponse{TaskID: id.String()})
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid task id")
		return
	}

	if err := s.orch.CancelTask(id); err != nil {
		if errors.Is(err, scheduler.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req types.RegisterAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid agent payload")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "agent name is required")
		return
	}

	id, err := s.orch.RegisterAgent(&req)
	if err != nil {
		if errors.Is(err, registry.ErrDuplicateID) {
			writeError(w, http.StatusConflict, "duplicate_id", "agent already registered")
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, types.RegisterAgentResponse{AgentID: id.String()})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Registry.All())
}

func (s *Server) handleDeregisterAgent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid agent id")
		return
	}

	if err := s.orch.DeregisterAgent(id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "agent not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deregistered"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.QueryStatus())
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Policy.Policies())
}

func (s *Server) handleListSLA(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.SLA.Definitions())
}

func (s *Server) handleListViolations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.SLA.Violations())
}

func (s *Server) handleHOOTLHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.HOOTL.History())
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, types.ErrorResponse{Error: message, Code: code})
}

// securityHeadersMiddleware masks server identification headers
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "AGENTHIVE")
		w.Header().Del("X-Powered-By")
		next.ServeHTTP(w, r)
	})
}
