package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/wricardo/virtual-office/logging"
	"github.com/wricardo/virtual-office/office/chat"
	"github.com/wricardo/virtual-office/office/hub"
	"github.com/wricardo/virtual-office/office/presence"
)

// Office is the part of the hub the admin API reads from and announces
// through. *hub.Hub satisfies it.
type Office interface {
	Players() []presence.Player
	Messages() []chat.Message
	Stats() hub.Stats
	Announce(content string) (chat.Message, error)
	Metrics() *hub.Metrics
}

// Server represents the admin REST API server
type Server struct {
	office  Office
	logger  *zap.SugaredLogger
	router  *mux.Router
	started time.Time
}

// NewServer creates a new API server
func NewServer(office Office, logger *zap.SugaredLogger) *Server {
	logger = logging.OrNop(logger)
	s := &Server{
		office:  office,
		logger:  logger,
		router:  mux.NewRouter(),
		started: time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/metrics", s.handleMetrics).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/office", s.handleOffice).Methods("GET")
	api.HandleFunc("/players", s.handleListPlayers).Methods("GET")
	api.HandleFunc("/players/{id}", s.handleGetPlayer).Methods("GET")
	api.HandleFunc("/messages", s.handleListMessages).Methods("GET")
	api.HandleFunc("/announcements", s.handleAnnounce).Methods("POST")
}

// Handle mounts an extra POST endpoint, used for the MCP bridge.
func (s *Server) Handle(path string, h http.Handler) {
	s.router.Handle(path, h).Methods("POST")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debugw("admin request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.office.Metrics().Snapshot())
}

func (s *Server) handleOffice(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.office.Stats())
}

func (s *Server) handleListPlayers(w http.ResponseWriter, r *http.Request) {
	players := s.office.Players()
	respondJSON(w, http.StatusOK, map[string]any{
		"count":   len(players),
		"players": players,
	})
}

func (s *Server) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	for _, p := range s.office.Players() {
		if p.ID == id {
			respondJSON(w, http.StatusOK, p)
			return
		}
	}
	respondError(w, http.StatusNotFound, "player not found: "+id)
}

// handleListMessages returns the chat history, oldest first. limit keeps only
// the most recent messages.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages := s.office.Messages()

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if limit < len(messages) {
			messages = messages[len(messages)-limit:]
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"count":    len(messages),
		"messages": messages,
	})
}

func (s *Server) handleAnnounce(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	msg, err := s.office.Announce(req.Content)
	switch {
	case errors.Is(err, hub.ErrEmptyMessage):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, hub.ErrClosed):
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Infow("announcement posted", "id", msg.ID)
	respondJSON(w, http.StatusCreated, msg)
}
