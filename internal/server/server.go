// Package server exposes the local capture endpoint the browser-side
// recorder posts events to, and serves stored sessions back as JSON for the
// drafting pipeline.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/vincentbai/browsetrace-scribe/internal/database"
	"github.com/vincentbai/browsetrace-scribe/internal/models"
)

type Server struct {
	db      *database.Database
	address string
	logger  *slog.Logger
	server  *http.Server
}

// Batch is the wire shape the recorder posts.
type Batch struct {
	Events []models.Event `json:"events"`
}

func NewServer(db *database.Database, address string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		db:      db,
		address: address,
		logger:  logger,
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("ok"))
}

// handleCreateSession starts a new recording session and hands the recorder
// its id.
func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	sessionID := uuid.NewString()
	if err := s.db.CreateSession(sessionID, time.Now()); err != nil {
		s.logger.Error("failed to create session", "error", err)
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"sessionId": sessionID})
}

func (s *Server) handleAppendEvents(w http.ResponseWriter, request *http.Request) {
	sessionID := request.PathValue("id")
	var batch Batch
	if err := json.NewDecoder(request.Body).Decode(&batch); err != nil {
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}
	if len(batch.Events) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := s.db.AppendEvents(sessionID, batch.Events); err != nil {
		s.logger.Error("failed to store events", "session", sessionID, "error", err)
		http.Error(w, "Failed to store events", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent) // success, no body
}

func (s *Server) handleEndSession(w http.ResponseWriter, request *http.Request) {
	sessionID := request.PathValue("id")
	if err := s.db.EndSession(sessionID, time.Now()); err != nil {
		http.Error(w, "Unknown session", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetSession serves a stored session in the pipeline's input shape.
func (s *Server) handleGetSession(w http.ResponseWriter, request *http.Request) {
	sessionID := request.PathValue("id")
	session, err := s.db.LoadSession(sessionID)
	if err != nil {
		http.Error(w, "Unknown session", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("POST /sessions/{id}/events", s.handleAppendEvents)
	mux.HandleFunc("POST /sessions/{id}/end", s.handleEndSession)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	return mux
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	mux := s.setupRoutes()
	s.server = &http.Server{
		Addr:         s.address,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownChannel := make(chan os.Signal, 1)
	signal.Notify(shutdownChannel, syscall.SIGINT, syscall.SIGTERM)

	errChannel := make(chan error, 1)
	go func() {
		s.logger.Info("capture server listening", "address", s.address)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChannel <- err
		}
	}()

	select {
	case err := <-errChannel:
		return err
	case <-shutdownChannel:
	}
	s.logger.Info("shutting down capture server")

	shutdownContext, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownContext); err != nil {
		return err
	}
	s.logger.Info("capture server exited")
	return nil
}
