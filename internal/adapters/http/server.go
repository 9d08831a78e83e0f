package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mediaforge/sessiond/pkg/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sessions is the coordination surface the route layer consumes.
type Sessions interface {
	Create(ctx context.Context, userID, threadID, channelID string, initial map[string]any) (*domain.Session, bool, error)
	Get(ctx context.Context, userID, threadID string) (*domain.Session, error)
	UpdateState(ctx context.Context, userID, threadID string, newState domain.State) (*domain.Session, error)
	UpdateContext(ctx context.Context, userID, threadID string, patch map[string]any) (*domain.Session, error)
	TrackInteraction(ctx context.Context, userID, threadID, kind string) (*domain.Session, error)
	End(ctx context.Context, userID, threadID string) (*domain.Session, error)
	Delete(ctx context.Context, userID, threadID string) error
	UserSessions(ctx context.Context, userID string) ([]string, error)
	Stats(ctx context.Context) (*domain.Stats, error)
	Summary(ctx context.Context, userID, threadID string) (*domain.Summary, error)
	Health(ctx context.Context) error
}

// Server exposes the session API over HTTP.
type Server struct {
	sessions Sessions
	logger   *slog.Logger
}

// NewHandler builds the route layer over the session store.
func NewHandler(sessions Sessions, logger *slog.Logger) http.Handler {
	s := &Server{sessions: sessions, logger: logger}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/users/{userID}/sessions", s.handleUserSessions)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Route("/{userID}/{threadID}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Delete("/", s.handleDelete)
			r.Put("/state", s.handleUpdateState)
			r.Patch("/context", s.handleUpdateContext)
			r.Post("/interactions", s.handleTrackInteraction)
			r.Post("/end", s.handleEnd)
			r.Get("/summary", s.handleSummary)
		})
	})
	return r
}

type createRequest struct {
	UserID    string         `json:"userId"`
	ThreadID  string         `json:"threadId"`
	ChannelID string         `json:"channelId"`
	Context   map[string]any `json:"context,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.UserID == "" || req.ThreadID == "" {
		http.Error(w, "userId and threadId are required", http.StatusBadRequest)
		return
	}

	sess, created, err := s.sessions.Create(r.Context(), req.UserID, req.ThreadID, req.ChannelID, req.Context)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	// Re-entering an existing session is a 200, not a 201.
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, sess)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "threadID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

type updateStateRequest struct {
	State domain.State `json:"state"`
}

func (s *Server) handleUpdateState(w http.ResponseWriter, r *http.Request) {
	var req updateStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := s.sessions.UpdateState(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "threadID"), req.State)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleUpdateContext(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := s.sessions.UpdateContext(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "threadID"), patch)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

type interactionRequest struct {
	Kind string `json:"kind"`
}

func (s *Server) handleTrackInteraction(w http.ResponseWriter, r *http.Request) {
	var req interactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := s.sessions.TrackInteraction(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "threadID"), req.Kind)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.End(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "threadID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "threadID")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUserSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.sessions.UserSessions(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sessionIds": ids})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.sessions.Stats(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.sessions.Summary(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "threadID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Health(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeDomainError maps the coordination error taxonomy to HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var serr *domain.StorageError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		s.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrCapacityExceeded):
		s.writeError(w, http.StatusTooManyRequests, err)
	case errors.Is(err, domain.ErrLockNotAcquired):
		// Retryable busy condition.
		s.writeError(w, http.StatusConflict, err)
	case errors.As(err, &serr):
		s.writeError(w, http.StatusServiceUnavailable, err)
	default:
		s.logger.Error("request failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "err", err)
	}
}
