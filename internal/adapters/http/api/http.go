// Package api exposes the player session entry points over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/okian/helpquest/internal/app"
	"github.com/okian/helpquest/internal/app/session"
	"github.com/okian/helpquest/internal/app/syncer"
	"github.com/okian/helpquest/internal/domain/achievement"
	"github.com/okian/helpquest/internal/domain/progression"
	"github.com/okian/helpquest/internal/domain/quest"
	"github.com/okian/helpquest/pkg/logger"
)

const defaultMaxLeaderboardLimit = 100

// Dependencies required by HTTP handlers.
type Dependencies interface {
	Open(ctx context.Context, userID string) (*session.Facade, error)
	Get(userID string) (*session.Facade, error)
	Close(ctx context.Context, userID string) error
	TriggerSync(ctx context.Context, userID string) error
}

// StatsProvider reports service statistics.
type StatsProvider interface {
	GetStats(ctx context.Context) service.Stats
}

// Option configures a Server.
type Option func(*Server)

// WithMaxLeaderboardLimit caps the leaderboard limit query parameter.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// Server wires HTTP routes for the player API.
type Server struct {
	deps     Dependencies
	stats    StatsProvider
	maxLimit int
	log      logger.Logger
}

// NewServer creates a new API server.
func NewServer(deps Dependencies, stats StatsProvider, opts ...Option) *Server {
	s := &Server{
		deps:     deps,
		stats:    stats,
		maxLimit: defaultMaxLeaderboardLimit,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.instrument("healthz", handleHealth))
	mux.Handle("GET /metrics", metricsHandler())
	mux.HandleFunc("GET /stats", s.instrument("stats", s.handleStats))

	mux.HandleFunc("GET /players/{id}", s.instrument("state", s.handleState))
	mux.HandleFunc("POST /players/{id}/session", s.instrument("open_session", s.handleOpen))
	mux.HandleFunc("DELETE /players/{id}/session", s.instrument("close_session", s.handleClose))
	mux.HandleFunc("POST /players/{id}/experience", s.instrument("experience", s.handleExperience))
	mux.HandleFunc("POST /players/{id}/quests/{questId}/complete", s.instrument("complete_quest", s.handleCompleteQuest))
	mux.HandleFunc("POST /players/{id}/achievements/{achievementId}/unlock", s.instrument("unlock_achievement", s.handleUnlock))
	mux.HandleFunc("POST /players/{id}/achievements/{achievementId}/progress", s.instrument("achievement_progress", s.handleProgress))
	mux.HandleFunc("PUT /players/{id}/profile", s.instrument("profile", s.handleProfile))
	mux.HandleFunc("POST /players/{id}/notification/dismiss", s.instrument("dismiss_notification", s.handleDismiss))
	mux.HandleFunc("DELETE /players/{id}/history", s.instrument("clear_history", s.handleClearHistory))
	mux.HandleFunc("POST /players/{id}/sync", s.instrument("sync", s.handleSync))
	mux.HandleFunc("POST /players/{id}/reset", s.instrument("reset", s.handleReset))
	mux.HandleFunc("GET /players/{id}/leaderboard", s.instrument("leaderboard", s.handleLeaderboard))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	if ec, ok := w.(errorCoder); ok {
		ec.setErrorCode(code)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError maps errors from the session layer onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, service.ErrInvalidUserID),
		errors.Is(err, progression.ErrInvalidAmount), errors.Is(err, achievement.ErrInvalidProgress):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrLimitExceeded):
		return http.StatusBadRequest, "limit_exceeded"
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, session.ErrClosed):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, quest.ErrUnknownQuest):
		return http.StatusNotFound, "unknown_quest"
	case errors.Is(err, achievement.ErrUnknownAchievement):
		return http.StatusNotFound, "unknown_achievement"
	case errors.Is(err, quest.ErrQuestLocked):
		return http.StatusConflict, "quest_locked"
	case errors.Is(err, syncer.ErrSyncSuperseded):
		return http.StatusConflict, "sync_superseded"
	case errors.Is(err, service.ErrQueueFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "not_started"
	case errors.Is(err, syncer.ErrSyncFailed):
		return http.StatusBadGateway, "sync_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
