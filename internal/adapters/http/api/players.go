package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/helpquest/internal/app/session"
	"github.com/okian/helpquest/internal/domain/achievement"
	"github.com/okian/helpquest/internal/domain/model"
	"github.com/okian/helpquest/pkg/logger"
)

type experienceRequest struct {
	Amount *int   `json:"amount"`
	Source string `json:"source"`
}

type progressRequest struct {
	Current *int `json:"current"`
}

type profileRequest struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type dismissResponse struct {
	Dismissed    bool                   `json:"dismissed"`
	Notification model.NotificationSlot `json:"notification"`
}

type syncResponse struct {
	Status string `json:"status"`
}

// facade resolves the session named by the {id} path value, writing the
// error response itself when there is none.
func (s *Server) facade(w http.ResponseWriter, r *http.Request) (*session.Facade, bool) {
	f, err := s.deps.Get(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return f, true
}

// mutated answers a mutation with the resulting state. The evaluation cap
// is reported in the log only: the state it leaves behind is consistent.
func (s *Server) mutated(w http.ResponseWriter, r *http.Request, f *session.Facade, err error) {
	if errors.Is(err, achievement.ErrEvaluationLimit) {
		s.log.Error(r.Context(), "evaluation limit reached", logger.String("user", f.UserID()), logger.Error(err))
		err = nil
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f.State())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	f, ok := s.facade(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, f.State())
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	f, err := s.deps.Open(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, f.State())
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Close(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExperience(w http.ResponseWriter, r *http.Request) {
	f, ok := s.facade(w, r)
	if !ok {
		return
	}
	var req experienceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDomainError(w, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if req.Amount == nil {
		writeDomainError(w, fmt.Errorf("%w: missing amount", ErrBadRequest))
		return
	}
	s.mutated(w, r, f, f.AddExperience(r.Context(), *req.Amount, req.Source))
}

func (s *Server) handleCompleteQuest(w http.ResponseWriter, r *http.Request) {
	f, ok := s.facade(w, r)
	if !ok {
		return
	}
	s.mutated(w, r, f, f.CompleteQuest(r.Context(), r.PathValue("questId")))
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	f, ok := s.facade(w, r)
	if !ok {
		return
	}
	s.mutated(w, r, f, f.UnlockAchievement(r.Context(), r.PathValue("achievementId")))
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	f, ok := s.facade(w, r)
	if !ok {
		return
	}
	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDomainError(w, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if req.Current == nil {
		writeDomainError(w, fmt.Errorf("%w: missing current", ErrBadRequest))
		return
	}
	s.mutated(w, r, f, f.UpdateAchievementProgress(r.Context(), r.PathValue("achievementId"), *req.Current))
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	f, ok := s.facade(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDomainError(w, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	s.mutated(w, r, f, f.UpdateProfile(r.Context(), model.Profile{Name: req.Name, Avatar: req.Avatar}))
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	f, ok := s.facade(w, r)
	if !ok {
		return
	}
	dismissed := f.DismissNotification(r.Context())
	writeJSON(w, http.StatusOK, dismissResponse{Dismissed: dismissed, Notification: f.Notification()})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	f, ok := s.facade(w, r)
	if !ok {
		return
	}
	f.ClearHistory()
	w.WriteHeader(http.StatusNoContent)
}

// handleSync queues a background sync, or runs it inline with ?wait=true.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	f, ok := s.facade(w, r)
	if !ok {
		return
	}
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		s.mutated(w, r, f, f.Sync(r.Context()))
		return
	}
	if err := s.deps.TriggerSync(r.Context(), f.UserID()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, syncResponse{Status: "queued"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	f, ok := s.facade(w, r)
	if !ok {
		return
	}
	s.mutated(w, r, f, f.ResetProgress(r.Context()))
}

// handleLeaderboard returns the ranked leaderboard of the last sync.
// limit defaults to every entry and may not exceed the configured cap.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	f, ok := s.facade(w, r)
	if !ok {
		return
	}
	limit := s.maxLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeDomainError(w, fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest))
			return
		}
		if n > s.maxLimit {
			writeDomainError(w, fmt.Errorf("%w: limit above %d", ErrLimitExceeded, s.maxLimit))
			return
		}
		limit = n
	}
	entries := f.Leaderboard()
	if len(entries) > limit {
		entries = entries[:limit]
	}
	writeJSON(w, http.StatusOK, entries)
}
