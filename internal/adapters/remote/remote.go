// Package remote defines the Remote Game Data Service contract shared by
// the store adapters.
package remote

import (
	"context"
	"errors"

	"github.com/okian/helpquest/internal/domain/model"
	"github.com/okian/helpquest/internal/domain/progression"
)

var (
	// ErrNotFound is returned by Fetch for users with no stored game data.
	ErrNotFound = errors.New("game data not found")
	// ErrInvalidData is returned when a write violates the record invariants.
	ErrInvalidData = errors.New("invalid game data")
	// ErrInvalidLimit is returned for negative leaderboard limits.
	ErrInvalidLimit = errors.New("invalid limit")
)

// Store is the authoritative game data store, keyed by user id.
// Implementations must be idempotent on identical payloads and must keep
// the stored revision at the maximum revision ever written.
type Store interface {
	// Fetch returns the full stored snapshot.
	Fetch(ctx context.Context, userID string) (model.Snapshot, error)
	// UpdateData applies a partial update of counters and profile.
	UpdateData(ctx context.Context, userID string, patch model.PlayerPatch) error
	// SyncData replaces the stored snapshot, unless its revision is behind.
	SyncData(ctx context.Context, userID string, snapshot model.Snapshot) error
	// FetchLeaderboard returns up to limit raw standings, best first. 0 means all.
	FetchLeaderboard(ctx context.Context, limit int) ([]model.Standing, error)
	// UpdateAchievement merges the state of one achievement.
	UpdateAchievement(ctx context.Context, userID, achievementID string, patch model.AchievementPatch) error
}

// StandingOf projects a stored snapshot onto a leaderboard row.
// Points are the total experience accumulated across levels.
func StandingOf(s model.Snapshot) model.Standing {
	return model.Standing{
		ID:                  s.UserID,
		Name:                s.Name,
		Level:               s.Level,
		Points:              progression.TotalExperience(s.Level, s.Experience),
		CompletedQuestCount: s.CompletedQuestCount,
		AchievementCount:    s.UnlockedCount(),
	}
}

// ValidatePatch checks the counter invariants of a partial update.
func ValidatePatch(patch model.PlayerPatch) error {
	switch {
	case patch.Level != nil && *patch.Level < 1:
		return errors.Join(ErrInvalidData, errors.New("level must be at least 1"))
	case patch.Experience != nil && *patch.Experience < 0:
		return errors.Join(ErrInvalidData, errors.New("experience must not be negative"))
	case patch.CompletedQuestCount != nil && *patch.CompletedQuestCount < 0,
		patch.TotalQuestCount != nil && *patch.TotalQuestCount < 0:
		return errors.Join(ErrInvalidData, errors.New("quest counts must not be negative"))
	}
	return nil
}

// ValidateSnapshot checks the counter invariants of a full snapshot.
func ValidateSnapshot(s model.Snapshot) error {
	level, exp := s.Level, s.Experience
	completed, total := s.CompletedQuestCount, s.TotalQuestCount
	return ValidatePatch(model.PlayerPatch{
		Level:               &level,
		Experience:          &exp,
		CompletedQuestCount: &completed,
		TotalQuestCount:     &total,
	})
}

// MergeState folds patch into the achievement list of s.
func MergeState(s *model.Snapshot, achievementID string, patch model.AchievementPatch) {
	for i := range s.Achievements {
		if s.Achievements[i].ID == achievementID {
			s.Achievements[i] = model.MergeAchievement(s.Achievements[i], patch)
			return
		}
	}
	s.Achievements = append(s.Achievements, model.MergeAchievement(model.AchievementState{ID: achievementID}, patch))
}
