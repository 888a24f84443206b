// Package ranking turns raw standings into a ranked leaderboard.
package ranking

import (
	"errors"
	"sort"

	"github.com/okian/helpquest/internal/domain/model"
)

var (
	// ErrInvalidLimit is returned for negative limits.
	ErrInvalidLimit = errors.New("invalid limit")
	// ErrNotRanked is returned when a player is absent from the leaderboard.
	ErrNotRanked = errors.New("player not ranked")
)

// less is the leaderboard total order: points desc, completed quests desc, id asc.
func less(a, b model.Standing) bool {
	if a.Points != b.Points {
		return a.Points > b.Points
	}
	if a.CompletedQuestCount != b.CompletedQuestCount {
		return a.CompletedQuestCount > b.CompletedQuestCount
	}
	return a.ID < b.ID
}

// Sort orders rows by the leaderboard order in place.
func Sort(rows []model.Standing) {
	sort.Slice(rows, func(i, j int) bool { return less(rows[i], rows[j]) })
}

// Rank orders standings and returns at most limit entries with ranks
// 1..n. Because the order is total, no two entries share a rank. A limit
// of 0 returns everything. When an id appears more than once only its best
// row is kept.
func Rank(standings []model.Standing, currentUserID string, limit int) ([]model.LeaderboardEntry, error) {
	if limit < 0 {
		return nil, ErrInvalidLimit
	}
	rows := uniqueBest(standings)
	Sort(rows)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	out := make([]model.LeaderboardEntry, len(rows))
	for i, s := range rows {
		out[i] = model.LeaderboardEntry{
			ID:                  s.ID,
			Rank:                i + 1,
			Name:                s.Name,
			Level:               s.Level,
			Points:              s.Points,
			CompletedQuestCount: s.CompletedQuestCount,
			AchievementCount:    s.AchievementCount,
			IsCurrentUser:       currentUserID != "" && s.ID == currentUserID,
		}
	}
	return out, nil
}

// Position returns the entry for id.
func Position(entries []model.LeaderboardEntry, id string) (model.LeaderboardEntry, error) {
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return model.LeaderboardEntry{}, ErrNotRanked
}

// Merge replaces the row of s.ID in standings with s, or appends it.
// Callers use it to overlay the local player on a fetched leaderboard.
func Merge(standings []model.Standing, s model.Standing) []model.Standing {
	out := make([]model.Standing, 0, len(standings)+1)
	replaced := false
	for _, row := range standings {
		if row.ID == s.ID {
			if !replaced {
				out = append(out, s)
				replaced = true
			}
			continue
		}
		out = append(out, row)
	}
	if !replaced {
		out = append(out, s)
	}
	return out
}

func uniqueBest(standings []model.Standing) []model.Standing {
	idx := make(map[string]int, len(standings))
	rows := make([]model.Standing, 0, len(standings))
	for _, s := range standings {
		if i, ok := idx[s.ID]; ok {
			if less(s, rows[i]) {
				rows[i] = s
			}
			continue
		}
		idx[s.ID] = len(rows)
		rows = append(rows, s)
	}
	return rows
}
