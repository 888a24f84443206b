package model

// Standing is a raw leaderboard row before ranking.
type Standing struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Level               int    `json:"level"`
	Points              int    `json:"points"`
	CompletedQuestCount int    `json:"completedQuestCount"`
	AchievementCount    int    `json:"achievementCount"`
}

// LeaderboardEntry is the ranked, read-only projection of a Standing.
type LeaderboardEntry struct {
	ID                  string `json:"id"`
	Rank                int    `json:"rank"`
	Name                string `json:"name"`
	Level               int    `json:"level"`
	Points              int    `json:"points"`
	CompletedQuestCount int    `json:"completedQuestCount"`
	AchievementCount    int    `json:"achievementCount"`
	IsCurrentUser       bool   `json:"isCurrentUser"`
}
