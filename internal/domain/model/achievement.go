package model

import "time"

// Category groups achievements for display.
type Category string

// Achievement categories.
const (
	CategoryEducational Category = "educational"
	CategorySocial      Category = "social"
	CategoryTechnical   Category = "technical"
	CategorySpecial     Category = "special"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryEducational, CategorySocial, CategoryTechnical, CategorySpecial:
		return true
	}
	return false
}

// Rarity ranks how hard an achievement is to obtain.
type Rarity string

// Achievement rarities, from most to least common.
const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Valid reports whether r is one of the known rarities.
func (r Rarity) Valid() bool {
	switch r {
	case RarityCommon, RarityUncommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	}
	return false
}

// Progress is a {current, total} counter toward an unlock.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Complete reports whether the counter reached its total.
func (p Progress) Complete() bool {
	return p.Current >= p.Total
}

// Achievement is a reward definition plus the per-player unlock state.
// Once Unlocked is true neither Unlocked nor Progress change again.
type Achievement struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Category     Category   `json:"category"`
	Rarity       Rarity     `json:"rarity"`
	PointsReward int        `json:"pointsReward"`
	Unlocked     bool       `json:"unlocked"`
	UnlockedAt   *time.Time `json:"unlockedAt,omitempty"`
	Progress     *Progress  `json:"progress,omitempty"`
}

// Clone returns a deep copy of a.
func (a Achievement) Clone() Achievement {
	cp := a
	if a.UnlockedAt != nil {
		t := *a.UnlockedAt
		cp.UnlockedAt = &t
	}
	if a.Progress != nil {
		p := *a.Progress
		cp.Progress = &p
	}
	return cp
}

// State projects the mutable part of a for synchronization.
func (a Achievement) State() AchievementState {
	c := a.Clone()
	return AchievementState{
		ID:         c.ID,
		Unlocked:   c.Unlocked,
		UnlockedAt: c.UnlockedAt,
		Progress:   c.Progress,
	}
}

// CloneAchievements deep-copies a slice of achievements.
func CloneAchievements(in []Achievement) []Achievement {
	if in == nil {
		return nil
	}
	out := make([]Achievement, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// CountUnlocked returns how many achievements in the slice are unlocked.
func CountUnlocked(in []Achievement) int {
	n := 0
	for i := range in {
		if in[i].Unlocked {
			n++
		}
	}
	return n
}
