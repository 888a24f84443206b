package model

import "time"

// AchievementState is the synchronized part of an Achievement.
type AchievementState struct {
	ID         string     `json:"id"`
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlockedAt,omitempty"`
	Progress   *Progress  `json:"progress,omitempty"`
}

// Snapshot is the full game state of one user as held by the remote store.
type Snapshot struct {
	UserID              string             `json:"userId"`
	Name                string             `json:"name,omitempty"`
	Avatar              string             `json:"avatar,omitempty"`
	Level               int                `json:"level"`
	Experience          int                `json:"experience"`
	CompletedQuestCount int                `json:"completedQuestCount"`
	TotalQuestCount     int                `json:"totalQuestCount"`
	CompletedQuests     []string           `json:"completedQuests,omitempty"`
	Achievements        []AchievementState `json:"achievements,omitempty"`
	// Revision is the highest local revision the store has accepted.
	Revision  int64     `json:"revision"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SnapshotOf builds the pushable snapshot of a player and its achievements.
func SnapshotOf(p Player, achievements []Achievement, quests []string, revision int64) Snapshot {
	states := make([]AchievementState, 0, len(achievements))
	for i := range achievements {
		states = append(states, achievements[i].State())
	}
	return Snapshot{
		UserID:              p.ID,
		Name:                p.Name,
		Avatar:              p.Avatar,
		Level:               p.Level,
		Experience:          p.Experience,
		CompletedQuestCount: p.CompletedQuestCount,
		TotalQuestCount:     p.TotalQuestCount,
		CompletedQuests:     append([]string(nil), quests...),
		Achievements:        states,
		Revision:            revision,
	}
}

// Clone returns a deep copy of a.
func (a AchievementState) Clone() AchievementState {
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

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	cp := s
	cp.CompletedQuests = append([]string(nil), s.CompletedQuests...)
	if s.Achievements != nil {
		cp.Achievements = make([]AchievementState, len(s.Achievements))
		for i := range s.Achievements {
			cp.Achievements[i] = s.Achievements[i].Clone()
		}
	}
	return cp
}

// UnlockedCount returns how many achievements in s are unlocked.
func (s Snapshot) UnlockedCount() int {
	n := 0
	for i := range s.Achievements {
		if s.Achievements[i].Unlocked {
			n++
		}
	}
	return n
}

// PlayerPatch is a partial update of the counters and profile of a player.
// Nil fields are left untouched by the store.
type PlayerPatch struct {
	Name                *string `json:"name,omitempty"`
	Avatar              *string `json:"avatar,omitempty"`
	Level               *int    `json:"level,omitempty"`
	Experience          *int    `json:"experience,omitempty"`
	CompletedQuestCount *int    `json:"completedQuestCount,omitempty"`
	TotalQuestCount     *int    `json:"totalQuestCount,omitempty"`
	// CompletedQuests, when non-nil, is merged into the stored quest ids.
	CompletedQuests []string `json:"completedQuests,omitempty"`
	Revision        int64    `json:"revision"`
}

// PatchOf builds a full counter patch from p.
func PatchOf(p Player, quests []string, revision int64) PlayerPatch {
	name, avatar := p.Name, p.Avatar
	level, exp := p.Level, p.Experience
	completed, total := p.CompletedQuestCount, p.TotalQuestCount
	return PlayerPatch{
		Name:                &name,
		Avatar:              &avatar,
		Level:               &level,
		Experience:          &exp,
		CompletedQuestCount: &completed,
		TotalQuestCount:     &total,
		CompletedQuests:     append([]string(nil), quests...),
		Revision:            revision,
	}
}

// UnionIDs returns a followed by the ids of b not already in a.
func UnionIDs(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, id := range a {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for _, id := range b {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// Apply writes the non-nil fields of patch onto s. Counters are only taken
// when the patch revision is not behind the snapshot revision.
func (s *Snapshot) Apply(patch PlayerPatch) {
	if patch.Revision < s.Revision {
		return
	}
	if patch.Name != nil {
		s.Name = *patch.Name
	}
	if patch.Avatar != nil {
		s.Avatar = *patch.Avatar
	}
	if patch.Level != nil {
		s.Level = *patch.Level
	}
	if patch.Experience != nil {
		s.Experience = *patch.Experience
	}
	if patch.CompletedQuestCount != nil {
		s.CompletedQuestCount = *patch.CompletedQuestCount
	}
	if patch.TotalQuestCount != nil {
		s.TotalQuestCount = *patch.TotalQuestCount
	}
	s.CompletedQuests = UnionIDs(s.CompletedQuests, patch.CompletedQuests)
	s.Revision = patch.Revision
}

// AchievementPatch is a partial update of one achievement's state.
type AchievementPatch struct {
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlockedAt,omitempty"`
	Progress   *Progress  `json:"progress,omitempty"`
}

// MergeAchievement folds patch into the stored state of one achievement.
// Stores call it so that an unlock is never reverted and progress never
// decreases, which keeps repeated identical pushes idempotent.
func MergeAchievement(cur AchievementState, patch AchievementPatch) AchievementState {
	if cur.Unlocked {
		return cur
	}
	if patch.Unlocked {
		cur.Unlocked = true
		if patch.UnlockedAt != nil {
			t := *patch.UnlockedAt
			cur.UnlockedAt = &t
		}
	}
	if patch.Progress != nil {
		p := *patch.Progress
		if cur.Progress != nil && cur.Progress.Current > p.Current {
			p.Current = cur.Progress.Current
		}
		cur.Progress = &p
	}
	return cur
}
