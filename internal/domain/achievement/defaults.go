package achievement

import "github.com/okian/helpquest/internal/domain/model"

// Ids of the built-in achievements.
const (
	FirstLogin      = "first_login"
	ProfileComplete = "profile_complete"
	FirstQuest      = "first_quest"
	CompleteFive    = "complete_5_quests"
	ReachLevelFive  = "level_5"
	ReachLevelTen   = "level_10"
	questsForFive   = 5
	levelFive       = 5
	levelTen        = 10
)

// DefaultDefinitions returns the built-in achievement set.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Template: model.Achievement{
				ID:           FirstLogin,
				Title:        "Welcome aboard",
				Description:  "Sign in for the first time",
				Category:     model.CategorySpecial,
				Rarity:       model.RarityCommon,
				PointsReward: 10,
			},
			Rule: Boolean(func(model.Player) bool { return true }),
		},
		{
			Template: model.Achievement{
				ID:           ProfileComplete,
				Title:        "Face in the crowd",
				Description:  "Upload an avatar to your profile",
				Category:     model.CategorySocial,
				Rarity:       model.RarityUncommon,
				PointsReward: 30,
			},
			Rule: Boolean(func(p model.Player) bool { return p.Avatar != "" }),
		},
		{
			Template: model.Achievement{
				ID:           FirstQuest,
				Title:        "First steps",
				Description:  "Complete your first quest",
				Category:     model.CategoryEducational,
				Rarity:       model.RarityCommon,
				PointsReward: 20,
			},
			Rule: Boolean(func(p model.Player) bool { return p.CompletedQuestCount >= 1 }),
		},
		{
			Template: model.Achievement{
				ID:           CompleteFive,
				Title:        "Helping hand",
				Description:  "Complete five quests",
				Category:     model.CategoryEducational,
				Rarity:       model.RarityRare,
				PointsReward: 50,
				Progress:     &model.Progress{Total: questsForFive},
			},
			Rule: Counter(questsForFive, func(p model.Player) int { return p.CompletedQuestCount }),
		},
		{
			Template: model.Achievement{
				ID:           ReachLevelFive,
				Title:        "Rising star",
				Description:  "Reach level 5",
				Category:     model.CategoryTechnical,
				Rarity:       model.RarityEpic,
				PointsReward: 100,
			},
			Rule: Boolean(func(p model.Player) bool { return p.Level >= levelFive }),
		},
		{
			Template: model.Achievement{
				ID:           ReachLevelTen,
				Title:        "Pillar of the community",
				Description:  "Reach level 10",
				Category:     model.CategorySpecial,
				Rarity:       model.RarityLegendary,
				PointsReward: 500,
			},
			Rule: Boolean(func(p model.Player) bool { return p.Level >= levelTen }),
		},
	}
}

// DefaultRegistry returns a registry of DefaultDefinitions.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultDefinitions()...)
	if err != nil {
		// The built-in set has unique, non-empty ids.
		panic(err)
	}
	return r
}
