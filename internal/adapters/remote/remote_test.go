package remote_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/okian/helpquest/internal/adapters/remote"
	"github.com/okian/helpquest/internal/domain/model"
)

func TestStandingOf(t *testing.T) {
	s := model.Snapshot{
		UserID:              "u",
		Name:                "Ann",
		Level:               3,
		Experience:          20,
		CompletedQuestCount: 4,
		Achievements: []model.AchievementState{
			{ID: "a", Unlocked: true},
			{ID: "b"},
		},
	}
	got := remote.StandingOf(s)
	assert.Equal(t, "u", got.ID)
	assert.Equal(t, 100+150+20, got.Points)
	assert.Equal(t, 1, got.AchievementCount)
	assert.Equal(t, 4, got.CompletedQuestCount)
}

func TestValidatePatch(t *testing.T) {
	zero, neg := 0, -1
	assert.True(t, errors.Is(remote.ValidatePatch(model.PlayerPatch{Level: &zero}), remote.ErrInvalidData))
	assert.True(t, errors.Is(remote.ValidatePatch(model.PlayerPatch{Experience: &neg}), remote.ErrInvalidData))
	assert.True(t, errors.Is(remote.ValidatePatch(model.PlayerPatch{TotalQuestCount: &neg}), remote.ErrInvalidData))
	assert.NoError(t, remote.ValidatePatch(model.PlayerPatch{Experience: &zero}))
	assert.Error(t, remote.ValidateSnapshot(model.Snapshot{Level: 0}))
	assert.NoError(t, remote.ValidateSnapshot(model.Snapshot{Level: 1}))
}

func TestMergeState(t *testing.T) {
	s := model.Snapshot{}
	remote.MergeState(&s, "a", model.AchievementPatch{Progress: &model.Progress{Current: 2, Total: 5}})
	remote.MergeState(&s, "a", model.AchievementPatch{Progress: &model.Progress{Current: 1, Total: 5}})
	if assert.Len(t, s.Achievements, 1) {
		assert.Equal(t, 2, s.Achievements[0].Progress.Current)
	}
	remote.MergeState(&s, "a", model.AchievementPatch{Unlocked: true})
	assert.True(t, s.Achievements[0].Unlocked)
}
