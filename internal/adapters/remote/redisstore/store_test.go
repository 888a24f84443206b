package redisstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/helpquest/internal/adapters/remote"
	"github.com/okian/helpquest/internal/domain/model"
)

var storeClock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "hq:", WithClock(func() time.Time { return storeClock })), mr
}

func intPtr(v int) *int { return &v }

func TestStoreFetch(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)

	_, err := s.Fetch(ctx, "ada")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	require.NoError(t, s.SyncData(ctx, "ada", model.Snapshot{
		UserID:          "ada",
		Name:            "Ada",
		Level:           2,
		Experience:      40,
		CompletedQuests: []string{"phone-checkin"},
		Revision:        3,
	}))

	snap, err := s.Fetch(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, "Ada", snap.Name)
	assert.Equal(t, 2, snap.Level)
	assert.Equal(t, int64(3), snap.Revision)
	assert.True(t, storeClock.Equal(snap.UpdatedAt))

	score, err := mr.ZScore("hq:leaderboard", "ada")
	require.NoError(t, err)
	assert.Equal(t, float64(140), score)

	mr.Set("hq:player:bob", "{not json")
	_, err = s.Fetch(ctx, "bob")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestStoreSyncData(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	require.NoError(t, s.SyncData(ctx, "ada", model.Snapshot{UserID: "ada", Level: 3, Revision: 5}))

	t.Run("older revision is dropped", func(t *testing.T) {
		require.NoError(t, s.SyncData(ctx, "ada", model.Snapshot{UserID: "ada", Level: 1, Revision: 4}))
		snap, err := s.Fetch(ctx, "ada")
		require.NoError(t, err)
		assert.Equal(t, 3, snap.Level)
		assert.Equal(t, int64(5), snap.Revision)
	})

	t.Run("same revision replaces", func(t *testing.T) {
		require.NoError(t, s.SyncData(ctx, "ada", model.Snapshot{UserID: "ada", Level: 4, Revision: 5}))
		snap, err := s.Fetch(ctx, "ada")
		require.NoError(t, err)
		assert.Equal(t, 4, snap.Level)
	})
}

func TestStoreUpdateData(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)

	require.NoError(t, s.UpdateData(ctx, "ada", model.PlayerPatch{
		Experience:      intPtr(30),
		CompletedQuests: []string{"phone-checkin"},
		Revision:        2,
	}))
	snap, err := s.Fetch(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Level)
	assert.Equal(t, 30, snap.Experience)

	name := "Ada"
	require.NoError(t, s.UpdateData(ctx, "ada", model.PlayerPatch{
		Name:            &name,
		CompletedQuests: []string{"deliver-groceries", "phone-checkin"},
		Revision:        3,
	}))
	snap, err = s.Fetch(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, "Ada", snap.Name)
	assert.Equal(t, 30, snap.Experience)
	assert.Equal(t, []string{"phone-checkin", "deliver-groceries"}, snap.CompletedQuests)

	score, err := mr.ZScore("hq:leaderboard", "ada")
	require.NoError(t, err)
	assert.Equal(t, float64(30), score)
}

func TestStoreUpdateAchievement(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	require.NoError(t, s.UpdateAchievement(ctx, "ada", "helper_5",
		model.AchievementPatch{Progress: &model.Progress{Current: 3, Total: 5}}))
	require.NoError(t, s.UpdateAchievement(ctx, "ada", "helper_5",
		model.AchievementPatch{Progress: &model.Progress{Current: 2, Total: 5}}))

	snap, err := s.Fetch(ctx, "ada")
	require.NoError(t, err)
	require.Len(t, snap.Achievements, 1)
	assert.Equal(t, 3, snap.Achievements[0].Progress.Current)
	assert.False(t, snap.Achievements[0].Unlocked)

	at := storeClock.Add(-time.Hour)
	require.NoError(t, s.UpdateAchievement(ctx, "ada", "helper_5",
		model.AchievementPatch{Unlocked: true, UnlockedAt: &at}))
	require.NoError(t, s.UpdateAchievement(ctx, "ada", "helper_5", model.AchievementPatch{}))

	snap, err = s.Fetch(ctx, "ada")
	require.NoError(t, err)
	assert.True(t, snap.Achievements[0].Unlocked)
	assert.Equal(t, 1, snap.UnlockedCount())
}

func TestStoreFetchLeaderboard(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	for _, snap := range []model.Snapshot{
		{UserID: "bob", Level: 2},
		{UserID: "zed", Level: 1, Experience: 50, CompletedQuestCount: 1},
		{UserID: "amy", Level: 1, Experience: 50, CompletedQuestCount: 2},
		{UserID: "yan", Level: 1, Experience: 50, CompletedQuestCount: 1},
		{UserID: "cy", Level: 1, Experience: 10},
	} {
		require.NoError(t, s.SyncData(ctx, snap.UserID, snap))
	}

	ids := func(rows []model.Standing) []string {
		out := make([]string, len(rows))
		for i, r := range rows {
			out[i] = r.ID
		}
		return out
	}

	t.Run("ties at the cut follow quests then id", func(t *testing.T) {
		rows, err := s.FetchLeaderboard(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"bob", "amy"}, ids(rows))

		rows, err = s.FetchLeaderboard(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"bob", "amy", "yan"}, ids(rows))
	})

	t.Run("zero returns everyone", func(t *testing.T) {
		rows, err := s.FetchLeaderboard(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"bob", "amy", "yan", "zed", "cy"}, ids(rows))
		assert.Equal(t, 100, rows[0].Points)
	})

	t.Run("empty board", func(t *testing.T) {
		empty, _ := newStore(t)
		rows, err := empty.FetchLeaderboard(ctx, 5)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func TestStoreMutateConflict(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)
	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = other.Close() })

	doc, err := json.Marshal(model.Snapshot{UserID: "ada", Level: 1, Experience: 5})
	require.NoError(t, err)

	t.Run("gives up after the retry budget", func(t *testing.T) {
		s.txRetries = 3
		attempts := 0
		err := s.mutate(ctx, "ada", func(snap *model.Snapshot, _ bool) bool {
			attempts++
			require.NoError(t, other.Set(ctx, "hq:player:ada", doc, 0).Err())
			snap.Experience = 99
			return true
		})
		assert.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, 3, attempts)

		snap, err := s.Fetch(ctx, "ada")
		require.NoError(t, err)
		assert.Equal(t, 5, snap.Experience)
	})

	t.Run("retries on a fresh read", func(t *testing.T) {
		attempts := 0
		err := s.mutate(ctx, "ada", func(snap *model.Snapshot, found bool) bool {
			attempts++
			if attempts == 1 {
				require.NoError(t, other.Set(ctx, "hq:player:ada", doc, 0).Err())
			}
			assert.True(t, found)
			snap.Experience += 10
			return true
		})
		require.NoError(t, err)
		assert.Equal(t, 2, attempts)

		snap, err := s.Fetch(ctx, "ada")
		require.NoError(t, err)
		assert.Equal(t, 15, snap.Experience)
	})
}
