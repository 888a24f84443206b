package session

import (
	"context"
	"fmt"

	"github.com/okian/helpquest/internal/app/syncer"
	"github.com/okian/helpquest/internal/domain/model"
	"github.com/okian/helpquest/internal/domain/ranking"
	"github.com/okian/helpquest/pkg/logger"
	"github.com/okian/helpquest/pkg/metrics"
)

// Sync pushes local state, pulls the remote snapshot and reconciles it.
//
// Failures leave player and achievements untouched, record a system event
// and are returned wrapping syncer.ErrSyncFailed. When a sync started
// later has already been applied, this result is dropped and
// syncer.ErrSyncSuperseded is returned. A session without a remote
// baseline hydrates first, so its first push never rewinds the remote.
func (f *Facade) Sync(ctx context.Context) error {
	f.mu.Lock()
	hydrated := f.hydrated
	f.mu.Unlock()
	if !hydrated {
		if err := f.Hydrate(ctx); err != nil {
			return err
		}
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	push := f.capturePush()
	f.gen++
	gen := f.gen
	f.mu.Unlock()

	pull, err := f.coord.Exchange(ctx, f.userID, push)

	f.mu.Lock()
	defer f.mu.Unlock()
	if aerr := f.admit(ctx, gen); aerr != nil {
		return aerr
	}
	if err != nil {
		f.recordSyncFailure(ctx, err)
		return err
	}
	if push.Full && f.fullRev <= push.Revision {
		f.fullRev = 0
	}
	for id, rev := range f.dirty {
		if rev <= push.Revision {
			delete(f.dirty, id)
		}
	}
	f.applyPull(ctx, push.Revision, false, pull)

	done := f.newEvent(model.EventSystem, "Sync complete")
	done.Description = fmt.Sprintf("Progress saved at revision %d", push.Revision)
	f.queue.Record(ctx, done)
	return f.settle(ctx)
}

// Hydrate adopts the remote snapshot as the session baseline. Progress
// made locally before the baseline arrived, including while the fetch was
// in flight, is replayed on top of the remote counters. A user with no
// remote record keeps the local state and is pushed in full on the next
// sync. On failure the local state is kept, achievements are still
// evaluated, and the error is returned wrapping syncer.ErrSyncFailed.
func (f *Facade) Hydrate(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	f.gen++
	gen := f.gen
	base, baseline := f.revision, !f.hydrated
	f.mu.Unlock()

	pull, err := f.coord.Fetch(ctx, f.userID)

	f.mu.Lock()
	defer f.mu.Unlock()
	if aerr := f.admit(ctx, gen); aerr != nil {
		return aerr
	}
	if err != nil {
		f.recordSyncFailure(ctx, err)
		if serr := f.settle(ctx); serr != nil {
			f.log.Warn(ctx, "settle after failed hydrate", logger.Error(serr))
		}
		return err
	}
	if !pull.Found {
		f.fullRev = max(f.revision, 1)
	}
	f.applyPull(ctx, base, baseline, pull)
	f.hydrated = true
	f.unsynced = syncer.Unsynced{}
	return f.settle(ctx)
}

// admit applies the last-started-wins rule. Must be called with f.mu held.
func (f *Facade) admit(ctx context.Context, gen uint64) error {
	if f.closed {
		return ErrClosed
	}
	if gen <= f.appliedGen {
		metrics.RecordSyncSuperseded()
		f.log.Debug(ctx, "stale sync result discarded",
			logger.String("user", f.userID),
			logger.Int64("generation", int64(gen)),
			logger.Int64("applied", int64(f.appliedGen)))
		return syncer.ErrSyncSuperseded
	}
	f.appliedGen = gen
	return nil
}

// capturePush snapshots what the next sync sends. Must be called with f.mu held.
func (f *Facade) capturePush() syncer.Push {
	push := syncer.Push{Revision: f.revision}
	if f.fullRev > 0 {
		push.Full = true
		push.Snapshot = model.SnapshotOf(f.player, f.achievements, f.quests, f.revision)
		return push
	}
	push.Patch = model.PatchOf(f.player, f.quests, f.revision)
	for _, a := range f.achievements {
		if _, ok := f.dirty[a.ID]; !ok {
			continue
		}
		st := a.State()
		push.Achievements = append(push.Achievements, syncer.AchievementDelta{
			ID: a.ID,
			Patch: model.AchievementPatch{
				Unlocked:   st.Unlocked,
				UnlockedAt: st.UnlockedAt,
				Progress:   st.Progress,
			},
		})
	}
	return push
}

// applyPull reconciles a pulled snapshot and refreshes the leaderboard.
// A baseline pull replays the unsynced local progress. Must be called with
// f.mu held.
func (f *Facade) applyPull(ctx context.Context, pushed int64, baseline bool, pull syncer.Pull) {
	if pull.Found {
		local := syncer.Local{
			Player:          f.player,
			Achievements:    f.achievements,
			CompletedQuests: f.quests,
			PushedRevision:  pushed,
			CurrentRevision: f.revision,
			Baseline:        baseline,
		}
		if baseline {
			local.Unsynced = f.unsynced
		}
		r := syncer.Reconcile(local, pull.Snapshot, f.now())

		f.player = r.Player
		f.achievements = r.Achievements
		f.quests = r.CompletedQuests
		for _, id := range f.quests {
			f.questSet[id] = struct{}{}
		}
		for _, id := range r.Unknown {
			f.log.Warn(ctx, "remote achievement not in registry",
				logger.String("user", f.userID),
				logger.String("achievement", id))
		}
		if !r.CountersAdopted {
			f.log.Info(ctx, "remote counters deferred",
				logger.String("user", f.userID),
				logger.Int64("pushed", pushed),
				logger.Int64("local", f.revision),
				logger.Int64("remote", pull.Snapshot.Revision))
		}
		if r.Rebased {
			f.log.Info(ctx, "local progress rebased onto remote baseline",
				logger.String("user", f.userID),
				logger.Int("experience", f.unsynced.Experience),
				logger.Int64("remote", pull.Snapshot.Revision))
		}
		switch {
		case r.Rebased && pull.Snapshot.Revision >= f.revision:
			f.revision = pull.Snapshot.Revision + 1
		case pull.Snapshot.Revision > f.revision:
			f.revision = pull.Snapshot.Revision
		}
	}

	f.lastSyncErr = nil
	f.lastSyncAt = f.now()

	if pull.LeaderboardErr != nil {
		return
	}
	rows := ranking.Merge(pull.Standings, f.standing())
	board, err := ranking.Rank(rows, f.userID, f.leaderboardLimit)
	if err != nil {
		f.log.Warn(ctx, "leaderboard ranking failed", logger.Error(err))
		return
	}
	f.leaderboard = board
}

// standing is the leaderboard row of the local player. Must be called with f.mu held.
func (f *Facade) standing() model.Standing {
	return model.Standing{
		ID:                  f.userID,
		Name:                f.player.Name,
		Level:               f.player.Level,
		Points:              f.curve.TotalExperience(f.player.Level, f.player.Experience),
		CompletedQuestCount: f.player.CompletedQuestCount,
		AchievementCount:    model.CountUnlocked(f.achievements),
	}
}

// recordSyncFailure surfaces err without touching player state. Must be
// called with f.mu held.
func (f *Facade) recordSyncFailure(ctx context.Context, err error) {
	f.lastSyncErr = err
	ev := f.newEvent(model.EventSystem, "Sync failed")
	ev.Description = err.Error()
	f.queue.Record(ctx, ev)
	metrics.RecordErrorByComponent("session", "sync_failed")
}

func tallied(m map[string]int, id string, points int) map[string]int {
	if m == nil {
		m = make(map[string]int)
	}
	m[id] += points
	return m
}
