package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/helpquest/internal/app/syncer"
	"github.com/okian/helpquest/internal/domain/achievement"
	"github.com/okian/helpquest/internal/domain/model"
	"github.com/okian/helpquest/internal/domain/progression"
	"github.com/okian/helpquest/internal/domain/quest"
	"github.com/okian/helpquest/pkg/logger"
	"github.com/okian/helpquest/pkg/metrics"
)

// AddExperience grants amount experience attributed to source. Negative
// amounts fail with progression.ErrInvalidAmount and change nothing.
func (f *Facade) AddExperience(ctx context.Context, amount int, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if source == "" {
		source = SourceManual
	}
	grant, err := f.curve.AddExperience(f.player, amount)
	if err != nil {
		return err
	}
	f.player = grant.Player
	f.recordGrant(ctx, amount, source, grant)
	f.bump()
	return f.settle(ctx)
}

// CompleteQuest marks questID completed and pays its points. Completing
// the same quest twice is a no-op.
func (f *Facade) CompleteQuest(ctx context.Context, questID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	q, err := f.catalog.Lookup(questID)
	if err != nil {
		return err
	}
	if _, done := f.questSet[q.ID]; done {
		return nil
	}
	if !q.Available(f.player.Level) {
		return fmt.Errorf("%w: %s needs level %d", quest.ErrQuestLocked, q.ID, q.MinLevel)
	}

	p := f.player
	p.CompletedQuestCount++
	p.TotalQuestCount = max(p.TotalQuestCount, p.CompletedQuestCount)
	grant, err := f.curve.AddExperience(p, q.Points)
	if err != nil {
		return err
	}

	f.questSet[q.ID] = struct{}{}
	f.quests = append(f.quests, q.ID)
	if !f.hydrated {
		f.unsynced.Quests = tallied(f.unsynced.Quests, q.ID, q.Points)
	}
	f.player = grant.Player
	done := f.newEvent(model.EventQuestCompleted, q.Title)
	done.ID = questEventPrefix + q.ID
	done.Description = q.Description
	done.Points = q.Points
	done.Source = q.ID
	f.queue.Record(ctx, done)
	f.recordGrant(ctx, q.Points, questSourcePrefix+q.Title, grant)
	f.bump()
	return f.settle(ctx)
}

// UnlockAchievement unlocks id directly and pays its reward. Unlocking an
// achievement twice is a silent no-op; an unknown id is logged and
// returned as achievement.ErrUnknownAchievement.
func (f *Facade) UnlockAchievement(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	achs, unlocked, err := f.engine.Unlock(f.achievements, id)
	if err != nil {
		f.log.Warn(ctx, "unlock of unknown achievement ignored",
			logger.String("user", f.userID),
			logger.String("achievement", id))
		return fmt.Errorf("%w: %s", err, id)
	}
	if unlocked == nil {
		return nil
	}
	f.achievements = achs
	return f.settle(ctx, *unlocked)
}

// UpdateAchievementProgress raises the progress of id to current. Lower
// values and unlocked achievements are ignored. Reaching the total unlocks
// the achievement and pays its reward.
func (f *Facade) UpdateAchievementProgress(ctx context.Context, id string, current int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	achs, done, changed, err := f.engine.Advance(f.achievements, id, current)
	if err != nil {
		if errors.Is(err, achievement.ErrUnknownAchievement) {
			f.log.Warn(ctx, "progress of unknown achievement ignored",
				logger.String("user", f.userID),
				logger.String("achievement", id))
			return fmt.Errorf("%w: %s", err, id)
		}
		return err
	}
	if !changed {
		return nil
	}
	f.achievements = achs
	f.dirty[id] = f.bump()
	if done != nil {
		return f.settle(ctx, *done)
	}
	return f.settle(ctx)
}

// UpdateProfile replaces the profile and re-evaluates achievements.
func (f *Facade) UpdateProfile(ctx context.Context, profile model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.player.Name = strings.TrimSpace(profile.Name)
	f.player.Avatar = strings.TrimSpace(profile.Avatar)
	if !f.hydrated {
		f.unsynced.Profile = true
	}
	f.bump()
	return f.settle(ctx)
}

// DismissNotification closes the open notification; the next queued one
// opens on its own. It reports whether anything was open.
func (f *Facade) DismissNotification(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.Dismiss(ctx)
}

// ClearHistory empties the event history. Queued notifications stay.
func (f *Facade) ClearHistory() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue.ClearHistory()
}

// ResetProgress returns the player to level 1 with every achievement
// locked, keeping the profile. The reset state becomes the session
// baseline: syncs in flight are discarded and the next sync replaces the
// remote record.
func (f *Facade) ResetProgress(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	profile := f.player.Profile()
	f.player = model.NewPlayer(f.userID)
	f.player.Name, f.player.Avatar = profile.Name, profile.Avatar
	f.achievements = f.engine.Registry().Instantiate()
	f.quests = nil
	f.questSet = make(map[string]struct{})
	f.dirty = make(map[string]int64)
	f.queue.Reset(ctx)
	f.gen++
	f.appliedGen = f.gen
	f.hydrated = true
	f.unsynced = syncer.Unsynced{}
	f.fullRev = f.bump()
	f.log.Info(ctx, "progress reset", logger.String("user", f.userID))
	return f.settle(ctx)
}

// recordGrant emits one points_earned event and one level_up event per
// level reached. Must be called with f.mu held.
func (f *Facade) recordGrant(ctx context.Context, amount int, source string, grant progression.Result) {
	earned := f.newEvent(model.EventPointsEarned, fmt.Sprintf("+%d XP", amount))
	earned.Description = source
	earned.Points = amount
	earned.Source = source
	f.queue.Record(ctx, earned)
	if !f.hydrated {
		f.unsynced.Experience += amount
	}
	metrics.RecordExperienceGranted(amount)

	for _, level := range grant.LevelsReached {
		up := f.newEvent(model.EventLevelUp, fmt.Sprintf("Level %d reached", level))
		up.Level = level
		up.Source = source
		f.queue.Record(ctx, up)
		metrics.RecordLevelUp()
	}
}

// settle runs the achievement engine to a fixed point, commits its
// outcome and records the resulting events. seed carries direct unlocks
// whose rewards are still owed. Must be called with f.mu held.
func (f *Facade) settle(ctx context.Context, seed ...model.Achievement) error {
	before := make(map[string]model.Achievement, len(f.achievements))
	for _, a := range f.achievements {
		before[a.ID] = a
	}

	out, err := f.engine.Settle(ctx, f.player, f.achievements, seed...)
	f.player = out.Player
	f.achievements = out.Achievements

	var changed []string
	for _, a := range out.Achievements {
		prev := before[a.ID]
		if prev.Unlocked != a.Unlocked || progressOf(prev) != progressOf(a) {
			changed = append(changed, a.ID)
		}
	}
	for _, s := range seed {
		changed = append(changed, s.ID)
	}
	if len(changed) > 0 {
		rev := f.bump()
		for _, id := range changed {
			f.dirty[id] = rev
		}
	}

	for _, r := range out.Rewards {
		a := r.Achievement
		ev := f.newEvent(model.EventAchievementUnlocked, a.Title)
		ev.ID = unlockEventPrefix + a.ID
		ev.Description = a.Description
		ev.Points = a.PointsReward
		ev.Achievement = &a
		f.queue.Record(ctx, ev)
		if !f.hydrated {
			f.unsynced.Rewards = tallied(f.unsynced.Rewards, a.ID, a.PointsReward)
		}
		metrics.RecordAchievementUnlocked(string(a.Rarity))
		f.recordGrant(ctx, a.PointsReward, SourceAchievementReward, r.Grant)
	}

	if err != nil {
		if errors.Is(err, achievement.ErrEvaluationLimit) {
			f.log.Error(ctx, "achievement rewards did not settle",
				logger.String("user", f.userID),
				logger.Int("passes", out.Passes),
				logger.Error(err))
		}
		return err
	}
	return nil
}

func progressOf(a model.Achievement) int {
	if a.Progress == nil {
		return -1
	}
	return a.Progress.Current
}
