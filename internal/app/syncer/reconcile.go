package syncer

import (
	"time"

	"github.com/okian/helpquest/internal/domain/model"
	"github.com/okian/helpquest/internal/domain/progression"
)

// Local is the state a pulled snapshot is reconciled against.
type Local struct {
	Player          model.Player
	Achievements    []model.Achievement
	CompletedQuests []string
	// PushedRevision is the revision carried by the push of this sync.
	PushedRevision int64
	// CurrentRevision is the local revision when the pull is applied.
	CurrentRevision int64
	// Baseline marks the first pull of a session. Its counters are always
	// taken, with Unsynced replayed on top.
	Baseline bool
	Unsynced Unsynced
}

// Unsynced is progress made locally before the session had a remote
// baseline.
type Unsynced struct {
	// Experience is every point granted locally, rewards and quests included.
	Experience int
	// Rewards maps locally unlocked achievements to the reward they paid.
	Rewards map[string]int
	// Quests maps locally completed quests to the points they paid.
	Quests map[string]int
	// Profile reports a local profile edit.
	Profile bool
}

// Empty reports whether nothing was done locally.
func (u Unsynced) Empty() bool {
	return u.Experience == 0 && len(u.Rewards) == 0 && len(u.Quests) == 0 && !u.Profile
}

// Reconciled is the outcome of Reconcile.
type Reconciled struct {
	Player          model.Player
	Achievements    []model.Achievement
	CompletedQuests []string
	// CountersAdopted reports that the remote counters replaced the local ones.
	CountersAdopted bool
	// Rebased reports that local progress was replayed onto the remote counters.
	Rebased bool
	// Adopted lists remote unlocks taken over silently.
	Adopted []string
	// Unknown lists remote achievement ids absent locally.
	Unknown []string
}

// Reconcile merges a pulled snapshot into local state.
//
// Counters (level, experience, quest counts, profile) follow the remote
// only when nothing changed locally since the push and the remote revision
// is not behind the pushed one. Otherwise the local counters are kept and
// the next sync pushes them again. A baseline pull always takes the remote
// counters and replays the unsynced local progress on top; points already
// paid remotely for the same quest or achievement are not counted twice.
//
// Achievements merge as a union: a local unlock is never reverted, a remote
// unlock is adopted, and progress takes the larger value. Completed quest
// ids merge the same way.
func Reconcile(local Local, remote model.Snapshot, now time.Time) Reconciled {
	out := Reconciled{
		Player:          local.Player,
		Achievements:    model.CloneAchievements(local.Achievements),
		CompletedQuests: model.UnionIDs(append([]string(nil), local.CompletedQuests...), remote.CompletedQuests),
	}

	switch {
	case local.Baseline:
		out.Player = rebase(local, remote)
		out.CountersAdopted = true
		out.Rebased = !local.Unsynced.Empty()
	case local.CurrentRevision == local.PushedRevision && remote.Revision >= local.PushedRevision:
		p := local.Player
		p.Level = remote.Level
		p.Experience = remote.Experience
		p.CompletedQuestCount = remote.CompletedQuestCount
		p.TotalQuestCount = remote.TotalQuestCount
		if remote.Name != "" {
			p.Name = remote.Name
		}
		if remote.Avatar != "" {
			p.Avatar = remote.Avatar
		}
		out.Player = progression.Normalize(p)
		out.CountersAdopted = true
	}

	byID := make(map[string]int, len(out.Achievements))
	for i := range out.Achievements {
		byID[out.Achievements[i].ID] = i
	}
	for _, rs := range remote.Achievements {
		i, ok := byID[rs.ID]
		if !ok {
			out.Unknown = append(out.Unknown, rs.ID)
			continue
		}
		a := &out.Achievements[i]
		if a.Unlocked {
			continue
		}
		if rs.Progress != nil && a.Progress != nil && rs.Progress.Current > a.Progress.Current {
			a.Progress.Current = min(rs.Progress.Current, a.Progress.Total)
		}
		if rs.Unlocked {
			a.Unlocked = true
			at := now
			if rs.UnlockedAt != nil {
				at = *rs.UnlockedAt
			}
			a.UnlockedAt = &at
			if a.Progress != nil {
				a.Progress.Current = a.Progress.Total
			}
			out.Adopted = append(out.Adopted, a.ID)
		}
	}
	return out
}

func rebase(local Local, remote model.Snapshot) model.Player {
	u := local.Unsynced
	p := local.Player
	p.Level = remote.Level
	p.Experience = remote.Experience + u.Experience
	p.CompletedQuestCount = remote.CompletedQuestCount

	for _, rs := range remote.Achievements {
		if rs.Unlocked {
			p.Experience -= u.Rewards[rs.ID]
		}
	}
	done := make(map[string]struct{}, len(remote.CompletedQuests))
	for _, id := range remote.CompletedQuests {
		done[id] = struct{}{}
	}
	for id, points := range u.Quests {
		if _, ok := done[id]; ok {
			p.Experience -= points
			continue
		}
		p.CompletedQuestCount++
	}
	p.TotalQuestCount = max(remote.TotalQuestCount, p.CompletedQuestCount)

	if !u.Profile {
		if remote.Name != "" {
			p.Name = remote.Name
		}
		if remote.Avatar != "" {
			p.Avatar = remote.Avatar
		}
	}
	return progression.Normalize(p)
}
