// Package memory is an in-process Remote Game Data Service used for local
// runs and tests. It can simulate latency and failures.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/helpquest/internal/adapters/remote"
	"github.com/okian/helpquest/internal/domain/model"
	"github.com/okian/helpquest/internal/domain/ranking"
)

// Option configures a Store.
type Option func(*Store)

// WithLatency makes every call wait d before running, honoring ctx.
func WithLatency(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.latency = d
		}
	}
}

// WithClock sets the clock used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store is a map-backed remote.Store.
type Store struct {
	mu      sync.RWMutex
	players map[string]model.Snapshot
	latency time.Duration
	fail    error
	now     func() time.Time
	calls   map[string]int
}

var _ remote.Store = (*Store)(nil)

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		players: make(map[string]model.Snapshot),
		now:     time.Now,
		calls:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFailure makes every subsequent call return err. nil clears it.
func (s *Store) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// SetLatency changes the simulated latency.
func (s *Store) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// Seed stores snapshot as is, bypassing revision checks.
func (s *Store) Seed(snapshot model.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[snapshot.UserID] = snapshot.Clone()
}

// Calls returns how many times op was invoked.
func (s *Store) Calls(op string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op]
}

// Len returns the number of stored players.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}

func (s *Store) enter(ctx context.Context, op string) error {
	s.mu.Lock()
	s.calls[op]++
	latency, fail := s.latency, s.fail
	s.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(latency):
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if fail != nil {
		return fmt.Errorf("%s: %w", op, fail)
	}
	return nil
}

// Fetch implements remote.Store.
func (s *Store) Fetch(ctx context.Context, userID string) (model.Snapshot, error) {
	if err := s.enter(ctx, "fetch"); err != nil {
		return model.Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.players[userID]
	if !ok {
		return model.Snapshot{}, remote.ErrNotFound
	}
	return snap.Clone(), nil
}

// UpdateData implements remote.Store.
func (s *Store) UpdateData(ctx context.Context, userID string, patch model.PlayerPatch) error {
	if err := s.enter(ctx, "update_data"); err != nil {
		return err
	}
	if err := remote.ValidatePatch(patch); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.load(userID)
	snap.Apply(patch)
	snap.UpdatedAt = s.now()
	s.players[userID] = snap
	return nil
}

// SyncData implements remote.Store. A snapshot whose revision is behind the
// stored one is dropped without error.
func (s *Store) SyncData(ctx context.Context, userID string, snapshot model.Snapshot) error {
	if err := s.enter(ctx, "sync_data"); err != nil {
		return err
	}
	if err := remote.ValidateSnapshot(snapshot); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.players[userID]; ok && snapshot.Revision < cur.Revision {
		return nil
	}
	snap := snapshot.Clone()
	snap.UserID = userID
	snap.UpdatedAt = s.now()
	s.players[userID] = snap
	return nil
}

// FetchLeaderboard implements remote.Store.
func (s *Store) FetchLeaderboard(ctx context.Context, limit int) ([]model.Standing, error) {
	if limit < 0 {
		return nil, remote.ErrInvalidLimit
	}
	if err := s.enter(ctx, "fetch_leaderboard"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	rows := make([]model.Standing, 0, len(s.players))
	for _, snap := range s.players {
		rows = append(rows, remote.StandingOf(snap))
	}
	s.mu.RUnlock()

	ranking.Sort(rows)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// UpdateAchievement implements remote.Store.
func (s *Store) UpdateAchievement(ctx context.Context, userID, achievementID string, patch model.AchievementPatch) error {
	if err := s.enter(ctx, "update_achievement"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.load(userID)
	remote.MergeState(&snap, achievementID, patch)
	snap.UpdatedAt = s.now()
	s.players[userID] = snap
	return nil
}

// load returns the stored snapshot or a fresh level-1 one. Must be called
// with s.mu held.
func (s *Store) load(userID string) model.Snapshot {
	if snap, ok := s.players[userID]; ok {
		return snap.Clone()
	}
	return model.Snapshot{UserID: userID, Level: 1}
}
