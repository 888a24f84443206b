// Package syncer pushes local game state to the remote store and pulls the
// authoritative snapshot back.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/helpquest/internal/adapters/remote"
	"github.com/okian/helpquest/internal/domain/model"
	"github.com/okian/helpquest/pkg/logger"
	"github.com/okian/helpquest/pkg/metrics"
)

// Default coordinator configuration.
const (
	defaultTimeout          = 5 * time.Second
	defaultLeaderboardLimit = 10
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout bounds a whole exchange.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLeaderboardLimit sets how many standings are pulled per sync.
func WithLeaderboardLimit(n int) Option {
	return func(c *Coordinator) {
		if n >= 0 {
			c.leaderboardLimit = n
		}
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// AchievementDelta is one achievement whose state changed since the last
// successful sync.
type AchievementDelta struct {
	ID    string
	Patch model.AchievementPatch
}

// Push is what one sync sends. When Full is set Snapshot replaces the
// remote record; otherwise Patch and Achievements are applied as partial
// updates.
type Push struct {
	Revision     int64
	Full         bool
	Snapshot     model.Snapshot
	Patch        model.PlayerPatch
	Achievements []AchievementDelta
}

// Pull is what one sync brings back.
type Pull struct {
	Snapshot model.Snapshot
	// Found is false when the remote holds no record for the user.
	Found     bool
	Standings []model.Standing
	// LeaderboardErr is set when standings could not be fetched. It does
	// not fail the sync.
	LeaderboardErr error
}

// Coordinator performs remote exchanges. It holds no game state and is
// safe for concurrent use.
type Coordinator struct {
	remote           remote.Store
	timeout          time.Duration
	leaderboardLimit int
	log              logger.Logger
}

// New creates a coordinator talking to store.
func New(store remote.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		remote:           store,
		timeout:          defaultTimeout,
		leaderboardLimit: defaultLeaderboardLimit,
		log:              logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Exchange pushes p, then fetches the snapshot and the leaderboard. Any
// push or fetch failure, including the timeout, returns an error wrapping
// ErrSyncFailed.
func (c *Coordinator) Exchange(ctx context.Context, userID string, p Push) (Pull, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	pull, err := c.exchange(ctx, userID, p)
	metrics.ObserveSyncLatency(time.Since(start))
	if err != nil {
		metrics.RecordSyncAttempt("failed")
		c.log.Warn(ctx, "sync failed",
			logger.String("user", userID),
			logger.Int64("revision", p.Revision),
			logger.Error(err))
		return Pull{}, fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}
	metrics.RecordSyncAttempt("ok")
	c.log.Debug(ctx, "sync exchanged",
		logger.String("user", userID),
		logger.Int64("revision", p.Revision),
		logger.Int64("remote_revision", pull.Snapshot.Revision),
		logger.Duration("took", time.Since(start)))
	return pull, nil
}

// Fetch pulls the snapshot and leaderboard without pushing. A missing
// remote record is not an error: Found is false.
func (c *Coordinator) Fetch(ctx context.Context, userID string) (Pull, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	pull, err := c.pull(ctx, userID)
	if err != nil {
		metrics.RecordSyncAttempt("failed")
		return Pull{}, fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}
	return pull, nil
}

func (c *Coordinator) exchange(ctx context.Context, userID string, p Push) (Pull, error) {
	if p.Full {
		if err := c.remote.SyncData(ctx, userID, p.Snapshot); err != nil {
			return Pull{}, fmt.Errorf("sync data: %w", err)
		}
	} else {
		if err := c.remote.UpdateData(ctx, userID, p.Patch); err != nil {
			return Pull{}, fmt.Errorf("update data: %w", err)
		}
		for _, d := range p.Achievements {
			if err := c.remote.UpdateAchievement(ctx, userID, d.ID, d.Patch); err != nil {
				return Pull{}, fmt.Errorf("update achievement %s: %w", d.ID, err)
			}
		}
	}
	return c.pull(ctx, userID)
}

func (c *Coordinator) pull(ctx context.Context, userID string) (Pull, error) {
	var pull Pull
	snap, err := c.remote.Fetch(ctx, userID)
	switch {
	case err == nil:
		pull.Snapshot = snap
		pull.Found = true
	case errors.Is(err, remote.ErrNotFound):
	default:
		return Pull{}, fmt.Errorf("fetch: %w", err)
	}

	standings, err := c.remote.FetchLeaderboard(ctx, c.leaderboardLimit)
	if err != nil {
		c.log.Warn(ctx, "leaderboard fetch failed", logger.Error(err))
		pull.LeaderboardErr = err
	} else {
		pull.Standings = standings
	}
	return pull, nil
}
