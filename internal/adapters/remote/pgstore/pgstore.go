// Package pgstore keeps game data in PostgreSQL.
//
// Counters live in one players row per user; achievements in
// player_achievements. Every write locks the player row, merges in Go
// with the same rules as the other stores, and writes back.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/helpquest/internal/adapters/remote"
	"github.com/okian/helpquest/internal/domain/model"
	"github.com/okian/helpquest/pkg/logger"
)

// ErrMigrationFailed is returned when the schema cannot be applied.
var ErrMigrationFailed = errors.New("pgstore: migration failed")

// Config holds PostgreSQL pool configuration.
type Config struct {
	DSN               string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// DefaultConfig returns pool defaults for dsn.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:               dsn,
		MaxConns:          10,
		MinConns:          2,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
	}
}

// PoolConfig returns the pgxpool configuration.
func (c Config) PoolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if c.MaxConns > 0 {
		pc.MaxConns = c.MaxConns
	}
	if c.MinConns > 0 {
		pc.MinConns = c.MinConns
	}
	if c.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = c.MaxConnLifetime
	}
	if c.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = c.MaxConnIdleTime
	}
	if c.HealthCheckPeriod > 0 {
		pc.HealthCheckPeriod = c.HealthCheckPeriod
	}
	return pc, nil
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock stamping updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// DB is the part of *pgxpool.Pool the store uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// Store implements remote.Store on PostgreSQL.
type Store struct {
	pool DB
	now  func() time.Time
	log  logger.Logger
}

var _ remote.Store = (*Store)(nil)

// Connect opens a pool, verifies it and applies the schema.
func Connect(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	pc, err := cfg.PoolConfig()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := New(pool, opts...)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool.
func New(pool DB, opts ...Option) *Store {
	s := &Store{pool: pool, now: time.Now, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}
	s.log.Debug(ctx, "schema applied")
	return nil
}

const selectPlayer = `
SELECT user_id, name, avatar, level, experience, completed_quest_count,
       total_quest_count, completed_quests, revision, updated_at
FROM players WHERE user_id = $1`

const selectAchievements = `
SELECT achievement_id, unlocked, unlocked_at, progress_current, progress_total
FROM player_achievements WHERE user_id = $1 ORDER BY achievement_id`

// Fetch implements remote.Store.
func (s *Store) Fetch(ctx context.Context, userID string) (model.Snapshot, error) {
	var snap model.Snapshot
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		snap, err = load(ctx, tx, userID, false)
		return err
	})
	if err != nil {
		return model.Snapshot{}, err
	}
	return snap, nil
}

// UpdateData implements remote.Store.
func (s *Store) UpdateData(ctx context.Context, userID string, patch model.PlayerPatch) error {
	if err := remote.ValidatePatch(patch); err != nil {
		return err
	}
	return s.mutate(ctx, userID, func(snap *model.Snapshot, _ bool) (bool, bool) {
		snap.Apply(patch)
		return true, false
	})
}

// SyncData implements remote.Store. A snapshot whose revision is behind the
// stored one is dropped without error.
func (s *Store) SyncData(ctx context.Context, userID string, snapshot model.Snapshot) error {
	if err := remote.ValidateSnapshot(snapshot); err != nil {
		return err
	}
	return s.mutate(ctx, userID, func(snap *model.Snapshot, found bool) (bool, bool) {
		if found && snapshot.Revision < snap.Revision {
			return false, false
		}
		*snap = snapshot.Clone()
		return true, true
	})
}

// UpdateAchievement implements remote.Store.
func (s *Store) UpdateAchievement(ctx context.Context, userID, achievementID string, patch model.AchievementPatch) error {
	return s.mutate(ctx, userID, func(snap *model.Snapshot, _ bool) (bool, bool) {
		remote.MergeState(snap, achievementID, patch)
		return true, false
	})
}

const selectLeaderboard = `
SELECT p.user_id, p.name, p.level, p.points, p.completed_quest_count,
       (SELECT COUNT(*) FROM player_achievements a
         WHERE a.user_id = p.user_id AND a.unlocked) AS achievement_count
FROM players p
ORDER BY p.points DESC, p.completed_quest_count DESC, p.user_id ASC
LIMIT $1`

// FetchLeaderboard implements remote.Store.
func (s *Store) FetchLeaderboard(ctx context.Context, limit int) ([]model.Standing, error) {
	if limit < 0 {
		return nil, remote.ErrInvalidLimit
	}
	rows, err := s.pool.Query(ctx, selectLeaderboard, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("fetch leaderboard: %w", err)
	}
	defer rows.Close()

	out := []model.Standing{}
	for rows.Next() {
		var (
			st    model.Standing
			count int64
			pts   int64
		)
		if err := rows.Scan(&st.ID, &st.Name, &st.Level, &pts, &st.CompletedQuestCount, &count); err != nil {
			return nil, fmt.Errorf("scan standing: %w", err)
		}
		st.Points = int(pts)
		st.AchievementCount = int(count)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch leaderboard: %w", err)
	}
	return out, nil
}

// mutate loads the locked snapshot of userID, lets fn change it and writes
// it back in the same transaction. fn reports whether to write and whether
// the achievement set was replaced rather than merged.
func (s *Store) mutate(ctx context.Context, userID string, fn func(snap *model.Snapshot, found bool) (write, replaced bool)) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		snap, err := load(ctx, tx, userID, true)
		found := true
		if errors.Is(err, remote.ErrNotFound) {
			snap, found = model.Snapshot{UserID: userID, Level: 1}, false
		} else if err != nil {
			return err
		}

		write, replaced := fn(&snap, found)
		if !write {
			return nil
		}
		snap.UserID = userID
		snap.UpdatedAt = s.now()
		return save(ctx, tx, snap, replaced)
	})
	if err != nil {
		return fmt.Errorf("update %s: %w", userID, err)
	}
	return nil
}

func load(ctx context.Context, tx pgx.Tx, userID string, lock bool) (model.Snapshot, error) {
	q := selectPlayer
	if lock {
		q += " FOR UPDATE"
	}
	var (
		snap model.Snapshot
		exp  int64
	)
	err := tx.QueryRow(ctx, q, userID).Scan(
		&snap.UserID, &snap.Name, &snap.Avatar, &snap.Level, &exp,
		&snap.CompletedQuestCount, &snap.TotalQuestCount, &snap.CompletedQuests,
		&snap.Revision, &snap.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Snapshot{}, remote.ErrNotFound
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("load player: %w", err)
	}
	snap.Experience = int(exp)

	rows, err := tx.Query(ctx, selectAchievements, userID)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("load achievements: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			st             model.AchievementState
			current, total *int32
		)
		if err := rows.Scan(&st.ID, &st.Unlocked, &st.UnlockedAt, &current, &total); err != nil {
			return model.Snapshot{}, fmt.Errorf("scan achievement: %w", err)
		}
		st.Progress = progressOf(current, total)
		snap.Achievements = append(snap.Achievements, st)
	}
	if err := rows.Err(); err != nil {
		return model.Snapshot{}, fmt.Errorf("load achievements: %w", err)
	}
	return snap, nil
}

const upsertPlayer = `
INSERT INTO players (user_id, name, avatar, level, experience, completed_quest_count,
                     total_quest_count, completed_quests, points, revision, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (user_id) DO UPDATE SET
    name = EXCLUDED.name,
    avatar = EXCLUDED.avatar,
    level = EXCLUDED.level,
    experience = EXCLUDED.experience,
    completed_quest_count = EXCLUDED.completed_quest_count,
    total_quest_count = EXCLUDED.total_quest_count,
    completed_quests = EXCLUDED.completed_quests,
    points = EXCLUDED.points,
    revision = GREATEST(players.revision, EXCLUDED.revision),
    updated_at = EXCLUDED.updated_at`

const upsertAchievement = `
INSERT INTO player_achievements (user_id, achievement_id, unlocked, unlocked_at,
                                 progress_current, progress_total)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id, achievement_id) DO UPDATE SET
    unlocked = EXCLUDED.unlocked,
    unlocked_at = EXCLUDED.unlocked_at,
    progress_current = EXCLUDED.progress_current,
    progress_total = EXCLUDED.progress_total`

func save(ctx context.Context, tx pgx.Tx, snap model.Snapshot, replaced bool) error {
	quests := snap.CompletedQuests
	if quests == nil {
		quests = []string{}
	}
	if _, err := tx.Exec(ctx, upsertPlayer,
		snap.UserID, snap.Name, snap.Avatar, snap.Level, int64(snap.Experience),
		snap.CompletedQuestCount, snap.TotalQuestCount, quests,
		int64(remote.StandingOf(snap).Points), snap.Revision, snap.UpdatedAt,
	); err != nil {
		return fmt.Errorf("store player: %w", err)
	}

	batch := &pgx.Batch{}
	if replaced {
		batch.Queue(`DELETE FROM player_achievements WHERE user_id = $1`, snap.UserID)
	}
	for _, a := range snap.Achievements {
		current, total := progressColumns(a.Progress)
		batch.Queue(upsertAchievement, snap.UserID, a.ID, a.Unlocked, a.UnlockedAt, current, total)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("store achievements: %w", err)
	}
	return nil
}

func progressColumns(p *model.Progress) (current, total *int32) {
	if p == nil {
		return nil, nil
	}
	c, t := int32(p.Current), int32(p.Total)
	return &c, &t
}

func progressOf(current, total *int32) *model.Progress {
	if current == nil || total == nil {
		return nil
	}
	return &model.Progress{Current: int(*current), Total: int(*total)}
}

// limitArg maps the "0 means all" convention onto LIMIT NULL.
func limitArg(limit int) *int64 {
	if limit == 0 {
		return nil
	}
	n := int64(limit)
	return &n
}
