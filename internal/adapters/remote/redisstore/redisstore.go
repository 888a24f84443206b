// Package redisstore keeps game data in Redis.
//
// Each player is one JSON document under "<prefix>player:<id>". The
// leaderboard is a sorted set "<prefix>leaderboard" scored by total
// experience. Read-modify-write updates run in WATCH/MULTI transactions
// and are retried when another writer touched the document.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/helpquest/internal/adapters/remote"
	"github.com/okian/helpquest/internal/domain/model"
	"github.com/okian/helpquest/internal/domain/ranking"
	"github.com/okian/helpquest/pkg/logger"
)

var (
	// ErrConnection is returned when Redis cannot be reached.
	ErrConnection = errors.New("redisstore: connection failed")
	// ErrConflict is returned when a transaction kept losing to concurrent writers.
	ErrConflict = errors.New("redisstore: too many concurrent writers")
	// ErrCorrupt is returned for documents that do not decode.
	ErrCorrupt = errors.New("redisstore: corrupt document")
)

// Config holds Redis connection configuration.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int

	// KeyPrefix namespaces every key written by the store.
	KeyPrefix string

	PoolSize     int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// TxRetries bounds optimistic transaction retries.
	TxRetries int
}

// DefaultConfig returns a local development configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		KeyPrefix:    "helpquest:",
		PoolSize:     10,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		TxRetries:    5,
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock stamping UpdatedAt.
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

// Store implements remote.Store on Redis.
type Store struct {
	client    redis.UniversalClient
	prefix    string
	txRetries int
	now       func() time.Time
	log       logger.Logger
}

var _ remote.Store = (*Store)(nil)

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	s := New(client, cfg.KeyPrefix, opts...)
	if cfg.TxRetries > 0 {
		s.txRetries = cfg.TxRetries
	}
	return s, nil
}

// New wraps an existing client.
func New(client redis.UniversalClient, prefix string, opts ...Option) *Store {
	s := &Store{
		client:    client,
		prefix:    prefix,
		txRetries: DefaultConfig().TxRetries,
		now:       time.Now,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) playerKey(userID string) string {
	return s.prefix + "player:" + userID
}

func (s *Store) leaderboardKey() string {
	return s.prefix + "leaderboard"
}

// Fetch implements remote.Store.
func (s *Store) Fetch(ctx context.Context, userID string) (model.Snapshot, error) {
	raw, err := s.client.Get(ctx, s.playerKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Snapshot{}, remote.ErrNotFound
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("fetch %s: %w", userID, err)
	}
	return decode(raw)
}

// UpdateData implements remote.Store.
func (s *Store) UpdateData(ctx context.Context, userID string, patch model.PlayerPatch) error {
	if err := remote.ValidatePatch(patch); err != nil {
		return err
	}
	return s.mutate(ctx, userID, func(snap *model.Snapshot, _ bool) bool {
		snap.Apply(patch)
		return true
	})
}

// SyncData implements remote.Store. A snapshot whose revision is behind the
// stored one is dropped without error.
func (s *Store) SyncData(ctx context.Context, userID string, snapshot model.Snapshot) error {
	if err := remote.ValidateSnapshot(snapshot); err != nil {
		return err
	}
	return s.mutate(ctx, userID, func(snap *model.Snapshot, found bool) bool {
		return replace(snap, found, snapshot)
	})
}

// UpdateAchievement implements remote.Store.
func (s *Store) UpdateAchievement(ctx context.Context, userID, achievementID string, patch model.AchievementPatch) error {
	return s.mutate(ctx, userID, func(snap *model.Snapshot, _ bool) bool {
		remote.MergeState(snap, achievementID, patch)
		return true
	})
}

// FetchLeaderboard implements remote.Store. The sorted set only knows
// points, so members tied with the last score are read too and the rows
// are put in full leaderboard order before the limit is applied.
func (s *Store) FetchLeaderboard(ctx context.Context, limit int) ([]model.Standing, error) {
	if limit < 0 {
		return nil, remote.ErrInvalidLimit
	}
	top, err := s.client.ZRevRangeWithScores(ctx, s.leaderboardKey(), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch leaderboard: %w", err)
	}
	if len(top) == 0 {
		return []model.Standing{}, nil
	}

	ids := make([]string, 0, len(top))
	seen := make(map[string]struct{}, len(top))
	add := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, z := range top {
		if id, ok := z.Member.(string); ok {
			add(id)
		}
	}
	if limit > 0 && len(top) == limit {
		cut := strconv.FormatFloat(top[len(top)-1].Score, 'f', -1, 64)
		tied, err := s.client.ZRangeByScore(ctx, s.leaderboardKey(), &redis.ZRangeBy{Min: cut, Max: cut}).Result()
		if err != nil {
			return nil, fmt.Errorf("fetch leaderboard ties: %w", err)
		}
		for _, id := range tied {
			add(id)
		}
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.playerKey(id)
	}
	docs, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch leaderboard: %w", err)
	}
	rows := standings(ctx, s.log, docs)
	ranking.Sort(rows)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// mutate runs fn against the stored snapshot of userID inside a WATCH
// transaction. fn returns false to leave the document untouched.
func (s *Store) mutate(ctx context.Context, userID string, fn func(snap *model.Snapshot, found bool) bool) error {
	key := s.playerKey(userID)
	txf := func(tx *redis.Tx) error {
		snap := model.Snapshot{UserID: userID, Level: 1}
		found := true
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			found = false
		case err != nil:
			return err
		default:
			if snap, err = decode(raw); err != nil {
				return err
			}
		}
		if !fn(&snap, found) {
			return nil
		}
		snap.UserID = userID
		snap.UpdatedAt = s.now()
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		points := remote.StandingOf(snap).Points
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, s.leaderboardKey(), redis.Z{Score: float64(points), Member: userID})
			return nil
		})
		return err
	}

	for i := 0; i < s.txRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			s.log.Debug(ctx, "transaction conflict, retrying",
				logger.String("user", userID), logger.Int("attempt", i+1))
			continue
		}
		return fmt.Errorf("update %s: %w", userID, err)
	}
	return ErrConflict
}

// replace installs incoming over cur unless it is behind the stored revision.
func replace(cur *model.Snapshot, found bool, incoming model.Snapshot) bool {
	if found && incoming.Revision < cur.Revision {
		return false
	}
	*cur = incoming.Clone()
	return true
}

func decode(raw []byte) (model.Snapshot, error) {
	var snap model.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return snap, nil
}

// standings decodes MGET results in order. Missing or corrupt documents
// are skipped.
func standings(ctx context.Context, log logger.Logger, docs []any) []model.Standing {
	out := make([]model.Standing, 0, len(docs))
	for _, d := range docs {
		str, ok := d.(string)
		if !ok {
			continue
		}
		snap, err := decode([]byte(str))
		if err != nil {
			log.Warn(ctx, "skipping leaderboard document", logger.Error(err))
			continue
		}
		out = append(out, remote.StandingOf(snap))
	}
	return out
}
