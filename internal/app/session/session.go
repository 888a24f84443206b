// Package session is the player facade: the single state object the rest
// of the application reads from and dispatches mutations into.
//
// Every public mutation runs to completion under one lock and leaves the
// player, achievements and event history consistent before returning.
// Remote I/O happens only inside Sync and Hydrate, with the lock released.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/helpquest/internal/app/syncer"
	"github.com/okian/helpquest/internal/domain/achievement"
	"github.com/okian/helpquest/internal/domain/dedupe"
	"github.com/okian/helpquest/internal/domain/model"
	"github.com/okian/helpquest/internal/domain/notify"
	"github.com/okian/helpquest/internal/domain/progression"
	"github.com/okian/helpquest/internal/domain/quest"
	"github.com/okian/helpquest/internal/domain/ranking"
	"github.com/okian/helpquest/pkg/logger"
)

// Sources attributed to experience grants made by the facade itself.
const (
	SourceAchievementReward = "achievement reward"
	SourceManual            = "manual"
	questSourcePrefix       = "quest: "
	defaultLeaderboardLimit = 10
)

// Event id prefixes. Unlocks and completions happen at most once between
// resets, so their events carry stable ids and the notification queue
// drops a second announcement.
const (
	unlockEventPrefix = "achievement:"
	questEventPrefix  = "quest:"
)

// Option configures a Facade.
type Option func(*Facade)

// WithEngine sets the achievement engine.
func WithEngine(e *achievement.Engine) Option {
	return func(f *Facade) {
		if e != nil {
			f.engine = e
		}
	}
}

// WithCurve sets the level curve for direct and quest grants. It should
// match the curve of the engine.
func WithCurve(c *progression.Curve) Option {
	return func(f *Facade) {
		if c != nil {
			f.curve = c
		}
	}
}

// WithCatalog sets the quest catalog.
func WithCatalog(c quest.Catalog) Option {
	return func(f *Facade) {
		if c != nil {
			f.catalog = c
		}
	}
}

// WithHistoryLimit sets the event history cap.
func WithHistoryLimit(n int) Option {
	return func(f *Facade) {
		if n > 0 {
			f.historyLimit = n
		}
	}
}

// WithDeduper sets the event id guard of the notification queue.
func WithDeduper(d dedupe.Deduper) Option {
	return func(f *Facade) {
		f.deduper = d
	}
}

// WithDedupeSize bounds the event ids remembered by the facade's own
// deduper. Ignored when WithDeduper is also given.
func WithDedupeSize(n int) Option {
	return func(f *Facade) {
		if n > 0 {
			f.dedupeSize = n
		}
	}
}

// WithLeaderboardLimit sets how many ranked entries are kept.
func WithLeaderboardLimit(n int) Option {
	return func(f *Facade) {
		if n >= 0 {
			f.leaderboardLimit = n
		}
	}
}

// WithClock sets the clock used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(f *Facade) {
		if now != nil {
			f.now = now
		}
	}
}

// WithLogger sets the facade logger.
func WithLogger(l logger.Logger) Option {
	return func(f *Facade) {
		if l != nil {
			f.log = l
		}
	}
}

// State is a consistent, deep-copied view of a facade. Queued holds the
// notifications waiting behind the open one; Standing is the ranked entry
// of the owner, nil when outside the leaderboard.
type State struct {
	Player             model.Player             `json:"player"`
	NextLevelThreshold int                      `json:"nextLevelThreshold"`
	Achievements       []model.Achievement      `json:"achievements"`
	CompletedQuests    []string                 `json:"completedQuests"`
	History            []model.GameEvent        `json:"history"`
	Notification       model.NotificationSlot   `json:"notification"`
	Queued             []model.GameEvent        `json:"queued"`
	Leaderboard        []model.LeaderboardEntry `json:"leaderboard"`
	Standing           *model.LeaderboardEntry  `json:"standing,omitempty"`
	Revision           int64                    `json:"revision"`
	Hydrated           bool                     `json:"hydrated"`
	LastSyncAt         *time.Time               `json:"lastSyncAt,omitempty"`
	LastSyncError      string                   `json:"lastSyncError,omitempty"`
}

// Facade owns the game state of one signed-in user.
type Facade struct {
	mu sync.Mutex

	userID       string
	player       model.Player
	achievements []model.Achievement
	quests       []string
	questSet     map[string]struct{}
	queue        *notify.Queue
	leaderboard  []model.LeaderboardEntry

	engine  *achievement.Engine
	curve   *progression.Curve
	catalog quest.Catalog
	coord   *syncer.Coordinator

	// revision counts local mutations; every push carries it.
	revision int64
	// dirty maps achievement ids to the revision at which they changed.
	dirty map[string]int64
	// fullRev is the revision from which the next push must replace the
	// remote record; zero when partial pushes suffice.
	fullRev int64
	// gen numbers sync attempts; appliedGen is the newest one applied.
	gen        uint64
	appliedGen uint64
	// unsynced is progress made before the remote baseline was adopted.
	unsynced syncer.Unsynced

	hydrated    bool
	closed      bool
	lastSyncAt  time.Time
	lastSyncErr error

	historyLimit     int
	leaderboardLimit int
	deduper          dedupe.Deduper
	dedupeSize       int
	now              func() time.Time
	log              logger.Logger
}

// New creates the facade of userID. State starts at level 1 with every
// achievement locked; call Hydrate to adopt the remote baseline.
func New(userID string, coord *syncer.Coordinator, opts ...Option) *Facade {
	f := &Facade{
		userID:           userID,
		player:           model.NewPlayer(userID),
		questSet:         make(map[string]struct{}),
		coord:            coord,
		dirty:            make(map[string]int64),
		historyLimit:     notify.DefaultHistoryLimit,
		leaderboardLimit: defaultLeaderboardLimit,
		now:              time.Now,
		log:              logger.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.curve == nil {
		f.curve = progression.NewCurve()
	}
	if f.engine == nil {
		f.engine = achievement.NewEngine(achievement.DefaultRegistry(),
			achievement.WithCurve(f.curve),
			achievement.WithClock(f.now),
			achievement.WithLogger(f.log))
	}
	if f.catalog == nil {
		f.catalog = quest.DefaultCatalog()
	}
	qopts := []notify.Option{notify.WithHistoryLimit(f.historyLimit), notify.WithLogger(f.log)}
	if f.deduper == nil && f.dedupeSize > 0 {
		f.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(f.dedupeSize))
	}
	if f.deduper != nil {
		qopts = append(qopts, notify.WithDeduper(f.deduper))
	}
	f.queue = notify.New(qopts...)
	f.achievements = f.engine.Registry().Instantiate()
	return f
}

// UserID returns the id of the session owner.
func (f *Facade) UserID() string { return f.userID }

// Player returns a copy of the player.
func (f *Facade) Player() model.Player {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.player
}

// Achievements returns a copy of the achievements.
func (f *Facade) Achievements() []model.Achievement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return model.CloneAchievements(f.achievements)
}

// History returns the capped event history, newest first.
func (f *Facade) History() []model.GameEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.History()
}

// Notification returns the notification slot.
func (f *Facade) Notification() model.NotificationSlot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.Slot()
}

// Leaderboard returns the last ranked leaderboard.
func (f *Facade) Leaderboard() []model.LeaderboardEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.LeaderboardEntry(nil), f.leaderboard...)
}

// LastSyncError returns the error of the last applied sync, nil if it succeeded.
func (f *Facade) LastSyncError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSyncErr
}

// Revision returns the local revision.
func (f *Facade) Revision() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revision
}

// State returns a consistent view of everything at once.
func (f *Facade) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := State{
		Player:             f.player,
		NextLevelThreshold: f.curve.Threshold(f.player.Level),
		Achievements:       model.CloneAchievements(f.achievements),
		CompletedQuests:    append([]string(nil), f.quests...),
		History:            f.queue.History(),
		Notification:       f.queue.Slot(),
		Queued:             f.queue.Pending(),
		Leaderboard:        append([]model.LeaderboardEntry(nil), f.leaderboard...),
		Revision:           f.revision,
		Hydrated:           f.hydrated,
	}
	if !f.lastSyncAt.IsZero() {
		at := f.lastSyncAt
		st.LastSyncAt = &at
	}
	if e, err := ranking.Position(f.leaderboard, f.userID); err == nil {
		st.Standing = &e
	}
	if f.lastSyncErr != nil {
		st.LastSyncError = f.lastSyncErr.Error()
	}
	return st
}

// Close tears the session down. Later calls return ErrClosed and in-flight
// syncs are discarded.
func (f *Facade) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	f.log.Debug(ctx, "session closed", logger.String("user", f.userID), logger.Int64("revision", f.revision))
	return nil
}

// Closed reports whether Close was called.
func (f *Facade) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Facade) newEvent(t model.EventType, title string) model.GameEvent {
	return model.GameEvent{
		ID:        uuid.NewString(),
		Type:      t,
		Title:     title,
		Timestamp: f.now(),
	}
}

// bump advances the local revision. Must be called with f.mu held.
func (f *Facade) bump() int64 {
	f.revision++
	return f.revision
}
