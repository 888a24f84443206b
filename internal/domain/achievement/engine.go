package achievement

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/helpquest/internal/domain/model"
	"github.com/okian/helpquest/internal/domain/progression"
	"github.com/okian/helpquest/pkg/logger"
)

const defaultMaxPasses = 8

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used to stamp unlock times.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithCurve sets the level curve used to award unlock rewards.
func WithCurve(c *progression.Curve) Option {
	return func(e *Engine) {
		if c != nil {
			e.curve = c
		}
	}
}

// WithMaxPasses caps the evaluate/reward iterations of Settle.
func WithMaxPasses(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxPasses = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// Engine evaluates a Registry against player state.
type Engine struct {
	registry  *Registry
	curve     *progression.Curve
	now       func() time.Time
	maxPasses int
	log       logger.Logger
}

// NewEngine creates an engine over registry.
func NewEngine(registry *Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:  registry,
		curve:     progression.NewCurve(),
		now:       time.Now,
		maxPasses: defaultMaxPasses,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the registry the engine evaluates.
func (e *Engine) Registry() *Registry { return e.registry }

// EvaluateAll runs every rule against p. It returns the updated slice and
// the achievements that unlocked in this call. Unlocked entries are never
// touched, so a second call with the same player yields no unlocks.
// Entries with no registered rule are left as they are.
func (e *Engine) EvaluateAll(p model.Player, achievements []model.Achievement) ([]model.Achievement, []model.Achievement) {
	updated := model.CloneAchievements(achievements)
	var unlocked []model.Achievement
	for i := range updated {
		a := &updated[i]
		if a.Unlocked {
			continue
		}
		def, ok := e.registry.Lookup(a.ID)
		if !ok || def.Rule == nil {
			continue
		}
		ev := def.Rule(p)
		if ev.Progress != nil {
			cur := ev.Progress.Current
			if a.Progress != nil && a.Progress.Current > cur {
				cur = a.Progress.Current
			}
			a.Progress = &model.Progress{Current: cur, Total: ev.Progress.Total}
			if a.Progress.Complete() {
				ev.Satisfied = true
			}
		}
		if ev.Satisfied {
			e.markUnlocked(a)
			unlocked = append(unlocked, a.Clone())
		}
	}
	return updated, unlocked
}

// Unlock unlocks id directly. It returns the unlocked achievement, or nil
// when it was already unlocked, which is not an error.
func (e *Engine) Unlock(achievements []model.Achievement, id string) ([]model.Achievement, *model.Achievement, error) {
	idx := -1
	for i := range achievements {
		if achievements[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return achievements, nil, ErrUnknownAchievement
	}
	if achievements[idx].Unlocked {
		return achievements, nil, nil
	}
	updated := model.CloneAchievements(achievements)
	a := &updated[idx]
	if a.Progress != nil {
		a.Progress.Current = a.Progress.Total
	}
	e.markUnlocked(a)
	out := a.Clone()
	return updated, &out, nil
}

// DefaultProgressTotal is the total given to an achievement that had no
// counter when progress is first reported for it.
const DefaultProgressTotal = 100

// Advance raises the progress of id to current. Progress never goes down
// and an unlocked achievement is left as it is. When the counter reaches
// its total the achievement unlocks and is returned so its reward can be
// paid. changed reports whether anything moved.
func (e *Engine) Advance(achievements []model.Achievement, id string, current int) (updated []model.Achievement, unlocked *model.Achievement, changed bool, err error) {
	if current < 0 {
		return achievements, nil, false, fmt.Errorf("%w: %d", ErrInvalidProgress, current)
	}
	idx := -1
	for i := range achievements {
		if achievements[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return achievements, nil, false, ErrUnknownAchievement
	}
	a := achievements[idx]
	if a.Unlocked || (a.Progress != nil && a.Progress.Current >= current) {
		return achievements, nil, false, nil
	}

	updated = model.CloneAchievements(achievements)
	t := &updated[idx]
	if t.Progress == nil {
		t.Progress = &model.Progress{Total: DefaultProgressTotal}
	}
	t.Progress.Current = min(current, t.Progress.Total)
	if !t.Progress.Complete() {
		return updated, nil, true, nil
	}
	e.markUnlocked(t)
	out := t.Clone()
	return updated, &out, true, nil
}

func (e *Engine) markUnlocked(a *model.Achievement) {
	at := e.now()
	a.Unlocked = true
	a.UnlockedAt = &at
}

// Reward is one unlock together with the experience grant it caused.
type Reward struct {
	Achievement model.Achievement
	Grant       progression.Result
}

// Outcome is the settled result of Settle.
type Outcome struct {
	Player       model.Player
	Achievements []model.Achievement
	Rewards      []Reward
	Passes       int
}

// Settle evaluates, awards rewards for whatever unlocked, and repeats until
// no further unlocks happen. seed holds unlocks made before the call (for
// example a direct Unlock) whose rewards are still owed.
//
// If the state has not settled after the configured number of passes the
// outcome reached so far is returned together with ErrEvaluationLimit.
func (e *Engine) Settle(ctx context.Context, p model.Player, achievements []model.Achievement, seed ...model.Achievement) (Outcome, error) {
	out := Outcome{Player: p, Achievements: model.CloneAchievements(achievements)}
	pending := seed
	for pass := 0; ; pass++ {
		for _, a := range pending {
			grant, err := e.curve.AddExperience(out.Player, a.PointsReward)
			if err != nil {
				return out, err
			}
			out.Player = grant.Player
			out.Rewards = append(out.Rewards, Reward{Achievement: a, Grant: grant})
		}
		if pass >= e.maxPasses {
			e.log.Warn(ctx, "achievement evaluation did not settle",
				logger.String("player", p.ID),
				logger.Int("passes", pass))
			return out, ErrEvaluationLimit
		}
		out.Passes = pass + 1
		out.Achievements, pending = e.EvaluateAll(out.Player, out.Achievements)
		if len(pending) == 0 {
			return out, nil
		}
	}
}
