// Package progression computes experience thresholds and level rollover.
//
// Everything here is pure: no I/O, no clocks, no shared state. The Facade
// calls into it under its own lock and turns the returned level steps into
// events.
package progression

import (
	"fmt"
	"math"

	"github.com/okian/helpquest/internal/domain/model"
)

// Default curve constants: threshold = floor(base * growth^(level-1)).
const (
	defaultBase   = 100
	defaultGrowth = 1.5
	minLevel      = 1
)

// Option configures a Curve.
type Option func(*Curve)

// WithBase sets the threshold of level 1.
func WithBase(base int) Option {
	return func(c *Curve) {
		if base > 0 {
			c.base = float64(base)
		}
	}
}

// WithGrowth sets the per-level multiplier. Values <= 1 are ignored so the
// curve stays strictly increasing.
func WithGrowth(growth float64) Option {
	return func(c *Curve) {
		if growth > 1 {
			c.growth = growth
		}
	}
}

// Curve is an exponential level curve.
type Curve struct {
	base   float64
	growth float64
}

// NewCurve creates a curve with the default 100 * 1.5^(level-1) shape.
func NewCurve(opts ...Option) *Curve {
	c := &Curve{
		base:   defaultBase,
		growth: defaultGrowth,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var standard = NewCurve() //nolint:gochecknoglobals // immutable default curve

// Result is the outcome of a single experience grant.
type Result struct {
	Player model.Player
	// LevelsGained is len(LevelsReached), kept for callers that only need the count.
	LevelsGained int
	// LevelsReached lists every level crossed, in order.
	LevelsReached []int
}

// Threshold returns the experience needed to leave level. Levels below 1
// are treated as 1. The value saturates at math.MaxInt when the curve
// outgrows the integer range.
func (c *Curve) Threshold(level int) int {
	if level < minLevel {
		level = minLevel
	}
	v := math.Floor(c.base * math.Pow(c.growth, float64(level-minLevel)))
	if math.IsInf(v, 0) || math.IsNaN(v) || v >= float64(math.MaxInt) {
		return math.MaxInt
	}
	return int(v)
}

// AddExperience adds amount to p and rolls over as many levels as needed.
func (c *Curve) AddExperience(p model.Player, amount int) (Result, error) {
	if amount < 0 {
		return Result{Player: p}, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	p, reached := c.normalize(p)
	if p.Experience > math.MaxInt-amount {
		return Result{Player: p}, fmt.Errorf("%w: %d + %d", ErrOverflow, p.Experience, amount)
	}
	p.Experience += amount

	p, more := c.normalize(p)
	reached = append(reached, more...)
	return Result{
		Player:        p,
		LevelsGained:  len(reached),
		LevelsReached: reached,
	}, nil
}

// Normalize clamps level and experience into range and applies any pending
// rollover, so that Experience < Threshold(Level) holds afterwards.
func (c *Curve) Normalize(p model.Player) model.Player {
	p, _ = c.normalize(p)
	return p
}

func (c *Curve) normalize(p model.Player) (model.Player, []int) {
	if p.Level < minLevel {
		p.Level = minLevel
	}
	if p.Experience < 0 {
		p.Experience = 0
	}
	var reached []int
	for {
		t := c.Threshold(p.Level)
		if p.Experience < t {
			break
		}
		p.Experience -= t
		p.Level++
		reached = append(reached, p.Level)
	}
	return p, reached
}

// TotalExperience returns the experience accumulated to reach (level, exp):
// the sum of every threshold below level plus exp. Saturates at math.MaxInt.
func (c *Curve) TotalExperience(level, exp int) int {
	if exp < 0 {
		exp = 0
	}
	total := exp
	for l := minLevel; l < level; l++ {
		t := c.Threshold(l)
		if total > math.MaxInt-t {
			return math.MaxInt
		}
		total += t
	}
	return total
}

// NextLevelThreshold is Threshold on the default curve.
func NextLevelThreshold(level int) int { return standard.Threshold(level) }

// AddExperience is AddExperience on the default curve.
func AddExperience(p model.Player, amount int) (Result, error) {
	return standard.AddExperience(p, amount)
}

// Normalize is Normalize on the default curve.
func Normalize(p model.Player) model.Player { return standard.Normalize(p) }

// TotalExperience is TotalExperience on the default curve.
func TotalExperience(level, exp int) int { return standard.TotalExperience(level, exp) }
