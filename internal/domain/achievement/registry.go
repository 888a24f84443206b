// Package achievement evaluates unlock rules against player state.
package achievement

import (
	"fmt"

	"github.com/okian/helpquest/internal/domain/model"
)

// Evaluation is what a rule reports for one player state.
type Evaluation struct {
	Satisfied bool
	// Progress is set by counter rules only.
	Progress *model.Progress
}

// Rule is a pure predicate over player state.
type Rule func(p model.Player) Evaluation

// Boolean wraps a plain predicate as a Rule.
func Boolean(pred func(p model.Player) bool) Rule {
	return func(p model.Player) Evaluation {
		return Evaluation{Satisfied: pred(p)}
	}
}

// Counter builds a progress rule that is satisfied once current reaches total.
// The reported current is capped at total.
func Counter(total int, current func(p model.Player) int) Rule {
	return func(p model.Player) Evaluation {
		c := current(p)
		if c < 0 {
			c = 0
		}
		if c > total {
			c = total
		}
		return Evaluation{
			Satisfied: c >= total,
			Progress:  &model.Progress{Current: c, Total: total},
		}
	}
}

// Definition binds an achievement template to its rule. A nil Rule makes
// the achievement manual-only: it can be unlocked directly but never by
// evaluation.
type Definition struct {
	Template model.Achievement
	Rule     Rule
}

// Registry maps achievement ids to definitions, preserving registration order.
type Registry struct {
	defs  map[string]Definition
	order []string
}

// NewRegistry creates a registry holding defs.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a definition.
func (r *Registry) Register(d Definition) error {
	id := d.Template.ID
	if id == "" {
		return ErrInvalidDefinition
	}
	if _, ok := r.defs[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, id)
	}
	if d.Template.PointsReward < 0 {
		return fmt.Errorf("%w: %s has negative reward", ErrInvalidDefinition, id)
	}
	r.defs[id] = d
	r.order = append(r.order, id)
	return nil
}

// Lookup returns the definition for id.
func (r *Registry) Lookup(id string) (Definition, bool) {
	d, ok := r.defs[id]
	return d, ok
}

// Len returns the number of definitions.
func (r *Registry) Len() int { return len(r.order) }

// Instantiate returns a fresh, locked copy of every achievement in
// registration order. Counter rules start at zero progress.
func (r *Registry) Instantiate() []model.Achievement {
	out := make([]model.Achievement, 0, len(r.order))
	for _, id := range r.order {
		a := r.defs[id].Template.Clone()
		a.Unlocked = false
		a.UnlockedAt = nil
		if a.Progress != nil {
			a.Progress.Current = 0
		}
		out = append(out, a)
	}
	return out
}
