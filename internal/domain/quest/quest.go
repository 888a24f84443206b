// Package quest holds the catalog of quests a player can complete.
package quest

import (
	"errors"
	"fmt"
	"sort"

	"github.com/okian/helpquest/internal/domain/model"
)

var (
	// ErrUnknownQuest is returned for ids absent from the catalog.
	ErrUnknownQuest = errors.New("unknown quest")
	// ErrQuestLocked is returned when the player level is below the quest minimum.
	ErrQuestLocked = errors.New("quest locked")
	// ErrDuplicateQuest is returned when a catalog lists an id twice.
	ErrDuplicateQuest = errors.New("duplicate quest")
)

// Quest is one completable unit of work and the experience it pays.
type Quest struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Category    model.Category `json:"category"`
	Points      int            `json:"points"`
	MinLevel    int            `json:"minLevel"`
}

// Available reports whether a player at level may take q.
func (q Quest) Available(level int) bool {
	return level >= q.MinLevel
}

// Catalog resolves quest ids.
type Catalog interface {
	Lookup(id string) (Quest, error)
	List() []Quest
}

// StaticCatalog is an immutable in-memory Catalog.
type StaticCatalog struct {
	quests map[string]Quest
}

// NewStaticCatalog builds a catalog from quests.
func NewStaticCatalog(quests ...Quest) (*StaticCatalog, error) {
	c := &StaticCatalog{quests: make(map[string]Quest, len(quests))}
	for _, q := range quests {
		if _, ok := c.quests[q.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateQuest, q.ID)
		}
		if q.Points < 0 {
			return nil, fmt.Errorf("quest %s: negative points", q.ID)
		}
		c.quests[q.ID] = q
	}
	return c, nil
}

// Lookup returns the quest with id.
func (c *StaticCatalog) Lookup(id string) (Quest, error) {
	q, ok := c.quests[id]
	if !ok {
		return Quest{}, fmt.Errorf("%w: %s", ErrUnknownQuest, id)
	}
	return q, nil
}

// List returns every quest ordered by minimum level, then id.
func (c *StaticCatalog) List() []Quest {
	out := make([]Quest, 0, len(c.quests))
	for _, q := range c.quests {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MinLevel != out[j].MinLevel {
			return out[i].MinLevel < out[j].MinLevel
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// DefaultQuests is the built-in volunteer quest set.
func DefaultQuests() []Quest {
	return []Quest{
		{ID: "deliver-groceries", Title: "Deliver groceries", Description: "Bring groceries to a neighbour who cannot leave home", Category: model.CategorySocial, Points: 50, MinLevel: 1},
		{ID: "phone-checkin", Title: "Phone check-in", Description: "Call an elderly resident to see how they are doing", Category: model.CategorySocial, Points: 30, MinLevel: 1},
		{ID: "tutor-session", Title: "Tutoring session", Description: "Help a student with homework for an hour", Category: model.CategoryEducational, Points: 70, MinLevel: 2},
		{ID: "fix-computer", Title: "Fix a computer", Description: "Set up or repair a computer for someone in need", Category: model.CategoryTechnical, Points: 100, MinLevel: 3},
		{ID: "digital-literacy", Title: "Digital literacy class", Description: "Teach basic smartphone skills to a group", Category: model.CategoryEducational, Points: 80, MinLevel: 2},
		{ID: "organize-drive", Title: "Organize a donation drive", Description: "Coordinate a neighbourhood collection", Category: model.CategorySpecial, Points: 150, MinLevel: 5},
	}
}

// DefaultCatalog returns a catalog of DefaultQuests.
func DefaultCatalog() *StaticCatalog {
	c, err := NewStaticCatalog(DefaultQuests()...)
	if err != nil {
		panic(err)
	}
	return c
}
