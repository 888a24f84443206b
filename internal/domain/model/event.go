package model

import "time"

// EventType names the kind of progression change a GameEvent records.
type EventType string

// Game event types.
const (
	EventPointsEarned        EventType = "points_earned"
	EventLevelUp             EventType = "level_up"
	EventAchievementUnlocked EventType = "achievement_unlocked"
	EventQuestCompleted      EventType = "quest_completed"
	EventSystem              EventType = "system"
)

// GameEvent is an immutable record of a progression change.
// Points, Level and Achievement are optional and left zero when absent.
type GameEvent struct {
	ID          string       `json:"id"`
	Type        EventType    `json:"type"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Points      int          `json:"points,omitempty"`
	Level       int          `json:"level,omitempty"`
	Achievement *Achievement `json:"achievement,omitempty"`
	// Source attributes the event to what caused it, e.g. "achievement reward".
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Clone returns a deep copy of e.
func (e GameEvent) Clone() GameEvent {
	cp := e
	if e.Achievement != nil {
		a := e.Achievement.Clone()
		cp.Achievement = &a
	}
	return cp
}

// NotificationSlot is the transient "currently displayed" notification.
type NotificationSlot struct {
	Current *GameEvent `json:"current,omitempty"`
	Open    bool       `json:"open"`
	// Pending counts events queued behind Current.
	Pending int `json:"pending"`
}
