// Package model contains domain models passed between layers.
package model

// Player is the authoritative progression record for one user.
type Player struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Avatar              string `json:"avatar,omitempty"`
	Level               int    `json:"level"`
	Experience          int    `json:"experience"`
	CompletedQuestCount int    `json:"completedQuestCount"`
	TotalQuestCount     int    `json:"totalQuestCount"`
}

// NewPlayer returns the first-session record: level 1, no experience.
func NewPlayer(id string) Player {
	return Player{
		ID:    id,
		Level: 1,
	}
}

// Profile carries the user-editable part of a Player.
type Profile struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// Profile returns the profile fields of p.
func (p Player) Profile() Profile {
	return Profile{Name: p.Name, Avatar: p.Avatar}
}
