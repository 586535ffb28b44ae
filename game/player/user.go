package player

import "time"

// Role separates farmers from administrators.
type Role string

const (
	RoleFarmer Role = "farmer"
	RoleAdmin  Role = "admin"
)

// Tier is a badge rank.
type Tier string

const (
	TierBronze Tier = "bronze"
	TierSilver Tier = "silver"
	TierGold   Tier = "gold"
)

// Badge is an achievement held by a user. Badges are never edited after they
// are awarded.
type Badge struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Icon        string    `json:"icon" yaml:"icon"`
	Tier        Tier      `json:"type" yaml:"type"`
	AwardedAt   time.Time `json:"earned_at" yaml:"earned_at"`
}

// User is a roster member as seen by the rest of the service.
type User struct {
	ID                  string  `json:"id" yaml:"id"`
	Username            string  `json:"username" yaml:"username"`
	Name                string  `json:"name" yaml:"name"`
	Role                Role    `json:"role" yaml:"role"`
	Panchayat           string  `json:"panchayat" yaml:"panchayat"`
	SustainabilityScore int     `json:"sustainability_score" yaml:"sustainability_score"`
	Level               int     `json:"level" yaml:"level"`
	TotalPoints         int     `json:"total_points" yaml:"total_points"`
	Badges              []Badge `json:"badges" yaml:"badges"`
	Avatar              string  `json:"avatar,omitempty" yaml:"avatar,omitempty"`
}

// HasBadge reports whether the user already holds badge id.
func (u *User) HasBadge(id string) bool {
	for _, b := range u.Badges {
		if b.ID == id {
			return true
		}
	}
	return false
}

func (u *User) clone() User {
	out := *u
	out.Badges = append([]Badge(nil), u.Badges...)
	if out.Badges == nil {
		out.Badges = []Badge{}
	}
	return out
}

// Account is a roster entry together with its plain demo password, as read
// from seed data.
type Account struct {
	User     `yaml:",inline"`
	Password string `yaml:"password"`
}

// LevelFor maps total points onto a level in [1, maxLevel].
func LevelFor(points, perLevel, maxLevel int) int {
	if perLevel <= 0 {
		return 1
	}
	lvl := points / perLevel
	if lvl < 1 {
		lvl = 1
	}
	if maxLevel > 0 && lvl > maxLevel {
		lvl = maxLevel
	}
	return lvl
}

// ClampScore keeps a sustainability score inside 0..100.
func ClampScore(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return score
}
