package domain

import "time"

// Position is an entity position in block coordinates
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Telemetry is what one `data get entity` query yielded. Either half may be
// missing when the player logged off or the response was malformed.
type Telemetry struct {
	Position *Position `json:"position,omitempty"`
	Health   *float64  `json:"health,omitempty"`
}

// Complete reports whether both position and health were parsed
func (t Telemetry) Complete() bool {
	return t.Position != nil && t.Health != nil
}

// PlayerStatus is one line of the live status display
type PlayerStatus struct {
	ChatID           string   `json:"chat_id"`
	GameUsername     string   `json:"game_username"`
	BadgeID          string   `json:"badge_id,omitempty"`
	TotalPlaySeconds int64    `json:"total_play_seconds"`
	Position         Position `json:"position"`
	Health           float64  `json:"health"`
}

// ServerStatus is the last assembled snapshot of the server
type ServerStatus struct {
	Online      []string       `json:"online"`
	OnlineCount int            `json:"online_count"`
	Players     []PlayerStatus `json:"players"`
	LastUpdated time.Time      `json:"last_updated"`
}
