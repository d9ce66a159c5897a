package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event types for WebSocket and NATS notifications
const (
	EventPresence      = "presence"
	EventPlayerJoin    = "player_join"
	EventPlayerLeave   = "player_leave"
	EventStatusUpdate  = "status_update"
	EventUserLinked    = "user_linked"
	EventBadgeUpdated  = "badge_updated"
	EventMonitorToggle = "monitor_toggle"
)

// Event represents a real-time event for broadcast
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// NewEvent stamps an event with a fresh ID and the current time
func NewEvent(eventType string, data interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// PresenceEvent is sent after every presence tick
type PresenceEvent struct {
	Online []string `json:"online"`
}

// PlayerEvent is sent when a player appears in or disappears from the list
type PlayerEvent struct {
	GameUsername string `json:"game_username"`
	ChatID       string `json:"chat_id,omitempty"`
}

// UserLinkedEvent is sent when a Discord user links or re-links an account
type UserLinkedEvent struct {
	ChatID       string `json:"chat_id"`
	GameUsername string `json:"game_username"`
	Previous     string `json:"previous,omitempty"`
}

// BadgeUpdatedEvent is sent after an avatar emoji was provisioned
type BadgeUpdatedEvent struct {
	ChatID       string `json:"chat_id"`
	GameUsername string `json:"game_username"`
	BadgeID      string `json:"badge_id"`
}

// MonitorToggleEvent is sent when the display message is turned on or off
type MonitorToggleEvent struct {
	Enabled bool   `json:"enabled"`
	Channel string `json:"channel,omitempty"`
}
