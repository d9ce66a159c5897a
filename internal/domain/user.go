package domain

import "fmt"

// LinkedUser binds one Discord identity to the Minecraft account it may
// currently join the server with.
type LinkedUser struct {
	ChatID           string `json:"chat_id"`
	GameUsername     string `json:"game_username"`
	BadgeID          string `json:"badge_id,omitempty"`
	BadgeCurrent     bool   `json:"badge_current"`
	TotalPlaySeconds int64  `json:"total_play_seconds"`
}

// ActivityMonitor points at the Discord message that shows who is online.
// An empty channel or message means the monitor is off.
type ActivityMonitor struct {
	DisplayChannel string `json:"display_channel,omitempty"`
	DisplayMessage string `json:"display_message,omitempty"`
}

// Enabled reports whether both halves of the pointer are set
func (m ActivityMonitor) Enabled() bool {
	return m.DisplayChannel != "" && m.DisplayMessage != ""
}

// FindByChatID returns the index of the record owned by chatID, or -1
func FindByChatID(users []LinkedUser, chatID string) int {
	for i := range users {
		if users[i].ChatID == chatID {
			return i
		}
	}
	return -1
}

// FindByGameUsername returns the index of the record holding username, or -1
func FindByGameUsername(users []LinkedUser, username string) int {
	for i := range users {
		if users[i].GameUsername == username {
			return i
		}
	}
	return -1
}

// FormatPlayTime renders a play-time counter as "1h 02m 03s"
func FormatPlayTime(seconds int64) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
