package collector

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
	"github.com/craftlink/craftlink/internal/domain"
)

// ErrNotFound is returned by a Platform when the message or emoji addressed
// no longer exists
var ErrNotFound = errors.New("not found on chat platform")

// Platform is the part of the chat service the periodic tasks talk to
type Platform interface {
	SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) (string, error)
	EditEmbed(ctx context.Context, channelID, messageID string, embed *discordgo.MessageEmbed) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	SetActivity(ctx context.Context, text string) error
	CreateEmoji(ctx context.Context, guildID, name string, png []byte) (string, error)
	DeleteEmoji(ctx context.Context, guildID, emojiID string) error
	UserName(ctx context.Context, userID string) (string, error)
}

// GameServer is the live server state the tasks poll
type GameServer interface {
	Online(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	Entity(ctx context.Context, name string) (domain.Telemetry, bool, error)
}
