package bot

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/craftlink/craftlink/internal/collector"
)

// commandTimeout bounds the work done for one inbound message
const commandTimeout = 30 * time.Second

// Bot is the Discord connection. It implements collector.Platform and Chat.
type Bot struct {
	session *discordgo.Session
	handler *Handler
	ctx     context.Context
}

var (
	_ collector.Platform = (*Bot)(nil)
	_ Chat               = (*Bot)(nil)
)

// New creates a Discord session for the given bot token
func New(token string) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	b := &Bot{session: session, ctx: context.Background()}
	b.registerHandlers()
	return b, nil
}

// SetHandler attaches the command handler. Messages received before a
// handler is set are ignored.
func (b *Bot) SetHandler(h *Handler) {
	b.handler = h
}

// Start opens the Discord connection. Command handling uses ctx as parent.
func (b *Bot) Start(ctx context.Context) error {
	b.ctx = ctx
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	slog.Info("Connected to Discord", "user", b.session.State.User.Username)
	return nil
}

// Stop closes the Discord connection
func (b *Bot) Stop() error {
	return b.session.Close()
}

func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleMessage)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Bot is ready", "guilds", len(r.Guilds))
	})
}

func (b *Bot) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || b.handler == nil {
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	b.handler.Handle(ctx, Message{
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		AuthorID:  m.Author.ID,
		Content:   m.Content,
	})
}

// mapError turns Discord's 404 into collector.ErrNotFound
func mapError(err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %v", collector.ErrNotFound, err)
	}
	return err
}

func (b *Bot) SendText(ctx context.Context, channelID, content string) error {
	_, err := b.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	return mapError(err)
}

func (b *Bot) SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) (string, error) {
	msg, err := b.session.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapError(err)
	}
	return msg.ID, nil
}

func (b *Bot) EditEmbed(ctx context.Context, channelID, messageID string, embed *discordgo.MessageEmbed) error {
	_, err := b.session.ChannelMessageEditEmbed(channelID, messageID, embed, discordgo.WithContext(ctx))
	return mapError(err)
}

func (b *Bot) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return mapError(b.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)))
}

// SetActivity sets the "Playing ..." status. It goes over the gateway
// rather than REST so ctx is not used.
func (b *Bot) SetActivity(_ context.Context, text string) error {
	return b.session.UpdateGameStatus(0, text)
}

func (b *Bot) CreateEmoji(ctx context.Context, guildID, name string, png []byte) (string, error) {
	emoji, err := b.session.GuildEmojiCreate(guildID, &discordgo.EmojiParams{
		Name:  name,
		Image: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapError(err)
	}
	return emoji.ID, nil
}

func (b *Bot) DeleteEmoji(ctx context.Context, guildID, emojiID string) error {
	return mapError(b.session.GuildEmojiDelete(guildID, emojiID, discordgo.WithContext(ctx)))
}

func (b *Bot) UserName(ctx context.Context, userID string) (string, error) {
	user, err := b.session.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapError(err)
	}
	return user.Username, nil
}
