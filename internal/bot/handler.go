package bot

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/craftlink/craftlink/internal/collector"
	"github.com/craftlink/craftlink/internal/domain"
	"github.com/craftlink/craftlink/internal/events"
	"github.com/craftlink/craftlink/internal/rcon"
	"github.com/craftlink/craftlink/internal/storage"
)

const (
	helpColor    = 0xf0e0e0
	profileColor = 0x3b88c3
)

// Chat is what command handlers need from the chat service
type Chat interface {
	SendText(ctx context.Context, channelID, content string) error
	SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) (string, error)
	UserName(ctx context.Context, userID string) (string, error)
}

// Whitelister changes which accounts may join the game server
type Whitelister interface {
	Add(ctx context.Context, name string) (bool, error)
	Remove(ctx context.Context, name string) error
}

// Monitor switches the live display message on and off
type Monitor interface {
	Enable(ctx context.Context, channelID string) error
	Disable(ctx context.Context) error
}

// Message is an inbound chat message
type Message struct {
	ChannelID string
	GuildID   string
	AuthorID  string
	Content   string
}

// Settings holds the text and access settings of the command handlers
type Settings struct {
	Prefix        string
	Name          string
	Description   string
	Host          string
	Port          int
	AvatarBaseURL string
	Operators     []string
}

// Handler executes prefix commands
type Handler struct {
	registry  *storage.Registry
	whitelist Whitelister
	monitor   Monitor
	chat      Chat
	sink      events.Sink
	settings  Settings

	// joinMu serializes join so two links can never claim one account
	joinMu sync.Mutex
}

// NewHandler creates the command handler
func NewHandler(registry *storage.Registry, whitelist Whitelister, monitor Monitor, chat Chat, sink events.Sink, settings Settings) *Handler {
	return &Handler{
		registry:  registry,
		whitelist: whitelist,
		monitor:   monitor,
		chat:      chat,
		sink:      sink,
		settings:  settings,
	}
}

// Handle runs the command in msg, if any. Failures of the server or store
// are logged and answered with a generic reply.
func (h *Handler) Handle(ctx context.Context, msg Message) {
	cmd, ok := ParseCommand(h.settings.Prefix, msg.Content)
	if !ok {
		return
	}
	slog.Debug("Received command", "command", cmd.Name, "author", msg.AuthorID, "guild", msg.GuildID)

	var err error
	switch cmd.Name {
	case CmdJoin:
		err = h.handleJoin(ctx, msg, cmd.Arg(0))
	case CmdHelp:
		_, err = h.chat.SendEmbed(ctx, msg.ChannelID, h.helpEmbed())
	case CmdSetGuild:
		err = h.handleSetGuild(ctx, msg)
	case CmdProfile:
		err = h.handleProfile(ctx, msg, cmd.Arg(0))
	case CmdList:
		err = h.handleList(ctx, msg)
	case CmdMonitor:
		err = h.handleMonitor(ctx, msg, cmd.Args)
	case CmdDebug:
		err = h.handleDebug(ctx, msg)
	}

	if err != nil {
		slog.Error("Command failed", "command", cmd.Name, "author", msg.AuthorID, "error", err)
		h.reply(ctx, msg, "Something went wrong, please try again later.")
	}
}

func (h *Handler) reply(ctx context.Context, msg Message, text string) {
	if err := h.chat.SendText(ctx, msg.ChannelID, fmt.Sprintf("<@%s> %s", msg.AuthorID, text)); err != nil {
		slog.Warn("Failed to reply", "channel", msg.ChannelID, "error", err)
	}
}

func (h *Handler) isOperator(userID string) bool {
	return len(h.settings.Operators) == 0 || slices.Contains(h.settings.Operators, userID)
}

// handleJoin links the author to a game account and whitelists it
func (h *Handler) handleJoin(ctx context.Context, msg Message, name string) error {
	if !rcon.ValidUsername(name) {
		h.reply(ctx, msg, fmt.Sprintf("`%s` is not a valid Minecraft username.", name))
		return nil
	}

	h.joinMu.Lock()
	defer h.joinMu.Unlock()

	users, err := h.registry.Users(ctx)
	if err != nil {
		return err
	}

	if idx := domain.FindByGameUsername(users, name); idx != -1 && users[idx].ChatID != msg.AuthorID {
		holder, err := h.chat.UserName(ctx, users[idx].ChatID)
		if err != nil || holder == "" {
			holder = "another member"
		}
		h.reply(ctx, msg, fmt.Sprintf("That account is already linked to %s.", holder))
		return nil
	}

	previous := ""
	if idx := domain.FindByChatID(users, msg.AuthorID); idx != -1 {
		previous = users[idx].GameUsername
		if previous == name {
			h.reply(ctx, msg, "That account is already linked to you.")
			return nil
		}
	}

	ok, err := h.whitelist.Add(ctx, name)
	if err != nil {
		return fmt.Errorf("whitelist add %s: %w", name, err)
	}
	if !ok {
		h.reply(ctx, msg, fmt.Sprintf("There is no Minecraft account called `%s`.", name))
		return nil
	}

	if previous != "" {
		if err := h.whitelist.Remove(ctx, previous); err != nil {
			slog.Warn("Failed to remove previous account from whitelist", "player", previous, "error", err)
		}
	}

	err = h.registry.UpdateUsers(ctx, func(users []domain.LinkedUser) ([]domain.LinkedUser, bool, error) {
		if idx := domain.FindByChatID(users, msg.AuthorID); idx != -1 {
			users[idx].GameUsername = name
			users[idx].BadgeCurrent = false
			return users, true, nil
		}
		return append(users, domain.LinkedUser{
			ChatID:       msg.AuthorID,
			GameUsername: name,
		}), true, nil
	})
	if err != nil {
		return err
	}

	slog.Info("Linked account", "user", msg.AuthorID, "player", name, "previous", previous)
	if h.sink != nil {
		h.sink.Publish(domain.NewEvent(domain.EventUserLinked, domain.UserLinkedEvent{
			ChatID:       msg.AuthorID,
			GameUsername: name,
			Previous:     previous,
		}))
	}

	if previous != "" {
		h.reply(ctx, msg, fmt.Sprintf("You are now linked to `%s`. `%s` can no longer join the server.", name, previous))
	} else {
		h.reply(ctx, msg, fmt.Sprintf("You are now linked to `%s`.", name))
	}
	return nil
}

func (h *Handler) handleSetGuild(ctx context.Context, msg Message) error {
	if msg.GuildID == "" {
		return nil
	}
	if !h.isOperator(msg.AuthorID) {
		h.reply(ctx, msg, "Only operators can do that.")
		return nil
	}
	if err := h.registry.SetGuild(ctx, msg.GuildID); err != nil {
		return err
	}
	h.reply(ctx, msg, "This server is now the home server.")
	return nil
}

func (h *Handler) handleProfile(ctx context.Context, msg Message, name string) error {
	users, err := h.registry.Users(ctx)
	if err != nil {
		return err
	}

	idx := domain.FindByChatID(users, msg.AuthorID)
	if name != "" {
		idx = domain.FindByGameUsername(users, name)
	}
	if idx == -1 {
		if name == "" {
			h.reply(ctx, msg, fmt.Sprintf("You are not linked yet. Use `%sjoin <username>`.", h.settings.Prefix))
		} else {
			h.reply(ctx, msg, fmt.Sprintf("Nobody is linked to `%s`.", name))
		}
		return nil
	}

	_, err = h.chat.SendEmbed(ctx, msg.ChannelID, ProfileEmbed(users[idx], h.settings.AvatarBaseURL))
	return err
}

func (h *Handler) handleList(ctx context.Context, msg Message) error {
	users, err := h.registry.Users(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		h.reply(ctx, msg, "Nobody has linked an account yet.")
		return nil
	}
	for _, u := range users {
		if _, err := h.chat.SendEmbed(ctx, msg.ChannelID, ProfileEmbed(u, h.settings.AvatarBaseURL)); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) handleMonitor(ctx context.Context, msg Message, args []string) error {
	if len(args) == 2 && args[0] == "playerList" {
		switch args[1] {
		case "on":
			return h.monitor.Enable(ctx, msg.ChannelID)
		case "off":
			return h.monitor.Disable(ctx)
		}
	}
	h.reply(ctx, msg, fmt.Sprintf("Usage: `%smonitor playerList <on|off>`", h.settings.Prefix))
	return nil
}

func (h *Handler) handleDebug(ctx context.Context, msg Message) error {
	if !h.isOperator(msg.AuthorID) {
		return nil
	}
	return h.chat.SendText(ctx, msg.ChannelID, "```"+msg.Content+"```")
}

func (h *Handler) helpEmbed() *discordgo.MessageEmbed {
	p := h.settings.Prefix
	port := fmt.Sprintf("`%d`", h.settings.Port)
	if h.settings.Port == 25565 {
		port = "`default`"
	}

	return &discordgo.MessageEmbed{
		Title:       h.settings.Name,
		Description: h.settings.Description,
		Color:       helpColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Host", Value: fmt.Sprintf("`%s`", h.settings.Host), Inline: true},
			{Name: "Port", Value: port, Inline: true},
			{
				Name:  fmt.Sprintf("To join the server run this first (e.g. `%sjoin Notch`)", p),
				Value: fmt.Sprintf("`%sjoin <minecraft username>`", p),
			},
			{Name: fmt.Sprintf("`%slist`", p), Value: "Shows every linked player.", Inline: true},
			{Name: fmt.Sprintf("`%sprofile`", p), Value: "Shows your own profile.", Inline: true},
			{Name: fmt.Sprintf("`%sprofile <username>`", p), Value: "Shows a player's profile.", Inline: true},
			{Name: fmt.Sprintf("`%smonitor playerList <on|off>`", p), Value: "Keeps a live player list in this channel."},
		},
	}
}

// ProfileEmbed renders a linked user's profile card
func ProfileEmbed(u domain.LinkedUser, avatarBaseURL string) *discordgo.MessageEmbed {
	badge := "pending"
	if u.BadgeID != "" {
		badge = fmt.Sprintf("<:a:%s>", u.BadgeID)
	}

	return &discordgo.MessageEmbed{
		Title:     fmt.Sprintf("%s's profile", u.GameUsername),
		Color:     profileColor,
		Thumbnail: &discordgo.MessageEmbedThumbnail{URL: collector.BodyURL(avatarBaseURL, u.GameUsername)},
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Discord", Value: fmt.Sprintf("<@%s>", u.ChatID), Inline: true},
			{Name: "Minecraft", Value: fmt.Sprintf("`%s`", u.GameUsername), Inline: true},
			{Name: "Badge", Value: badge, Inline: true},
			{Name: "Play time", Value: fmt.Sprintf("**%s**", domain.FormatPlayTime(u.TotalPlaySeconds)), Inline: true},
		},
	}
}
