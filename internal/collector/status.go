package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/craftlink/craftlink/internal/domain"
	"github.com/craftlink/craftlink/internal/events"
	"github.com/craftlink/craftlink/internal/storage"
)

const (
	statusTitle       = "Online players"
	statusPlaceholder = "Waiting for the next update."
	statusNobody      = "Nobody is playing right now."
	statusColor       = 0x5dbb63
)

// Broadcaster republishes live server state: the bot's activity text and
// the single continuously edited display message.
type Broadcaster struct {
	server   GameServer
	registry *storage.Registry
	platform Platform
	sink     events.Sink
	prefix   string

	activityInterval time.Duration
	displayInterval  time.Duration

	// toggleMu serializes display ticks with monitor on/off so a tick
	// never edits a message that is being replaced
	toggleMu sync.Mutex

	mu     sync.RWMutex
	status domain.ServerStatus
}

// BroadcasterConfig holds the broadcaster's schedule and text settings
type BroadcasterConfig struct {
	Prefix           string
	ActivityInterval time.Duration
	DisplayInterval  time.Duration
}

// NewBroadcaster creates the status broadcaster
func NewBroadcaster(server GameServer, registry *storage.Registry, platform Platform, sink events.Sink, cfg BroadcasterConfig) *Broadcaster {
	return &Broadcaster{
		server:           server,
		registry:         registry,
		platform:         platform,
		sink:             sink,
		prefix:           cfg.Prefix,
		activityInterval: cfg.ActivityInterval,
		displayInterval:  cfg.DisplayInterval,
	}
}

// Tasks returns the activity-text and display-refresh tasks
func (b *Broadcaster) Tasks() []Task {
	return []Task{
		{Name: "activity", Interval: b.activityInterval, Tick: b.ActivityTick},
		{Name: "display", Interval: b.displayInterval, Tick: b.DisplayTick},
	}
}

// Status returns the last assembled snapshot
func (b *Broadcaster) Status() domain.ServerStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// ActivityTick updates the bot's presence text with the player count
func (b *Broadcaster) ActivityTick(ctx context.Context) error {
	count, err := b.server.Count(ctx)
	if err != nil {
		return err
	}
	return b.platform.SetActivity(ctx, fmt.Sprintf("%shelp | %d playing", b.prefix, count))
}

// DisplayTick rebuilds the status message and edits it in place. Does
// nothing while the monitor is off.
func (b *Broadcaster) DisplayTick(ctx context.Context) error {
	b.toggleMu.Lock()
	defer b.toggleMu.Unlock()

	monitor, err := b.registry.ActivityMonitor(ctx)
	if err != nil {
		return err
	}
	if !monitor.Enabled() {
		return nil
	}

	status, err := b.collect(ctx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.status = status
	b.mu.Unlock()

	if b.sink != nil {
		b.sink.Publish(domain.NewEvent(domain.EventStatusUpdate, status))
	}

	err = b.platform.EditEmbed(ctx, monitor.DisplayChannel, monitor.DisplayMessage, StatusEmbed(status))
	if errors.Is(err, ErrNotFound) {
		slog.Warn("Status message is gone, turning the monitor off",
			"channel", monitor.DisplayChannel, "message", monitor.DisplayMessage)
		return b.registry.SetActivityMonitor(ctx, domain.ActivityMonitor{})
	}
	return err
}

// collect queries the online list and telemetry for each linked player.
// Players whose telemetry is incomplete are left out of this tick.
func (b *Broadcaster) collect(ctx context.Context) (domain.ServerStatus, error) {
	online, err := b.server.Online(ctx)
	if err != nil {
		return domain.ServerStatus{}, err
	}

	users, err := b.registry.Users(ctx)
	if err != nil {
		return domain.ServerStatus{}, err
	}

	status := domain.ServerStatus{
		Online:      online,
		OnlineCount: len(online),
		Players:     []domain.PlayerStatus{},
		LastUpdated: time.Now().UTC(),
	}

	for _, name := range online {
		idx := domain.FindByGameUsername(users, name)
		if idx == -1 {
			continue
		}
		user := users[idx]

		tel, ok, err := b.server.Entity(ctx, name)
		if err != nil {
			return domain.ServerStatus{}, err
		}
		if !ok {
			slog.Debug("Incomplete telemetry, skipping player", "player", name)
			continue
		}

		status.Players = append(status.Players, domain.PlayerStatus{
			ChatID:           user.ChatID,
			GameUsername:     name,
			BadgeID:          user.BadgeID,
			TotalPlaySeconds: user.TotalPlaySeconds,
			Position:         *tel.Position,
			Health:           *tel.Health,
		})
	}

	return status, nil
}

// Enable moves the display message to channelID: any previous message is
// deleted, a placeholder is posted and its location recorded.
func (b *Broadcaster) Enable(ctx context.Context, channelID string) error {
	b.toggleMu.Lock()
	defer b.toggleMu.Unlock()

	monitor, err := b.registry.ActivityMonitor(ctx)
	if err != nil {
		return err
	}
	b.deleteDisplay(ctx, monitor)

	messageID, err := b.platform.SendEmbed(ctx, channelID, &discordgo.MessageEmbed{
		Title:       statusTitle,
		Description: statusPlaceholder,
		Color:       statusColor,
	})
	if err != nil {
		return err
	}

	err = b.registry.SetActivityMonitor(ctx, domain.ActivityMonitor{
		DisplayChannel: channelID,
		DisplayMessage: messageID,
	})
	if err != nil {
		return err
	}

	if b.sink != nil {
		b.sink.Publish(domain.NewEvent(domain.EventMonitorToggle, domain.MonitorToggleEvent{Enabled: true, Channel: channelID}))
	}
	return nil
}

// Disable deletes the display message and clears its location. Turning an
// already disabled monitor off does nothing.
func (b *Broadcaster) Disable(ctx context.Context) error {
	b.toggleMu.Lock()
	defer b.toggleMu.Unlock()

	monitor, err := b.registry.ActivityMonitor(ctx)
	if err != nil {
		return err
	}
	if monitor.DisplayChannel == "" && monitor.DisplayMessage == "" {
		return nil
	}

	b.deleteDisplay(ctx, monitor)
	if err := b.registry.SetActivityMonitor(ctx, domain.ActivityMonitor{}); err != nil {
		return err
	}

	if b.sink != nil {
		b.sink.Publish(domain.NewEvent(domain.EventMonitorToggle, domain.MonitorToggleEvent{Enabled: false}))
	}
	return nil
}

// deleteDisplay removes the current display message, if any (best-effort)
func (b *Broadcaster) deleteDisplay(ctx context.Context, monitor domain.ActivityMonitor) {
	if !monitor.Enabled() {
		return
	}
	err := b.platform.DeleteMessage(ctx, monitor.DisplayChannel, monitor.DisplayMessage)
	if err != nil && !errors.Is(err, ErrNotFound) {
		slog.Warn("Failed to delete previous status message", "message", monitor.DisplayMessage, "error", err)
	}
}

// StatusEmbed renders a snapshot as the display message
func StatusEmbed(status domain.ServerStatus) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:     statusTitle,
		Color:     statusColor,
		Timestamp: status.LastUpdated.Format(time.RFC3339),
	}

	switch status.OnlineCount {
	case 0:
		embed.Description = statusNobody
	case 1:
		embed.Description = "1 player online"
	default:
		embed.Description = fmt.Sprintf("%d players online", status.OnlineCount)
	}

	for _, p := range status.Players {
		var name strings.Builder
		if p.BadgeID != "" {
			fmt.Fprintf(&name, "<:a:%s> ", p.BadgeID)
		}
		fmt.Fprintf(&name, "%s (%s)", p.GameUsername, domain.FormatPlayTime(p.TotalPlaySeconds))

		value := fmt.Sprintf("```css\nHP: %.1f\nx: %.1f\ny: %.1f\nz: %.1f\n```",
			p.Health, p.Position.X, p.Position.Y, p.Position.Z)

		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  name.String(),
			Value: value,
		})
	}

	return embed
}
