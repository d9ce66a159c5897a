package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // heads are occasionally served as JPEG
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/craftlink/craftlink/internal/domain"
	"github.com/craftlink/craftlink/internal/events"
	"github.com/craftlink/craftlink/internal/storage"
	"golang.org/x/image/draw"
	"golang.org/x/time/rate"
)

// maxHeadBytes caps a downloaded head image
const maxHeadBytes = 1 << 20

// HeadFetcher returns a PNG head image for a game account
type HeadFetcher interface {
	Head(ctx context.Context, gameUsername string) ([]byte, error)
}

// HeadSource downloads player heads from an mc-heads style service and
// scales them to a square PNG
type HeadSource struct {
	baseURL string
	size    int
	client  *http.Client
}

// NewHeadSource creates a head source rooted at baseURL
func NewHeadSource(baseURL string, size int) *HeadSource {
	return &HeadSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		size:    size,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// AvatarURL is the head image address for a game account
func AvatarURL(baseURL, gameUsername string) string {
	return fmt.Sprintf("%s/avatar/%s/", strings.TrimRight(baseURL, "/"), url.PathEscape(gameUsername))
}

// BodyURL is the full-body render used as profile thumbnail
func BodyURL(baseURL, gameUsername string) string {
	return fmt.Sprintf("%s/body/%s/left", strings.TrimRight(baseURL, "/"), url.PathEscape(gameUsername))
}

// Head implements HeadFetcher
func (s *HeadSource) Head(ctx context.Context, gameUsername string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, AvatarURL(s.baseURL, gameUsername), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch head: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch head: server returned %d", resp.StatusCode)
	}

	img, _, err := image.Decode(io.LimitReader(resp.Body, maxHeadBytes))
	if err != nil {
		return nil, fmt.Errorf("decode head: %w", err)
	}
	return encodeSquare(img, s.size)
}

// encodeSquare scales img to size x size and encodes it as PNG
func encodeSquare(img image.Image, size int) ([]byte, error) {
	bounds := img.Bounds()
	if bounds.Dx() != size || bounds.Dy() != size {
		dst := image.NewRGBA(image.Rect(0, 0, size, size))
		// Heads are pixel art; nearest neighbour keeps the edges crisp
		draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode head: %w", err)
	}
	return buf.Bytes(), nil
}

// Provisioner keeps every linked user's head badge in the home guild in
// step with their current game account
type Provisioner struct {
	registry *storage.Registry
	platform Platform
	heads    HeadFetcher
	sink     events.Sink
	limiter  *rate.Limiter
	interval time.Duration
}

// NewProvisioner creates the badge provisioner. minDelay spaces out emoji
// uploads; zero disables the limiter.
func NewProvisioner(registry *storage.Registry, platform Platform, heads HeadFetcher, sink events.Sink, interval, minDelay time.Duration) *Provisioner {
	limit := rate.Inf
	if minDelay > 0 {
		limit = rate.Every(minDelay)
	}
	return &Provisioner{
		registry: registry,
		platform: platform,
		heads:    heads,
		sink:     sink,
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
	}
}

// Task returns the schedulable form of the provisioner
func (p *Provisioner) Task() Task {
	return Task{Name: "badges", Interval: p.interval, Tick: p.Tick}
}

// Tick provisions badges for every stale record. Each record is persisted
// as soon as its badge exists so a failure part way only retries the rest.
func (p *Provisioner) Tick(ctx context.Context) error {
	guildID, err := p.registry.Guild(ctx)
	if err != nil {
		return err
	}
	if guildID == "" {
		return nil
	}

	users, err := p.registry.Users(ctx)
	if err != nil {
		return err
	}

	for _, user := range users {
		if user.BadgeCurrent {
			continue
		}
		if err := p.provision(ctx, guildID, user); err != nil {
			return fmt.Errorf("provision badge for %s: %w", user.GameUsername, err)
		}
	}
	return nil
}

func (p *Provisioner) provision(ctx context.Context, guildID string, user domain.LinkedUser) error {
	if user.BadgeID != "" {
		if err := p.platform.DeleteEmoji(ctx, guildID, user.BadgeID); err != nil && !errors.Is(err, ErrNotFound) {
			slog.Warn("Failed to delete old badge", "user", user.ChatID, "badge", user.BadgeID, "error", err)
		}
	}

	head, err := p.heads.Head(ctx, user.GameUsername)
	if err != nil {
		return err
	}

	name := user.GameUsername
	if chatName, err := p.platform.UserName(ctx, user.ChatID); err == nil && chatName != "" {
		name = chatName
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	badgeID, err := p.platform.CreateEmoji(ctx, guildID, EmojiName(name), head)
	if err != nil {
		return err
	}

	current := false
	err = p.registry.UpdateUsers(ctx, func(users []domain.LinkedUser) ([]domain.LinkedUser, bool, error) {
		idx := domain.FindByChatID(users, user.ChatID)
		if idx == -1 {
			return users, false, nil
		}
		users[idx].BadgeID = badgeID
		// A join that moved the record to another account while the badge
		// was being made leaves it stale for the next tick
		current = users[idx].GameUsername == user.GameUsername
		users[idx].BadgeCurrent = current
		return users, true, nil
	})
	if err != nil {
		return err
	}

	slog.Info("Badge provisioned", "user", user.ChatID, "player", user.GameUsername, "badge", badgeID, "current", current)
	if p.sink != nil {
		p.sink.Publish(domain.NewEvent(domain.EventBadgeUpdated, domain.BadgeUpdatedEvent{
			ChatID:       user.ChatID,
			GameUsername: user.GameUsername,
			BadgeID:      badgeID,
		}))
	}
	return nil
}

// EmojiName derives a valid guild emoji name ("<name>_head") from a chat
// display name
func EmojiName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		}
	}
	base := b.String()
	if len(base) < 2 {
		base = "player"
	}
	// Emoji names are limited to 32 characters
	if len(base) > 27 {
		base = base[:27]
	}
	return base + "_head"
}
