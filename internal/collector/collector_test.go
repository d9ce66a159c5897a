package collector_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/craftlink/craftlink/internal/collector"
	"github.com/craftlink/craftlink/internal/collector/collectortest"
	"github.com/craftlink/craftlink/internal/domain"
	"github.com/craftlink/craftlink/internal/events"
	"github.com/craftlink/craftlink/internal/rcon"
	"github.com/craftlink/craftlink/internal/rcon/rcontest"
	"github.com/craftlink/craftlink/internal/storage"
)

const steveEntity = `steve has the following entity data: {Pos: [12.5d, 64.0d, -3.5d], Health: 18.5f, foodLevel: 20}`

func newRegistry(t *testing.T, users ...domain.LinkedUser) *storage.Registry {
	t.Helper()
	reg := storage.NewRegistry(storage.NewMemory())
	if users != nil {
		if err := reg.SetUsers(context.Background(), users); err != nil {
			t.Fatalf("SetUsers: %v", err)
		}
	}
	return reg
}

func mustUsers(t *testing.T, reg *storage.Registry) []domain.LinkedUser {
	t.Helper()
	users, err := reg.Users(context.Background())
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	return users
}

func TestPresenceAccumulates(t *testing.T) {
	ctx := context.Background()
	console := rcontest.NewConsole().Online("steve")
	reg := newRegistry(t,
		domain.LinkedUser{ChatID: "A", GameUsername: "steve"},
		domain.LinkedUser{ChatID: "B", GameUsername: "alex", TotalPlaySeconds: 7},
	)

	presence := collector.NewPresence(rcon.NewWhitelist(console), reg, nil, time.Second)
	for range 3 {
		if err := presence.Tick(ctx); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}

	console.Online()
	if err := presence.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	users := mustUsers(t, reg)
	if users[0].TotalPlaySeconds != 3 {
		t.Errorf("steve = %d, want 3", users[0].TotalPlaySeconds)
	}
	if users[1].TotalPlaySeconds != 7 {
		t.Errorf("offline alex = %d, want unchanged 7", users[1].TotalPlaySeconds)
	}
}

func TestPresenceUnitFollowsInterval(t *testing.T) {
	tests := []struct {
		interval time.Duration
		want     int64
	}{
		{500 * time.Millisecond, 1},
		{time.Second, 1},
		{5 * time.Second, 5},
	}

	for _, tt := range tests {
		console := rcontest.NewConsole().Online("steve")
		reg := newRegistry(t, domain.LinkedUser{ChatID: "A", GameUsername: "steve"})
		presence := collector.NewPresence(rcon.NewWhitelist(console), reg, nil, tt.interval)
		if err := presence.Tick(context.Background()); err != nil {
			t.Fatalf("Tick: %v", err)
		}
		if got := mustUsers(t, reg)[0].TotalPlaySeconds; got != tt.want {
			t.Errorf("interval %v: increment = %d, want %d", tt.interval, got, tt.want)
		}
	}
}

func TestPresenceEvents(t *testing.T) {
	ctx := context.Background()
	console := rcontest.NewConsole().Online("steve")
	reg := newRegistry(t, domain.LinkedUser{ChatID: "A", GameUsername: "steve"})
	rec := &events.Recorder{}
	presence := collector.NewPresence(rcon.NewWhitelist(console), reg, rec, time.Second)

	// First tick establishes the baseline without join events
	if err := presence.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if n := len(rec.OfType(domain.EventPlayerJoin)); n != 0 {
		t.Fatalf("join events after first tick = %d, want 0", n)
	}

	console.Online("alex")
	if err := presence.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	joins := rec.OfType(domain.EventPlayerJoin)
	leaves := rec.OfType(domain.EventPlayerLeave)
	if len(joins) != 1 || joins[0].Data.(domain.PlayerEvent).GameUsername != "alex" {
		t.Errorf("joins = %+v, want alex", joins)
	}
	if len(leaves) != 1 || leaves[0].Data.(domain.PlayerEvent).ChatID != "A" {
		t.Errorf("leaves = %+v, want steve owned by A", leaves)
	}
	if n := len(rec.OfType(domain.EventPresence)); n != 2 {
		t.Errorf("presence events = %d, want 2", n)
	}
}

func TestPresenceTransportError(t *testing.T) {
	console := rcontest.NewConsole().Fail("list", errors.New("connection reset"))
	presence := collector.NewPresence(rcon.NewWhitelist(console), newRegistry(t), nil, time.Second)
	if err := presence.Tick(context.Background()); err == nil {
		t.Fatal("expected transport error to propagate")
	}
}

func newBroadcaster(console *rcontest.Console, reg *storage.Registry, platform *collectortest.Platform) *collector.Broadcaster {
	return collector.NewBroadcaster(rcon.NewWhitelist(console), reg, platform, nil, collector.BroadcasterConfig{
		Prefix:           "::",
		ActivityInterval: time.Second,
		DisplayInterval:  3 * time.Second,
	})
}

func TestActivityText(t *testing.T) {
	console := rcontest.NewConsole().Online("steve", "alex")
	platform := collectortest.NewPlatform()
	b := newBroadcaster(console, newRegistry(t), platform)

	if err := b.ActivityTick(context.Background()); err != nil {
		t.Fatalf("ActivityTick: %v", err)
	}
	if platform.Activity != "::help | 2 playing" {
		t.Errorf("activity = %q", platform.Activity)
	}
}

func TestMonitorToggleIdempotent(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	platform := collectortest.NewPlatform()
	b := newBroadcaster(rcontest.NewConsole(), reg, platform)

	if err := b.Enable(ctx, "chan"); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	first, _ := reg.ActivityMonitor(ctx)

	if err := b.Enable(ctx, "chan"); err != nil {
		t.Fatalf("Enable again: %v", err)
	}
	second, _ := reg.ActivityMonitor(ctx)

	if platform.Live() != 1 {
		t.Fatalf("live messages = %d, want exactly 1", platform.Live())
	}
	if first.DisplayMessage == second.DisplayMessage {
		t.Fatal("second on did not replace the message")
	}
	if _, ok := platform.Message(first.DisplayMessage); ok {
		t.Error("previous display message was not deleted")
	}

	if err := b.Disable(ctx); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if platform.Live() != 0 {
		t.Errorf("live messages after off = %d, want 0", platform.Live())
	}
	if m, _ := reg.ActivityMonitor(ctx); m.Enabled() {
		t.Errorf("monitor still enabled: %+v", m)
	}

	// Off while already off
	deleted := len(platform.Deleted)
	if err := b.Disable(ctx); err != nil {
		t.Fatalf("Disable when off: %v", err)
	}
	if len(platform.Deleted) != deleted {
		t.Error("disable when off touched the platform")
	}
}

func TestDisplayTickDisabledIsNoop(t *testing.T) {
	console := rcontest.NewConsole().Online("steve")
	b := newBroadcaster(console, newRegistry(t), collectortest.NewPlatform())

	if err := b.DisplayTick(context.Background()); err != nil {
		t.Fatalf("DisplayTick: %v", err)
	}
	if sent := console.Sent(); len(sent) != 0 {
		t.Errorf("disabled monitor issued commands %q", sent)
	}
}

func TestDisplayTickRendersCompleteTelemetryOnly(t *testing.T) {
	ctx := context.Background()
	console := rcontest.NewConsole().
		Online("steve", "alex", "guest").
		Reply("data get entity steve", steveEntity).
		Reply("data get entity alex", "alex has the following entity data: {Pos: [1.0d, 2.0d, 3.0d]}")
	reg := newRegistry(t,
		domain.LinkedUser{ChatID: "A", GameUsername: "steve", BadgeID: "777", TotalPlaySeconds: 3723},
		domain.LinkedUser{ChatID: "B", GameUsername: "alex"},
	)
	platform := collectortest.NewPlatform()
	b := newBroadcaster(console, reg, platform)

	if err := b.Enable(ctx, "chan"); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if err := b.DisplayTick(ctx); err != nil {
		t.Fatalf("DisplayTick: %v", err)
	}

	monitor, _ := reg.ActivityMonitor(ctx)
	msg, ok := platform.Message(monitor.DisplayMessage)
	if !ok || msg.Edits != 1 {
		t.Fatalf("display message = %+v, want one edit", msg)
	}
	if msg.Embed.Description != "3 players online" {
		t.Errorf("description = %q", msg.Embed.Description)
	}
	if len(msg.Embed.Fields) != 1 {
		t.Fatalf("fields = %d, want 1 (alex lacks health, guest is unlinked)", len(msg.Embed.Fields))
	}
	field := msg.Embed.Fields[0]
	if !strings.HasPrefix(field.Name, "<:a:777> steve (1h 02m 03s)") {
		t.Errorf("field name = %q", field.Name)
	}
	if !strings.Contains(field.Value, "HP: 18.5") || !strings.Contains(field.Value, "z: -3.5") {
		t.Errorf("field value = %q", field.Value)
	}

	for _, cmd := range console.Sent() {
		if cmd == "data get entity guest" {
			t.Error("queried telemetry for an unlinked player")
		}
	}

	status := b.Status()
	if status.OnlineCount != 3 || len(status.Players) != 1 {
		t.Errorf("snapshot = %+v", status)
	}
}

func TestDisplayTickNobodyOnline(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	platform := collectortest.NewPlatform()
	b := newBroadcaster(rcontest.NewConsole().Online(), reg, platform)

	if err := b.Enable(ctx, "chan"); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if err := b.DisplayTick(ctx); err != nil {
		t.Fatalf("DisplayTick: %v", err)
	}
	monitor, _ := reg.ActivityMonitor(ctx)
	msg, _ := platform.Message(monitor.DisplayMessage)
	if msg.Embed.Description != "Nobody is playing right now." {
		t.Errorf("description = %q", msg.Embed.Description)
	}
}

func TestDisplayTickMessageGone(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	platform := collectortest.NewPlatform()
	b := newBroadcaster(rcontest.NewConsole().Online(), reg, platform)

	if err := reg.SetActivityMonitor(ctx, domain.ActivityMonitor{DisplayChannel: "chan", DisplayMessage: "404"}); err != nil {
		t.Fatalf("SetActivityMonitor: %v", err)
	}
	if err := b.DisplayTick(ctx); err != nil {
		t.Fatalf("DisplayTick: %v", err)
	}
	if m, _ := reg.ActivityMonitor(ctx); m.Enabled() {
		t.Errorf("monitor = %+v, want cleared after message vanished", m)
	}
}

type headFunc func(ctx context.Context, name string) ([]byte, error)

func (f headFunc) Head(ctx context.Context, name string) ([]byte, error) { return f(ctx, name) }

func staticHead(context.Context, string) ([]byte, error) { return []byte("png"), nil }

func TestProvisionerNoGuild(t *testing.T) {
	reg := newRegistry(t, domain.LinkedUser{ChatID: "A", GameUsername: "steve"})
	platform := collectortest.NewPlatform()
	p := collector.NewProvisioner(reg, platform, headFunc(staticHead), nil, time.Second, 0)

	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(platform.Emojis) != 0 {
		t.Errorf("emojis created without a guild: %d", len(platform.Emojis))
	}
}

func TestProvisionerReplacesStaleBadges(t *testing.T) {
	ctx := context.Background()
	platform := collectortest.NewPlatform()
	oldID, _ := platform.CreateEmoji(ctx, "guild", "old_head", nil)
	platform.Names["A"] = "Steve Fan!"

	reg := newRegistry(t,
		domain.LinkedUser{ChatID: "A", GameUsername: "steve", BadgeID: oldID},
		domain.LinkedUser{ChatID: "B", GameUsername: "alex", BadgeID: "5", BadgeCurrent: true},
	)
	if err := reg.SetGuild(ctx, "guild"); err != nil {
		t.Fatalf("SetGuild: %v", err)
	}
	rec := &events.Recorder{}
	p := collector.NewProvisioner(reg, platform, headFunc(staticHead), rec, time.Second, 0)

	if err := p.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	users := mustUsers(t, reg)
	if !users[0].BadgeCurrent || users[0].BadgeID == oldID || users[0].BadgeID == "" {
		t.Errorf("steve = %+v, want fresh current badge", users[0])
	}
	if users[1].BadgeID != "5" {
		t.Errorf("current badge for alex was touched: %+v", users[1])
	}
	if _, ok := platform.Emojis[oldID]; ok {
		t.Error("old badge not deleted")
	}
	if got := platform.Emojis[users[0].BadgeID].Name; got != "SteveFan_head" {
		t.Errorf("emoji name = %q", got)
	}
	if n := len(rec.OfType(domain.EventBadgeUpdated)); n != 1 {
		t.Errorf("badge events = %d, want 1", n)
	}
}

func TestProvisionerRelinkDuringProvisioning(t *testing.T) {
	ctx := context.Background()
	platform := collectortest.NewPlatform()
	reg := newRegistry(t, domain.LinkedUser{ChatID: "A", GameUsername: "steve"})
	if err := reg.SetGuild(ctx, "guild"); err != nil {
		t.Fatalf("SetGuild: %v", err)
	}

	// The user re-links while their head is being downloaded
	relink := headFunc(func(ctx context.Context, name string) ([]byte, error) {
		err := reg.UpdateUsers(ctx, func(users []domain.LinkedUser) ([]domain.LinkedUser, bool, error) {
			users[0].GameUsername = "alex"
			users[0].BadgeCurrent = false
			return users, true, nil
		})
		return []byte("png"), err
	})
	p := collector.NewProvisioner(reg, platform, relink, nil, time.Second, 0)

	if err := p.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	user := mustUsers(t, reg)[0]
	if user.BadgeCurrent {
		t.Errorf("user = %+v, badge for the old account marked current", user)
	}
	if user.BadgeID == "" {
		t.Error("created badge not recorded, it would leak")
	}
}

func TestProvisionerFetchErrorKeepsProgress(t *testing.T) {
	ctx := context.Background()
	platform := collectortest.NewPlatform()
	reg := newRegistry(t,
		domain.LinkedUser{ChatID: "A", GameUsername: "steve"},
		domain.LinkedUser{ChatID: "B", GameUsername: "broken"},
	)
	if err := reg.SetGuild(ctx, "guild"); err != nil {
		t.Fatalf("SetGuild: %v", err)
	}
	heads := headFunc(func(_ context.Context, name string) ([]byte, error) {
		if name == "broken" {
			return nil, errors.New("503")
		}
		return []byte("png"), nil
	})
	p := collector.NewProvisioner(reg, platform, heads, nil, time.Second, 0)

	if err := p.Tick(ctx); err == nil {
		t.Fatal("expected fetch error")
	}
	users := mustUsers(t, reg)
	if !users[0].BadgeCurrent {
		t.Error("progress before the failure was not persisted")
	}
	if users[1].BadgeCurrent {
		t.Error("failed user marked current")
	}
}

func TestHeadSourceResizes(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := range 8 {
		for y := range 8 {
			src.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), A: 255})
		}
	}
	var body bytes.Buffer
	if err := png.Encode(&body, src); err != nil {
		t.Fatal(err)
	}

	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		w.Write(body.Bytes())
	}))
	defer srv.Close()

	data, err := collector.NewHeadSource(srv.URL, 64).Head(context.Background(), "steve")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if got := path.Load(); got != "/avatar/steve/" {
		t.Errorf("requested %v", got)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 64 {
		t.Errorf("size = %dx%d, want 64x64", b.Dx(), b.Dy())
	}
}

func TestHeadSourceStatusError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	if _, err := collector.NewHeadSource(srv.URL, 64).Head(context.Background(), "ghost"); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestEmojiName(t *testing.T) {
	tests := map[string]string{
		"steve":                              "steve_head",
		"Steve Fan!":                         "SteveFan_head",
		"ü":                                  "player_head",
		"a_very_long_display_name_over_limit": "a_very_long_display_name_ov_head",
	}
	for in, want := range tests {
		if got := collector.EmojiName(in); got != want {
			t.Errorf("EmojiName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestManagerContinuesAfterError(t *testing.T) {
	var calls atomic.Int32
	task := collector.Task{
		Name:     "flaky",
		Interval: 5 * time.Millisecond,
		Tick: func(context.Context) error {
			calls.Add(1)
			return errors.New("boom")
		},
	}

	m := collector.NewManager(false, task)
	m.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()

	if calls.Load() < 3 {
		t.Fatalf("task ran %d times, want it to keep ticking", calls.Load())
	}
	select {
	case err := <-m.Errors():
		t.Errorf("unexpected reported error %v", err)
	default:
	}
}

func TestManagerHaltsOnError(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("boom")
	task := collector.Task{
		Name:     "fatal",
		Interval: 5 * time.Millisecond,
		Tick: func(context.Context) error {
			calls.Add(1)
			return boom
		},
	}

	m := collector.NewManager(true, task)
	m.Start(context.Background())
	defer m.Stop()

	select {
	case err := <-m.Errors():
		var taskErr *collector.TaskError
		if !errors.As(err, &taskErr) || taskErr.Task != "fatal" || !errors.Is(err, boom) {
			t.Errorf("reported error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("halting task never reported its error")
	}

	time.Sleep(30 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("halted task ran %d times, want 1", n)
	}
}
