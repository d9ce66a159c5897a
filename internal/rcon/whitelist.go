package rcon

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/craftlink/craftlink/internal/domain"
)

// ErrInvalidUsername is returned for names Minecraft would never accept
var ErrInvalidUsername = errors.New("invalid minecraft username")

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,16}$`)

// ValidUsername reports whether name is a syntactically valid account name
func ValidUsername(name string) bool {
	return usernamePattern.MatchString(name)
}

// Whitelist issues whitelist and status queries over a console connection
type Whitelist struct {
	exec Executor
}

// NewWhitelist wraps an executor
func NewWhitelist(exec Executor) *Whitelist {
	return &Whitelist{exec: exec}
}

// Add whitelists name and reloads the whitelist. Returns false when the
// server says the account does not exist.
func (w *Whitelist) Add(ctx context.Context, name string) (bool, error) {
	if !ValidUsername(name) {
		return false, ErrInvalidUsername
	}

	resp, err := w.exec.Execute(ctx, "whitelist add "+name)
	if err != nil {
		return false, err
	}
	if _, err := w.exec.Execute(ctx, "whitelist reload"); err != nil {
		return false, err
	}

	return !WhitelistAddRejected(resp), nil
}

// Remove drops name from the whitelist and reloads it
func (w *Whitelist) Remove(ctx context.Context, name string) error {
	if !ValidUsername(name) {
		return ErrInvalidUsername
	}

	if _, err := w.exec.Execute(ctx, "whitelist remove "+name); err != nil {
		return err
	}
	_, err := w.exec.Execute(ctx, "whitelist reload")
	return err
}

// Online returns the usernames currently connected
func (w *Whitelist) Online(ctx context.Context) ([]string, error) {
	resp, err := w.exec.Execute(ctx, "list")
	if err != nil {
		return nil, err
	}
	return ParseOnlinePlayers(resp), nil
}

// Count returns the number of connected players
func (w *Whitelist) Count(ctx context.Context) (int, error) {
	resp, err := w.exec.Execute(ctx, "list")
	if err != nil {
		return 0, err
	}
	return ParseOnlineCount(resp), nil
}

// Entity queries live telemetry for a connected player. The boolean is
// false when either position or health is missing.
func (w *Whitelist) Entity(ctx context.Context, name string) (domain.Telemetry, bool, error) {
	if !ValidUsername(name) {
		return domain.Telemetry{}, false, nil
	}

	resp, err := w.exec.Execute(ctx, fmt.Sprintf("data get entity %s", name))
	if err != nil {
		return domain.Telemetry{}, false, err
	}
	tel, ok := ParseEntity(resp)
	return tel, ok, nil
}
