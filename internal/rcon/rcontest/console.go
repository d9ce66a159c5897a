// Package rcontest provides an in-memory console fake for tests.
package rcontest

import (
	"context"
	"strconv"
	"strings"
	"sync"
)

// Console is a scripted Executor fake. Replies are matched by the longest
// registered prefix of the command; unmatched commands reply with "".
type Console struct {
	mu       sync.Mutex
	replies  map[string]string
	errs     map[string]error
	Commands []string
}

// NewConsole constructs an empty Console fake.
func NewConsole() *Console {
	return &Console{
		replies: make(map[string]string),
		errs:    make(map[string]error),
	}
}

// Reply registers the response for commands starting with prefix.
func (c *Console) Reply(prefix, resp string) *Console {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies[prefix] = resp
	return c
}

// Fail makes commands starting with prefix return err.
func (c *Console) Fail(prefix string, err error) *Console {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[prefix] = err
	return c
}

// Online scripts the `list` reply for the given players.
func (c *Console) Online(players ...string) *Console {
	resp := "There are " + strconv.Itoa(len(players)) + " of a max of 20 players online: " + strings.Join(players, ", ")
	return c.Reply("list", resp)
}

func (c *Console) Execute(_ context.Context, command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Commands = append(c.Commands, command)
	if err := match(c.errs, command); err != nil {
		return "", err
	}
	return match(c.replies, command), nil
}

// Sent returns a copy of the commands executed so far.
func (c *Console) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Commands...)
}

// Reset forgets recorded commands.
func (c *Console) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Commands = nil
}

func match[T any](m map[string]T, command string) T {
	var best T
	bestLen := -1
	for prefix, v := range m {
		if strings.HasPrefix(command, prefix) && len(prefix) > bestLen {
			best = v
			bestLen = len(prefix)
		}
	}
	return best
}
