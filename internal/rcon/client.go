package rcon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorcon/rcon"
)

const (
	dialTimeout = 5 * time.Second
	rconTimeout = 5 * time.Second
)

// Executor runs one console command and returns the server's text reply
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// Client is a Minecraft RCON client. A single connection is shared by every
// caller; commands are sent one at a time so each reply pairs with its request.
type Client struct {
	address  string
	password string
	timeout  time.Duration

	mu   sync.Mutex
	conn *rcon.Conn
}

// NewClient creates a client; the connection is opened on first use
func NewClient(address, password string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = rconTimeout
	}
	return &Client{
		address:  address,
		password: password,
		timeout:  timeout,
	}
}

// Execute sends a command and waits for its reply. A transport error drops
// the connection so the next call redials.
func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if c.conn == nil {
		conn, err := rcon.Dial(c.address, c.password,
			rcon.SetDialTimeout(dialTimeout),
			rcon.SetDeadline(c.timeout),
		)
		if err != nil {
			return "", fmt.Errorf("connecting to %s: %w", c.address, err)
		}
		c.conn = conn
		slog.Info("RCON connected", "address", c.address)
	}

	slog.Debug("RCON command", "command", command)
	resp, err := c.conn.Execute(command)
	if err != nil {
		c.conn.Close()
		c.conn = nil
		return "", fmt.Errorf("executing %q: %w", command, err)
	}
	return resp, nil
}

// Close closes the underlying connection if one is open
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
