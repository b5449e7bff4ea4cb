// Package mpd asks a Music Player Daemon to rescan its library after shares
// changed.
package mpd

import (
	"context"
	"fmt"
	"sync"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Client wraps the MPD client with reconnection logic.
type Client struct {
	mu       sync.Mutex
	client   *mpd.Client
	addr     string
	password string
}

// NewClient creates a new MPD client wrapper for host:port.
func NewClient(addr, password string) *Client {
	return &Client{
		addr:     addr,
		password: password,
	}
}

// Connect establishes connection to MPD.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectLocked()
}

// connectLocked establishes connection (must hold lock).
func (c *Client) connectLocked() error {
	log.Debug().Str("addr", c.addr).Msg("Connecting to MPD")

	var (
		client *mpd.Client
		err    error
	)
	if c.password != "" {
		client, err = mpd.DialAuthenticated("tcp", c.addr, c.password)
	} else {
		client, err = mpd.Dial("tcp", c.addr)
	}
	if err != nil {
		if client != nil {
			client.Close()
		}
		return fmt.Errorf("failed to connect to MPD: %w", err)
	}

	c.client = client
	return nil
}

// ensureConnected checks connection and reconnects if needed.
func (c *Client) ensureConnected() error {
	if c.client == nil {
		return c.connectLocked()
	}

	if err := c.client.Ping(); err != nil {
		log.Warn().Err(err).Msg("MPD connection lost, reconnecting...")
		c.client.Close()
		c.client = nil
		return c.connectLocked()
	}
	return nil
}

// Close closes the MPD connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// Update starts a database update below uri, or of the whole library when
// uri is empty, and returns the MPD job id.
func (c *Client) Update(uri string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(); err != nil {
		return 0, err
	}
	return c.client.Update(uri)
}

// Notifier implements modes.Notifier by triggering a library rescan. A nil
// *Notifier does nothing.
type Notifier struct {
	addr     string
	password string
}

// NewNotifier returns a notifier for addr, or nil when addr is empty.
func NewNotifier(addr, password string) *Notifier {
	if addr == "" {
		return nil
	}
	return &Notifier{addr: addr, password: password}
}

// NotifyChanged connects, requests a full library update and disconnects.
func (n *Notifier) NotifyChanged(ctx context.Context) error {
	if n == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	client := NewClient(n.addr, n.password)
	if err := client.Connect(); err != nil {
		return err
	}
	defer client.Close()

	job, err := client.Update("")
	if err != nil {
		return fmt.Errorf("MPD library update: %w", err)
	}

	zerolog.Ctx(ctx).Info().Str("addr", n.addr).Int("job", job).Msg("Requested MPD library update")
	return nil
}
