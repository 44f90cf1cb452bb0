// Package stream maintains the live feed connection: subscriptions,
// keep-alive, and reconnection with backoff.
package stream

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ClientConfig configures feed client behavior.
type ClientConfig struct {
	// BaseDelay is the initial delay before a reconnect attempt.
	BaseDelay time.Duration
	// MaxDelay is the maximum delay between reconnect attempts.
	MaxDelay time.Duration
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the inactivity threshold that triggers a reconnect.
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration
	// ChunkSize caps the number of keys per subscribe message on restore.
	ChunkSize int
}

// DefaultClientConfig returns default feed client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseDelay:    1 * time.Second,
		MaxDelay:     30 * time.Second,
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		ChunkSize:    50,
	}
}

// reconnectDelay computes the backoff before attempt n (0-based):
// min(base*(1+n*0.5), max) plus random jitter up to 30%.
func reconnectDelay(base, max time.Duration, attempts int) time.Duration {
	delay := time.Duration(float64(base) * (1 + float64(attempts)*0.5))
	if delay > max {
		delay = max
	}
	jitter := time.Duration(rand.Int63n(int64(delay)*3/10 + 1))
	return delay + jitter
}

// Client is the streaming feed connection. One goroutine (readLoop) owns the
// read side; writes are serialized by connMu.
type Client struct {
	endpoint string
	config   ClientConfig
	logger   zerolog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	events chan *Event

	// tracked holds trade-subscribed mints for restore after reconnect.
	tracked   map[string]struct{}
	trackedMu sync.Mutex

	// emergencyFlush runs before every reconnect: persist what is cheap to
	// save. Trade buffers are not included; they survive in memory.
	emergencyFlush func()

	reconnects atomic.Uint64

	done chan struct{}
	wg   sync.WaitGroup
}

// NewClient connects to the feed and subscribes to the creation channel.
func NewClient(ctx context.Context, endpoint string, config *ClientConfig, logger zerolog.Logger) (*Client, error) {
	cfg := DefaultClientConfig()
	if config != nil {
		cfg = *config
	}

	c := &Client{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger.With().Str("component", "stream_client").Logger(),
		events:   make(chan *Event, 10000),
		tracked:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	if err := c.writeCommand(command{Method: methodSubscribeNewToken}); err != nil {
		c.conn.Close()
		return nil, fmt.Errorf("subscribe new tokens: %w", err)
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// Events returns the channel of parsed feed events. Closed on Close.
func (c *Client) Events() <-chan *Event {
	return c.events
}

// SetEmergencyFlush installs the pre-reconnect persistence hook.
// Must be called before the first reconnect can occur, i.e. right after New.
func (c *Client) SetEmergencyFlush(fn func()) {
	c.emergencyFlush = fn
}

// Reconnects returns the number of reconnections performed.
func (c *Client) Reconnects() uint64 {
	return c.reconnects.Load()
}

// connect establishes the WebSocket connection.
func (c *Client) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// SubscribeTrades subscribes to trade events for the given mints and records
// them for restore after reconnect.
func (c *Client) SubscribeTrades(keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if c.closed.Load() {
		return fmt.Errorf("client closed")
	}

	if err := c.writeCommand(command{Method: methodSubscribeTokenTrade, Keys: keys}); err != nil {
		return err
	}

	c.trackedMu.Lock()
	for _, k := range keys {
		c.tracked[k] = struct{}{}
	}
	c.trackedMu.Unlock()
	return nil
}

// UnsubscribeTrades stops trade events for the given mints.
func (c *Client) UnsubscribeTrades(keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if c.closed.Load() {
		return fmt.Errorf("client closed")
	}

	c.trackedMu.Lock()
	for _, k := range keys {
		delete(c.tracked, k)
	}
	c.trackedMu.Unlock()

	return c.writeCommand(command{Method: methodUnsubscribeTokenTrade, Keys: keys})
}

// ForceResubscribe cycles unsubscribe+subscribe for mints whose server-side
// subscription appears dropped without a transport error.
func (c *Client) ForceResubscribe(keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.writeCommand(command{Method: methodUnsubscribeTokenTrade, Keys: keys}); err != nil {
		return err
	}
	return c.SubscribeTrades(keys)
}

// Kick closes the current connection so the read loop takes the standard
// reconnect path. Used when the engine loses confidence in the stream state.
func (c *Client) Kick() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		c.conn.Close()
	}
}

// TrackedCount returns the number of trade-subscribed mints.
func (c *Client) TrackedCount() int {
	c.trackedMu.Lock()
	defer c.trackedMu.Unlock()
	return len(c.tracked)
}

func (c *Client) writeCommand(cmd command) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("write %s: %w", cmd.Method, err)
	}
	return nil
}

// Close closes the connection and the events channel.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()
	close(c.events)
	return nil
}

// readLoop reads messages and dispatches events until Close.
func (c *Client) readLoop() {
	defer c.wg.Done()

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			c.reconnect()
			continue
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			// Transport error or inactivity timeout: same recovery path.
			c.logger.Warn().Err(err).Msg("read failed, reconnecting")
			c.reconnect()
			continue
		}

		event, err := ParseMessage(message, time.Now())
		if err != nil {
			// Malformed message: skip it, keep the loop alive.
			c.logger.Debug().Err(err).Msg("skipping malformed message")
			continue
		}
		if event == nil {
			continue
		}

		// Block until delivered; the buffer absorbs bursts.
		select {
		case c.events <- event:
		case <-c.done:
			return
		}
	}
}

// reconnect tears down the connection and dials until it succeeds, then
// restores the creation subscription and all tracked trade subscriptions.
func (c *Client) reconnect() {
	if c.emergencyFlush != nil {
		c.emergencyFlush()
	}

	c.dropConn()

	for attempts := 0; ; attempts++ {
		if c.closed.Load() {
			return
		}

		delay := reconnectDelay(c.config.BaseDelay, c.config.MaxDelay, attempts)
		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := c.connect(ctx)
		cancel()
		if err != nil {
			c.logger.Warn().Err(err).Int("attempts", attempts+1).Msg("reconnect failed")
			continue
		}

		c.reconnects.Add(1)
		if err := c.restoreSubscriptions(); err != nil {
			c.logger.Warn().Err(err).Msg("restore subscriptions failed")
			// The dial succeeded but the connection is unusable; release it
			// before retrying so failed restores do not pile up sockets.
			c.dropConn()
			continue
		}

		c.logger.Info().Int("tracked", c.TrackedCount()).Msg("reconnected")
		return
	}
}

// dropConn closes and clears the connection if one is held.
func (c *Client) dropConn() {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
}

// restoreSubscriptions re-issues the creation subscription and all tracked
// trade subscriptions in chunks.
func (c *Client) restoreSubscriptions() error {
	if err := c.writeCommand(command{Method: methodSubscribeNewToken}); err != nil {
		return err
	}

	c.trackedMu.Lock()
	keys := make([]string, 0, len(c.tracked))
	for k := range c.tracked {
		keys = append(keys, k)
	}
	c.trackedMu.Unlock()

	chunk := c.config.ChunkSize
	if chunk <= 0 {
		chunk = 50
	}
	for start := 0; start < len(keys); start += chunk {
		end := start + chunk
		if end > len(keys) {
			end = len(keys)
		}
		if err := c.writeCommand(command{Method: methodSubscribeTokenTrade, Keys: keys[start:end]}); err != nil {
			return err
		}
	}

	return nil
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			c.connMu.Unlock()
		}
	}
}
