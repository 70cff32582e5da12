package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/weftworks/agentweave/core"
	"github.com/weftworks/agentweave/logging"
)

// DefaultHTTPIdleTimeout closes an HTTP channel that has seen no traffic in
// either direction for this long.
const DefaultHTTPIdleTimeout = 5 * time.Minute

// HTTPChannelConfig configures the client side of an HTTP binding.
type HTTPChannelConfig struct {
	// Endpoint is the server message URL, e.g. http://host:port/v1/messages.
	Endpoint string
	// IdleTimeout closes the channel after a period with no Send or Receive
	// traffic. Zero selects DefaultHTTPIdleTimeout.
	IdleTimeout time.Duration
	// Client overrides the HTTP client. Nil selects http.DefaultClient.
	Client *http.Client
	Logger logging.Logger
}

// HTTPChannel carries one logical message per POST: the request body holds
// the outbound envelope and the response body holds the peer's next envelope,
// which is queued for Receive. An idle connection is reaped by the configured
// timeout and the channel transitions to closed.
type HTTPChannel struct {
	endpoint   string
	httpClient *http.Client
	logger     logging.Logger
	recv       chan *Message

	mu       sync.Mutex
	closed   bool
	done     chan struct{}
	lastSeen time.Time
	idle     time.Duration
}

// NewHTTPChannel creates an HTTP channel and starts its idle reaper.
func NewHTTPChannel(cfg HTTPChannelConfig) *HTTPChannel {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultHTTPIdleTimeout
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}
	c := &HTTPChannel{
		endpoint:   cfg.Endpoint,
		httpClient: cfg.Client,
		logger:     cfg.Logger,
		recv:       make(chan *Message, 100),
		done:       make(chan struct{}),
		lastSeen:   time.Now(),
		idle:       cfg.IdleTimeout,
	}
	go c.reapIdle()
	return c
}

// Send POSTs the envelope. A non-empty response body is decoded as the peer's
// reply envelope and queued for Receive.
func (c *HTTPChannel) Send(ctx context.Context, msg *Message) error {
	if c.isClosed() {
		return errClosed("http")
	}
	c.touch()

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.Errorf(core.ErrTransportClosed, "http post failed").WithCause(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusAccepted, http.StatusNoContent:
		return nil
	case http.StatusGone:
		c.shutdown()
		return errClosed("http")
	default:
		return fmt.Errorf("http send: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.Errorf(core.ErrTransportClosed, "http read response").WithCause(err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var reply Message
	if err := json.Unmarshal(data, &reply); err != nil {
		return fmt.Errorf("decode http response: %w", err)
	}
	c.touch()

	select {
	case c.recv <- &reply:
	case <-c.done:
		return errClosed("http")
	}
	return nil
}

// Receive blocks for the next queued peer message.
func (c *HTTPChannel) Receive(ctx context.Context) (*Message, error) {
	select {
	case msg := <-c.recv:
		c.touch()
		return msg, nil
	case <-c.done:
		select {
		case msg := <-c.recv:
			return msg, nil
		default:
		}
		return nil, errClosed("http")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts the channel down.
func (c *HTTPChannel) Close() error {
	c.shutdown()
	return nil
}

func (c *HTTPChannel) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

func (c *HTTPChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *HTTPChannel) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// reapIdle closes the channel once no traffic has been seen for the idle
// window. Checks run at a fraction of the window so expiry is never late by
// more than a quarter period.
func (c *HTTPChannel) reapIdle() {
	interval := c.idle / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			expired := time.Since(c.lastSeen) > c.idle
			c.mu.Unlock()
			if expired {
				c.logger.Info("http channel idle timeout, closing")
				c.shutdown()
				return
			}
		}
	}
}
