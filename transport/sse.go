package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/weftworks/agentweave/core"
	"github.com/weftworks/agentweave/logging"
)

// SSEChannel is the push-stream binding: the server pushes envelopes over a
// long-lived text/event-stream response while the client sends its own
// envelopes through a POST back-channel.
type SSEChannel struct {
	endpoint   string
	sendURL    string
	httpClient *http.Client
	logger     logging.Logger
	events     chan *Message

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSSEChannel creates an SSE channel against endpoint. The event stream is
// served at endpoint+"/events" and the back-channel at endpoint+"/messages".
// Call Connect before use.
func NewSSEChannel(endpoint string, client *http.Client, logger logging.Logger) *SSEChannel {
	if client == nil {
		// Long-lived stream, so no client-level timeout.
		client = &http.Client{}
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &SSEChannel{
		endpoint:   endpoint,
		sendURL:    endpoint + "/messages",
		httpClient: client,
		logger:     logger,
		events:     make(chan *Message, 100),
		done:       make(chan struct{}),
	}
}

// Connect opens the event stream and starts the background reader.
func (c *SSEChannel) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/events", nil)
	if err != nil {
		cancel()
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return core.Errorf(core.ErrTransportClosed, "sse connect failed").WithCause(err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("sse connect: unexpected status %d", resp.StatusCode)
	}

	go c.readEvents(ctx, resp.Body)
	return nil
}

// readEvents accumulates data: lines until the blank line that terminates an
// event, then queues the decoded envelope.
func (c *SSEChannel) readEvents(ctx context.Context, body io.ReadCloser) {
	defer body.Close()
	defer c.shutdown()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var dataBuffer strings.Builder
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Text()
		if line == "" {
			if dataBuffer.Len() > 0 {
				var msg Message
				if err := json.Unmarshal([]byte(dataBuffer.String()), &msg); err != nil {
					c.logger.Error("sse event parse error", "error", err)
				} else {
					select {
					case c.events <- &msg:
					case <-ctx.Done():
						return
					}
				}
				dataBuffer.Reset()
			}
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataBuffer.WriteString(strings.TrimPrefix(line[5:], " "))
		}
	}
}

// Send posts the envelope to the back-channel.
func (c *SSEChannel) Send(ctx context.Context, msg *Message) error {
	if c.isClosed() {
		return errClosed("sse")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sendURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.Errorf(core.ErrTransportClosed, "sse send failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("sse send: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Receive blocks for the next pushed event.
func (c *SSEChannel) Receive(ctx context.Context) (*Message, error) {
	select {
	case msg := <-c.events:
		return msg, nil
	case <-c.done:
		select {
		case msg := <-c.events:
			return msg, nil
		default:
		}
		return nil, core.Errorf(core.ErrTransportClosed, "sse stream ended")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close cancels the event stream.
func (c *SSEChannel) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.shutdown()
	return nil
}

func (c *SSEChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *SSEChannel) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}
