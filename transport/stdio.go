package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/weftworks/agentweave/core"
	"github.com/weftworks/agentweave/logging"
)

// StdioChannel frames messages over a byte stream pair using Content-Length
// headers, the framing a subprocess tool server speaks on its stdin/stdout.
type StdioChannel struct {
	reader  *bufio.Reader
	writer  io.Writer
	writeMu sync.Mutex
	logger  logging.Logger

	mu      sync.Mutex
	closed  bool
	closeFn func() error
}

// NewStdioChannel wraps an existing reader/writer pair, typically the pipes of
// an already-started subprocess.
func NewStdioChannel(reader io.Reader, writer io.Writer, logger logging.Logger) *StdioChannel {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &StdioChannel{
		reader: bufio.NewReader(reader),
		writer: writer,
		logger: logger,
	}
}

// SpawnStdio starts command as a tool-server subprocess and returns a channel
// speaking over its stdin/stdout. Closing the channel terminates the process.
func SpawnStdio(ctx context.Context, logger logging.Logger, command string, args ...string) (*StdioChannel, error) {
	cmd := exec.CommandContext(ctx, command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdio spawn: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdio spawn: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("stdio spawn %s: %w", command, err)
	}

	ch := NewStdioChannel(stdout, stdin, logger)
	ch.closeFn = func() error {
		_ = stdin.Close()
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return cmd.Wait()
	}
	return ch, nil
}

// Send writes one framed message: a Content-Length header followed by the
// JSON body. Writes are serialized so frames never interleave.
func (c *StdioChannel) Send(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isClosed() {
		return errClosed("stdio")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
	if _, err := io.WriteString(c.writer, header); err != nil {
		return core.Errorf(core.ErrTransportClosed, "stdio write header").WithCause(err)
	}
	if _, err := c.writer.Write(body); err != nil {
		return core.Errorf(core.ErrTransportClosed, "stdio write body").WithCause(err)
	}
	return nil
}

// Receive reads the next framed message. EOF means the peer process exited.
func (c *StdioChannel) Receive(ctx context.Context) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.isClosed() {
		return nil, errClosed("stdio")
	}

	var contentLength int
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, core.Errorf(core.ErrTransportClosed, "stdio peer exited").WithCause(err)
			}
			return nil, core.Errorf(core.ErrTransportClosed, "stdio read header").WithCause(err)
		}
		if line == "\r\n" || line == "\n" {
			break
		}
		if _, err := fmt.Sscanf(line, "Content-Length: %d", &contentLength); err == nil {
			continue
		}
	}

	if contentLength <= 0 {
		return nil, fmt.Errorf("stdio frame missing Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(c.reader, body); err != nil {
		return nil, core.Errorf(core.ErrTransportClosed, "stdio read body").WithCause(err)
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("decode stdio frame: %w", err)
	}
	return &msg, nil
}

// Close tears down the channel and, when the channel owns a subprocess, the
// process with it.
func (c *StdioChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	closeFn := c.closeFn
	c.mu.Unlock()

	c.logger.Debug("stdio channel closed")
	if closeFn != nil {
		// Wait errors after Kill are expected.
		_ = closeFn()
	}
	return nil
}

func (c *StdioChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
