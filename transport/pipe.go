package transport

import (
	"context"
	"sync"
)

// pipeEnd is one side of an in-process channel pair.
type pipeEnd struct {
	in  chan *Message
	out chan *Message

	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

// Pipe returns two connected in-process channels: what one side sends the
// other receives, in order. Used for same-process tool servers and in tests.
func Pipe() (Channel, Channel) {
	a := make(chan *Message, 16)
	b := make(chan *Message, 16)
	done := make(chan struct{})
	left := &pipeEnd{in: a, out: b, done: done}
	right := &pipeEnd{in: b, out: a, done: done}
	return left, right
}

func (p *pipeEnd) Send(ctx context.Context, msg *Message) error {
	select {
	case <-p.done:
		return errClosed("pipe")
	default:
	}

	select {
	case p.out <- msg:
		return nil
	case <-p.done:
		return errClosed("pipe")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Receive(ctx context.Context) (*Message, error) {
	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.done:
		// Drain messages sent before the close.
		select {
		case msg := <-p.in:
			return msg, nil
		default:
		}
		return nil, errClosed("pipe")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts down both ends of the pair.
func (p *pipeEnd) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		select {
		case <-p.done:
		default:
			close(p.done)
		}
	}
	return nil
}
