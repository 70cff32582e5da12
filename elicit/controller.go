package elicit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/weftworks/agentweave/core"
	"github.com/weftworks/agentweave/logging"
)

// Mode selects how a controller resolves incoming requests.
type Mode string

const (
	// ModeForms dispatches each request to the registered handler, which
	// collects the form values from a human.
	ModeForms Mode = "forms"
	// ModeAutoCancel advertises the capability but immediately cancels every
	// request with a fixed reason. Useful for headless runs against servers
	// that require the capability.
	ModeAutoCancel Mode = "auto_cancel"
	// ModeNone does not advertise the capability; sessions negotiated with
	// this controller reject servers that require elicitation.
	ModeNone Mode = "none"
)

// AutoCancelReason is the fixed reason attached to ModeAutoCancel
// cancellations.
const AutoCancelReason = "auto-cancelled: no interactive operator"

// DefaultWaitTimeout bounds how long a pending request waits for a human.
const DefaultWaitTimeout = 5 * time.Minute

// Handler collects form values for one request. It runs on its own goroutine;
// returning an error cancels the request with the error text as reason.
type Handler func(ctx context.Context, req *Request) (*Response, error)

// Controller owns the client side of the elicitation sub-protocol for the
// sessions it is attached to.
type Controller struct {
	mode    Mode
	handler Handler
	timeout time.Duration
	logger  logging.Logger

	mu        sync.Mutex
	pending   map[string]*Request
	cancelled bool // set by CancelAll, never cleared
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithHandler registers the form handler used in ModeForms.
func WithHandler(h Handler) ControllerOption {
	return func(c *Controller) { c.handler = h }
}

// WithWaitTimeout overrides the per-request wait timeout.
func WithWaitTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) { c.timeout = d }
}

// WithLogger sets the controller logger.
func WithLogger(l logging.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// NewController creates a controller with the given policy mode.
func NewController(mode Mode, opts ...ControllerOption) *Controller {
	c := &Controller{
		mode:    mode,
		timeout: DefaultWaitTimeout,
		logger:  logging.NoOpLogger{},
		pending: make(map[string]*Request),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mode returns the controller's policy mode.
func (c *Controller) Mode() Mode { return c.mode }

// Advertises reports whether sessions using this controller should advertise
// the elicitation capability during negotiation.
func (c *Controller) Advertises() bool { return c.mode != ModeNone }

// Handle resolves one incoming request according to the controller policy.
// It blocks until the request reaches a terminal state: the response on
// success, ELICITATION_CANCELLED or ELICITATION_TIMED_OUT otherwise.
func (c *Controller) Handle(ctx context.Context, req *Request) (*Response, error) {
	switch c.mode {
	case ModeNone:
		return nil, core.Errorf(core.ErrCapabilityMismatch,
			"elicitation request received but capability not advertised").WithSession(req.SessionID)
	case ModeAutoCancel:
		req.resolve(StateCancelled, AutoCancelReason, nil, nil)
		c.logger.Debug("elicitation auto-cancelled", "request_id", req.ID)
		return nil, c.cancelErr(req, AutoCancelReason)
	}

	// ModeForms. The cancel-all breaker short-circuits before dispatch.
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		req.resolve(StateCancelled, "cancelled by operator", nil, nil)
		return nil, c.cancelErr(req, "cancelled by operator")
	}
	c.pending[req.ID] = req
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	c.logger.Info("elicitation requested",
		"request_id", req.ID, "session_id", req.SessionID, "title", req.Schema.Title)

	if c.handler != nil {
		go c.runHandler(ctx, req)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case out := <-req.resolved:
		if out.err != nil {
			return nil, out.err
		}
		if out.response == nil {
			return nil, c.cancelErr(req, req.Reason())
		}
		return out.response, nil
	case <-timer.C:
		req.resolve(StateTimedOut, "", nil, nil)
		c.logger.Warn("elicitation timed out", "request_id", req.ID)
		return nil, core.Errorf(core.ErrElicitationTimedOut,
			"no response within %s", c.timeout).WithSession(req.SessionID)
	case <-ctx.Done():
		req.resolve(StateCancelled, "context cancelled", nil, nil)
		return nil, core.Errorf(core.ErrElicitationCancelled,
			"request cancelled").WithSession(req.SessionID).WithCause(ctx.Err())
	}
}

// runHandler executes the form handler and resolves the request with its
// outcome. Handler values are validated against the request schema.
func (c *Controller) runHandler(ctx context.Context, req *Request) {
	resp, err := c.handler(ctx, req)
	if err != nil {
		req.resolve(StateCancelled, err.Error(), nil, nil)
		return
	}
	if resp == nil {
		req.resolve(StateCancelled, "declined", nil, nil)
		return
	}
	if err := req.Schema.Validate(resp.Values); err != nil {
		req.resolve(StateCancelled, err.Error(), nil, nil)
		return
	}
	req.resolve(StateAnswered, "", resp, nil)
}

// Respond resolves a pending request with values submitted out of band, for
// example from an HTTP form endpoint. Values are validated against the
// request schema before the waiter is released.
func (c *Controller) Respond(requestID string, values map[string]any) error {
	c.mu.Lock()
	req, ok := c.pending[requestID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("elicitation request not found: %s", requestID)
	}

	if err := req.Schema.Validate(values); err != nil {
		return err
	}
	if !req.resolve(StateAnswered, "", &Response{Values: values}, nil) {
		return fmt.Errorf("elicitation request %s already %s", requestID, req.State())
	}
	c.logger.Info("elicitation answered", "request_id", requestID)
	return nil
}

// Cancel resolves a pending request as cancelled with the given reason.
func (c *Controller) Cancel(requestID, reason string) error {
	c.mu.Lock()
	req, ok := c.pending[requestID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("elicitation request not found: %s", requestID)
	}

	if !req.resolve(StateCancelled, reason, nil, nil) {
		return fmt.Errorf("elicitation request %s already %s", requestID, req.State())
	}
	c.logger.Info("elicitation cancelled", "request_id", requestID, "reason", reason)
	return nil
}

// CancelAll trips the breaker: every pending request is cancelled and every
// subsequent request is cancelled without being dispatched to the handler.
func (c *Controller) CancelAll() {
	c.mu.Lock()
	c.cancelled = true
	pending := make([]*Request, 0, len(c.pending))
	for _, req := range c.pending {
		pending = append(pending, req)
	}
	c.mu.Unlock()

	for _, req := range pending {
		req.resolve(StateCancelled, "cancelled by operator", nil, nil)
	}
	c.logger.Info("all elicitations cancelled", "count", len(pending))
}

// Pending returns the currently pending requests.
func (c *Controller) Pending() []*Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Request, 0, len(c.pending))
	for _, req := range c.pending {
		out = append(out, req)
	}
	return out
}

func (c *Controller) cancelErr(req *Request, reason string) error {
	return core.Errorf(core.ErrElicitationCancelled, "%s", reason).WithSession(req.SessionID)
}
