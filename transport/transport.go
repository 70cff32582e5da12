package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/weftworks/agentweave/core"
)

// MessageType discriminates wire messages.
type MessageType string

// Wire message types exchanged over a Channel.
const (
	TypeCapabilityNegotiation MessageType = "capability_negotiation"
	TypeToolList              MessageType = "tool_list"
	TypeToolCall              MessageType = "tool_call"
	TypeToolResult            MessageType = "tool_result"
	TypePromptList            MessageType = "prompt_list"
	TypePromptGet             MessageType = "prompt_get"
	TypeResourceList          MessageType = "resource_list"
	TypeResourceRead          MessageType = "resource_read"
	TypeElicitationRequest    MessageType = "elicitation_request"
	TypeElicitationResponse   MessageType = "elicitation_response"
	TypeError                 MessageType = "error"
)

// Message is the wire envelope. ID correlates a response with its request;
// Payload is the type-specific body, decoded by the protocol layer.
type Message struct {
	Type    MessageType     `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds an envelope around a JSON-serializable payload.
func NewMessage(msgType MessageType, id string, payload any) (*Message, error) {
	msg := &Message{Type: msgType, ID: id}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		msg.Payload = body
	}
	return msg, nil
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s message %s has no payload", m.Type, m.ID)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}

// Channel is a duplex, ordered message stream between two protocol endpoints.
// Send and Receive are safe for one concurrent caller each; messages arrive in
// the order they were sent. After Close (or peer loss) both operations return
// a TRANSPORT_CLOSED error.
type Channel interface {
	// Send writes one message. It blocks until the message is handed to the
	// underlying binding or ctx is done.
	Send(ctx context.Context, msg *Message) error
	// Receive blocks until the next message arrives, ctx is done, or the
	// channel closes.
	Receive(ctx context.Context) (*Message, error)
	// Close tears down the binding. Idempotent.
	Close() error
}

// errClosed builds the canonical closed-channel error for a binding.
func errClosed(binding string) error {
	return core.Errorf(core.ErrTransportClosed, "%s channel is closed", binding)
}
