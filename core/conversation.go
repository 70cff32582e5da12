package core

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// conversationExportVersion tags serialized conversations so future format
// changes can be detected at import time.
const conversationExportVersion = 1

// Conversation is the append-only ordered message history owned by exactly
// one agent. It is safe for concurrent reads; appends are serialized by the
// owning agent. Export/Import transfer context between agents by copy, never
// by shared reference.
type Conversation struct {
	mu       sync.RWMutex
	messages []Message
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Append adds a message to the history. Messages are strictly ordered by
// append time; once appended a message must not be mutated.
func (c *Conversation) Append(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

// Messages returns a defensive copy of the full ordered history.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages in the history.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Last returns the most recent message and true, or a zero Message and false
// when the conversation is empty.
func (c *Conversation) Last() (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Clone returns an independent copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	clone := &Conversation{messages: make([]Message, len(c.messages))}
	copy(clone.messages, c.messages)
	return clone
}

// exportEnvelope is the serialized form of a conversation.
type exportEnvelope struct {
	Version  int             `json:"version"`
	Exported time.Time       `json:"exported"`
	Messages []exportMessage `json:"messages"`
}

type exportMessage struct {
	ID        string       `json:"id"`
	Role      string       `json:"role"`
	Timestamp time.Time    `json:"timestamp"`
	Parts     []exportPart `json:"parts"`
}

// exportPart is a tagged union over the closed ContentPart set.
type exportPart struct {
	Type       string          `json:"type"`
	Text       *TextPart       `json:"text,omitempty"`
	Resource   *ResourcePart   `json:"resource,omitempty"`
	ToolCall   *ToolCallPart   `json:"tool_call,omitempty"`
	ToolResult *ToolResultPart `json:"tool_result,omitempty"`
}

// Export serializes the conversation to an opaque blob suitable for a
// persistence sink or for transferring context to another agent.
func (c *Conversation) Export() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	env := exportEnvelope{Version: conversationExportVersion, Exported: time.Now().UTC()}
	for _, msg := range c.messages {
		em := exportMessage{ID: msg.ID, Role: msg.Role, Timestamp: msg.Timestamp}
		for _, p := range msg.Parts {
			ep, err := encodePart(p)
			if err != nil {
				return nil, err
			}
			em.Parts = append(em.Parts, ep)
		}
		env.Messages = append(env.Messages, em)
	}
	return json.Marshal(env)
}

// Import replaces the conversation content with the messages decoded from an
// Export blob. The imported history is an independent copy of the source.
func (c *Conversation) Import(data []byte) error {
	var env exportEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode conversation export: %w", err)
	}
	if env.Version != conversationExportVersion {
		return fmt.Errorf("unsupported conversation export version %d", env.Version)
	}

	messages := make([]Message, 0, len(env.Messages))
	for _, em := range env.Messages {
		msg := Message{ID: em.ID, Role: em.Role, Timestamp: em.Timestamp}
		for _, ep := range em.Parts {
			p, err := decodePart(ep)
			if err != nil {
				return err
			}
			msg.Parts = append(msg.Parts, p)
		}
		messages = append(messages, msg)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = messages
	return nil
}

func encodePart(p ContentPart) (exportPart, error) {
	switch v := p.(type) {
	case TextPart:
		return exportPart{Type: "text", Text: &v}, nil
	case ResourcePart:
		return exportPart{Type: "resource", Resource: &v}, nil
	case ToolCallPart:
		return exportPart{Type: "tool_call", ToolCall: &v}, nil
	case ToolResultPart:
		return exportPart{Type: "tool_result", ToolResult: &v}, nil
	default:
		return exportPart{}, fmt.Errorf("unknown content part type %T", p)
	}
}

func decodePart(ep exportPart) (ContentPart, error) {
	switch ep.Type {
	case "text":
		if ep.Text == nil {
			return nil, fmt.Errorf("text part missing body")
		}
		return *ep.Text, nil
	case "resource":
		if ep.Resource == nil {
			return nil, fmt.Errorf("resource part missing body")
		}
		return *ep.Resource, nil
	case "tool_call":
		if ep.ToolCall == nil {
			return nil, fmt.Errorf("tool_call part missing body")
		}
		return *ep.ToolCall, nil
	case "tool_result":
		if ep.ToolResult == nil {
			return nil, fmt.Errorf("tool_result part missing body")
		}
		return *ep.ToolResult, nil
	default:
		return nil, fmt.Errorf("unknown content part type %q", ep.Type)
	}
}
