package core

import (
	"time"

	"github.com/google/uuid"
)

// Conversation roles. System messages are allowed in history but are normally
// carried separately as the agent instruction.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// ContentPart represents a polymorphic segment of a message. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type ContentPart interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text string `json:"text"`
}

func (TextPart) isPart() {}

// ResourcePart references protocol-served content by URI, optionally with the
// resolved body inlined.
type ResourcePart struct {
	URI      string `json:"uri"`
	MimeType string `json:"mime_type,omitempty"`
	Content  string `json:"content,omitempty"`
}

func (ResourcePart) isPart() {}

// ToolResultPart carries the structured outcome of a tool invocation.
type ToolResultPart struct {
	CallID string `json:"call_id,omitempty"` // Matches the originating tool call
	Name   string `json:"name"`              // Tool name
	Result any    `json:"result,omitempty"`  // Successful result (any JSON-serializable shape)
	Error  string `json:"error,omitempty"`   // Populated on failure
}

func (ToolResultPart) isPart() {}

// ToolCallPart is an assistant-authored request to execute a named tool.
type ToolCallPart struct {
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"` // Serialized JSON argument payload
}

func (ToolCallPart) isPart() {}

// Message is the unit of conversation history. After being appended to a
// Conversation it must be treated as immutable.
type Message struct {
	ID        string        `json:"id"`
	Role      string        `json:"role"`
	Parts     []ContentPart `json:"parts"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewMessage creates a bare message with the given role and parts.
func NewMessage(role string, parts ...ContentPart) Message {
	return Message{ID: NewID(), Role: role, Parts: parts, Timestamp: time.Now().UTC()}
}

// NewUserMessage creates a user-authored text message.
func NewUserMessage(text string) Message {
	return NewMessage(RoleUser, TextPart{Text: text})
}

// NewAssistantMessage creates an assistant-authored text message.
func NewAssistantMessage(text string) Message {
	return NewMessage(RoleAssistant, TextPart{Text: text})
}

// NewSystemMessage creates a system-authored text message.
func NewSystemMessage(text string) Message {
	return NewMessage(RoleSystem, TextPart{Text: text})
}

// NewToolResultMessage records the completion result (or error) of a tool call.
func NewToolResultMessage(callID, name string, result any, err error) Message {
	part := ToolResultPart{CallID: callID, Name: name, Result: result}
	if err != nil {
		part.Error = err.Error()
	}
	return NewMessage(RoleTool, part)
}

// Text concatenates all text parts of the message preserving order.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			out += tp.Text
		}
	}
	return out
}

// ToolCalls returns any ToolCallPart segments preserving their original order.
func (m Message) ToolCalls() []ToolCallPart {
	var calls []ToolCallPart
	for _, p := range m.Parts {
		if tc, ok := p.(ToolCallPart); ok {
			calls = append(calls, tc)
		}
	}
	return calls
}

// NewID generates a new unique identifier for messages, calls and runs.
func NewID() string { return uuid.NewString() }
