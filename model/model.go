package model

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/weftworks/agentweave/core"
)

// ToolCall is a provider-neutral tool invocation request surfaced by a model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // serialized JSON argument payload
}

// ToolDefinition exposes a callable tool to the model. InputSchema is a
// minimal JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Request is the normalized model input: a system instruction, the ordered
// conversation history, and the tools the model may request.
type Request struct {
	Instruction string           `json:"instruction,omitempty"`
	Messages    []core.Message   `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
}

// TokenUsage captures token accounting for one call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the complete result of one generation call. A response may
// carry text, tool calls, or both.
type Response struct {
	Text         string      `json:"text,omitempty"`
	ToolCalls    []ToolCall  `json:"tool_calls,omitempty"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the blocking generation interface agents drive. Generate honors
// ctx for timeout and cancellation and returns the complete response.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	Info() Info
}

// MockModel is a deterministic in-memory Model for tests and examples.
// Responses are served from an explicit queue first, then from prompt-keyed
// canned responses, then from a default.
type MockModel struct {
	info    Info
	latency time.Duration

	mu       sync.Mutex
	queue    []queuedResponse
	canned   map[string]string
	requests []Request
}

type queuedResponse struct {
	resp *Response
	err  error
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:   Info{Name: name, Provider: "mock", SupportsTools: true},
		canned: make(map[string]string),
	}
}

// WithLatency makes every Generate call block for d (or until ctx is done),
// so tests can hold calls in flight.
func (m *MockModel) WithLatency(d time.Duration) *MockModel {
	m.latency = d
	return m
}

// AddResponse registers a canned completion keyed on a substring of the last
// user message.
func (m *MockModel) AddResponse(promptContains, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canned[promptContains] = response
}

// Enqueue appends a scripted response served before any canned matching.
func (m *MockModel) Enqueue(resp *Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, queuedResponse{resp: resp})
}

// EnqueueError appends a scripted failure.
func (m *MockModel) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, queuedResponse{err: err})
}

// Requests returns a copy of every request seen, in call order.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// CallCount returns the number of Generate calls served.
func (m *MockModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if m.latency > 0 {
		select {
		case <-time.After(m.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		return next.resp, next.err
	}

	prompt := lastUserText(req.Messages)
	for key, text := range m.canned {
		if strings.Contains(prompt, key) {
			return &Response{Text: text, FinishReason: "stop"}, nil
		}
	}
	return &Response{Text: "mock response to: " + prompt, FinishReason: "stop"}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

func lastUserText(messages []core.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == core.RoleUser {
			return messages[i].Text()
		}
	}
	return ""
}
