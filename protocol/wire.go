package protocol

import (
	"github.com/weftworks/agentweave/core"
	"github.com/weftworks/agentweave/elicit"
)

// Wire payload bodies. The envelope (type, id) lives in package transport;
// these structs are what Payload decodes into.

type negotiatePayload struct {
	Version      string       `json:"version"`
	Capabilities Capabilities `json:"capabilities"`
	Required     Capabilities `json:"required,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// asError rehydrates a wire error into the framework error type.
func (p errorPayload) asError(sessionID string) error {
	code := core.ErrorCode(p.Code)
	if code == "" {
		code = "REMOTE_ERROR"
	}
	return core.NewError(code, p.Message).WithSession(sessionID)
}

// ToolInfo is the advertised description of one server tool.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

type toolListPayload struct {
	Tools []ToolInfo `json:"tools"`
}

type toolCallPayload struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type toolResultPayload struct {
	Result any `json:"result,omitempty"`
}

// PromptInfo is the advertised description of one prompt template.
type PromptInfo struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptArgument names one template argument.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

type promptListPayload struct {
	Prompts []PromptInfo `json:"prompts"`
}

type promptGetPayload struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// PromptResult is a rendered prompt ready to feed into a conversation. Role
// is the conversation role the rendered text should be applied as.
type PromptResult struct {
	Description string `json:"description,omitempty"`
	Role        string `json:"role"`
	Rendered    string `json:"rendered"`
}

// ResourceInfo is the advertised description of one readable resource.
type ResourceInfo struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
}

type resourceListPayload struct {
	Resources []ResourceInfo `json:"resources"`
}

type resourceReadPayload struct {
	URI string `json:"uri"`
}

// ResourceContent is the resolved body of one resource read.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mime_type,omitempty"`
	Text     string `json:"text"`
}

type elicitRequestPayload struct {
	SessionID string        `json:"session_id"`
	Schema    elicit.Schema `json:"schema"`
}

// Elicitation response actions.
const (
	elicitActionAccept  = "accept"
	elicitActionCancel  = "cancel"
	elicitActionTimeout = "timeout"
)

type elicitResponsePayload struct {
	Action string         `json:"action"`
	Values map[string]any `json:"values,omitempty"`
	Reason string         `json:"reason,omitempty"`
}
