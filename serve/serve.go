package serve

import (
	"context"
	"fmt"
	"io"

	"github.com/weftworks/agentweave/agent"
	"github.com/weftworks/agentweave/core"
	"github.com/weftworks/agentweave/logging"
	"github.com/weftworks/agentweave/protocol"
	"github.com/weftworks/agentweave/transport"
	"github.com/weftworks/agentweave/workflow"
)

// SendTool is the tool name a served agent advertises for message delivery.
const SendTool = "send"

// HistoryPrompt is the prompt name serving the agent's exported conversation.
const HistoryPrompt = "conversation_history"

// AgentRegistry builds the protocol registry for one agent: the send tool,
// the conversation history prompt, and a conversation resource.
func AgentRegistry(a *agent.Agent) (*protocol.Registry, error) {
	registry := protocol.NewRegistry()

	sendSchema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string", "description": "Message to deliver to the agent"},
		},
		"required": []string{"text"},
	}
	send := protocol.NewTool(SendTool,
		fmt.Sprintf("Send a message to agent %q and return its reply", a.Name()),
		sendSchema,
		func(ctx context.Context, tc *protocol.ToolContext) (any, error) {
			text, _ := tc.Args["text"].(string)
			return a.Send(ctx, text)
		})
	if err := registry.RegisterTool(send); err != nil {
		return nil, err
	}

	history := protocol.Prompt{
		Name:        HistoryPrompt,
		Description: fmt.Sprintf("Exported conversation history of agent %q", a.Name()),
		Role:        core.RoleUser,
		Resolver: func(map[string]any) (string, error) {
			blob, err := a.ExportConversation()
			if err != nil {
				return "", err
			}
			return string(blob), nil
		},
	}
	if err := registry.RegisterPrompt(history); err != nil {
		return nil, err
	}

	conversation := protocol.Resource{
		URI:         "weave://agents/" + a.Name() + "/conversation",
		Name:        a.Name() + " conversation",
		Description: "Serialized conversation export",
		MimeType:    "application/json",
		Reader: func(ctx context.Context) (string, error) {
			blob, err := a.ExportConversation()
			if err != nil {
				return "", err
			}
			return string(blob), nil
		},
	}
	if err := registry.RegisterResource(conversation); err != nil {
		return nil, err
	}
	return registry, nil
}

// WorkflowRegistry builds a registry advertising one run tool per workflow
// definition, named "run_<workflow>". The tool takes the initial input and
// returns the final output.
func WorkflowRegistry(engine *workflow.Engine, defs ...workflow.Definition) (*protocol.Registry, error) {
	registry := protocol.NewRegistry()

	for _, def := range defs {
		def := def
		schema := map[string]any{
			"type": "object",
			"properties": map[string]any{
				"input": map[string]any{"type": "string", "description": "Initial workflow input"},
			},
			"required": []string{"input"},
		}
		tool := protocol.NewTool("run_"+def.Name,
			fmt.Sprintf("Run the %q workflow (%s)", def.Name, def.Type),
			schema,
			func(ctx context.Context, tc *protocol.ToolContext) (any, error) {
				input, _ := tc.Args["input"].(string)
				result, err := engine.Run(ctx, def, map[string]string{workflow.InputKey: input})
				if err != nil {
					return nil, err
				}
				return result.Output, nil
			})
		if err := registry.RegisterTool(tool); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// ServeStdio serves the registry over a stdio channel until ctx is cancelled
// or the peer disconnects.
func ServeStdio(ctx context.Context, registry *protocol.Registry, r io.Reader, w io.Writer, logger logging.Logger) error {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	channel := transport.NewStdioChannel(r, w, logger)
	session := protocol.NewServerSession(channel, registry, protocol.WithServerLogger(logger))
	return session.Serve(ctx)
}
