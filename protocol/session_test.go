package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/agentweave/core"
	"github.com/weftworks/agentweave/elicit"
	"github.com/weftworks/agentweave/transport"
)

func echoRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()

	err := reg.RegisterTool(NewTool("echo", "Echo the input back", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
		},
		"required": []string{"text"},
	}, func(ctx context.Context, tc *ToolContext) (any, error) {
		return tc.Args["text"], nil
	}))
	require.NoError(t, err)

	require.NoError(t, reg.RegisterPrompt(Prompt{
		Name:        "greet",
		Description: "Greeting prompt",
		Arguments:   []PromptArgument{{Name: "name", Required: true}},
		Template:    "Hello, {{.name}}!",
	}))

	require.NoError(t, reg.RegisterResource(Resource{
		URI:      "doc://readme",
		MimeType: "text/plain",
		Text:     "welcome",
	}))

	return reg
}

// startPair wires a negotiated client to a serving server over an in-process
// pipe and cleans both up with the test.
func startPair(t *testing.T, reg *Registry, clientOpts []ClientOption, serverOpts []ServerOption) (*ClientSession, *ServerSession) {
	t.Helper()
	clientCh, serverCh := transport.Pipe()

	server := NewServerSession(serverCh, reg, serverOpts...)
	go func() { _ = server.Serve(context.Background()) }()

	client := NewClientSession(clientCh, clientOpts...)
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server
}

func TestNegotiateAndCallTool(t *testing.T) {
	client, server := startPair(t, echoRegistry(t), nil, nil)
	ctx := context.Background()

	require.NoError(t, client.Negotiate(ctx))
	assert.Equal(t, StateReady, client.State())
	assert.Equal(t, StateReady, server.State())
	assert.True(t, client.PeerCapabilities().Tools)

	tools, err := client.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)

	result, err := client.CallTool(ctx, "echo", map[string]any{"text": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
}

func TestCallToolValidation(t *testing.T) {
	client, _ := startPair(t, echoRegistry(t), nil, nil)
	ctx := context.Background()
	require.NoError(t, client.Negotiate(ctx))

	_, err := client.CallTool(ctx, "echo", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required field is missing")

	_, err = client.CallTool(ctx, "no_such_tool", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}

func TestOperationsBeforeNegotiate(t *testing.T) {
	client, _ := startPair(t, echoRegistry(t), nil, nil)

	_, err := client.ListTools(context.Background())
	assert.True(t, core.IsCode(err, core.ErrSessionClosed))
}

func TestNegotiateCapabilityMismatch(t *testing.T) {
	reg := NewRegistry() // empty: no tools at all
	client, _ := startPair(t, reg, []ClientOption{WithRequired(Capabilities{Tools: true})}, nil)

	err := client.Negotiate(context.Background())
	assert.True(t, core.IsCode(err, core.ErrCapabilityMismatch))
	assert.Equal(t, StateClosed, client.State())
}

func TestServerRequiresElicitation(t *testing.T) {
	client, _ := startPair(t, echoRegistry(t),
		nil, // defaults to no elicitation controller
		[]ServerOption{WithServerRequired(Capabilities{Elicitation: true})})

	err := client.Negotiate(context.Background())
	assert.True(t, core.IsCode(err, core.ErrCapabilityMismatch))
}

func TestPromptsAndResources(t *testing.T) {
	client, _ := startPair(t, echoRegistry(t), nil, nil)
	ctx := context.Background()
	require.NoError(t, client.Negotiate(ctx))

	prompts, err := client.ListPrompts(ctx)
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	assert.Equal(t, "greet", prompts[0].Name)

	rendered, err := client.GetPrompt(ctx, "greet", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello, Ada!", rendered.Rendered)
	assert.Equal(t, core.RoleUser, rendered.Role)

	_, err = client.GetPrompt(ctx, "greet", nil)
	require.Error(t, err)

	resources, err := client.ListResources(ctx)
	require.NoError(t, err)
	require.Len(t, resources, 1)

	content, err := client.ReadResource(ctx, "doc://readme")
	require.NoError(t, err)
	assert.Equal(t, "welcome", content.Text)
}

func elicitingRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	err := reg.RegisterTool(NewTool("ask_name", "Ask the operator for a name",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, tc *ToolContext) (any, error) {
			values, err := tc.Elicit(ctx, elicit.Schema{
				Title:  "Name needed",
				Fields: []elicit.Field{{Name: "name", Type: elicit.FieldString, Required: true}},
			})
			if err != nil {
				return nil, err
			}
			return values["name"], nil
		}))
	require.NoError(t, err)
	return reg
}

func TestElicitationInterleavedWithToolCall(t *testing.T) {
	ctrl := elicit.NewController(elicit.ModeForms,
		elicit.WithHandler(func(ctx context.Context, req *elicit.Request) (*elicit.Response, error) {
			return &elicit.Response{Values: map[string]any{"name": "Ada"}}, nil
		}))

	client, _ := startPair(t, elicitingRegistry(t), []ClientOption{WithElicitation(ctrl)}, nil)
	ctx := context.Background()
	require.NoError(t, client.Negotiate(ctx))

	result, err := client.CallTool(ctx, "ask_name", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "Ada", result)
}

func TestElicitationAutoCancelFailsToolCall(t *testing.T) {
	ctrl := elicit.NewController(elicit.ModeAutoCancel)
	client, _ := startPair(t, elicitingRegistry(t), []ClientOption{WithElicitation(ctrl)}, nil)
	ctx := context.Background()
	require.NoError(t, client.Negotiate(ctx))

	_, err := client.CallTool(ctx, "ask_name", map[string]any{})
	assert.True(t, core.IsCode(err, core.ErrElicitationCancelled))
}

func TestElicitationWithoutCapability(t *testing.T) {
	// Client advertises no elicitation; tool call must fail fast on Elicit.
	client, _ := startPair(t, elicitingRegistry(t), nil, nil)
	ctx := context.Background()
	require.NoError(t, client.Negotiate(ctx))

	_, err := client.CallTool(ctx, "ask_name", map[string]any{})
	assert.True(t, core.IsCode(err, core.ErrCapabilityMismatch))
}

func TestSessionCloseFailsOutstandingCalls(t *testing.T) {
	reg := NewRegistry()
	block := make(chan struct{})
	require.NoError(t, reg.RegisterTool(NewTool("slow", "Blocks until released",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, tc *ToolContext) (any, error) {
			<-block
			return nil, nil
		})))

	client, server := startPair(t, reg, nil, nil)
	ctx := context.Background()
	require.NoError(t, client.Negotiate(ctx))

	errCh := make(chan error, 1)
	go func() {
		_, err := client.CallTool(ctx, "slow", map[string]any{})
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, server.Close())

	select {
	case err := <-errCh:
		assert.True(t, core.IsCode(err, core.ErrSessionClosed))
	case <-time.After(time.Second):
		t.Fatal("outstanding call not failed on close")
	}
	close(block)

	assert.Equal(t, StateClosed, client.State())
	_, err := client.ListTools(ctx)
	assert.True(t, core.IsCode(err, core.ErrSessionClosed))
}

func TestConcurrentCallsMultiplex(t *testing.T) {
	client, _ := startPair(t, echoRegistry(t), nil, nil)
	ctx := context.Background()
	require.NoError(t, client.Negotiate(ctx))

	results := make(chan string, 4)
	for _, text := range []string{"a", "b", "c", "d"} {
		go func(text string) {
			res, err := client.CallTool(ctx, "echo", map[string]any{"text": text})
			if err != nil {
				results <- "error"
				return
			}
			results <- res.(string)
		}(text)
	}

	got := map[string]bool{}
	for i := 0; i < 4; i++ {
		got[<-results] = true
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true, "d": true}, got)
}
