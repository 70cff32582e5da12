package serve

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/agentweave/agent"
	"github.com/weftworks/agentweave/model"
	"github.com/weftworks/agentweave/protocol"
	"github.com/weftworks/agentweave/transport"
	"github.com/weftworks/agentweave/workflow"
)

// startAgentServer serves the agent over an in-process pipe and returns a
// negotiated client session.
func startAgentServer(t *testing.T, a *agent.Agent) *protocol.ClientSession {
	t.Helper()

	registry, err := AgentRegistry(a)
	require.NoError(t, err)

	clientCh, serverCh := transport.Pipe()
	server := protocol.NewServerSession(serverCh, registry)
	go func() { _ = server.Serve(context.Background()) }()

	client := protocol.NewClientSession(clientCh)
	require.NoError(t, client.Negotiate(context.Background()))
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client
}

func TestServedAgentHandlesSendTool(t *testing.T) {
	mock := model.NewMockModel("served")
	mock.AddResponse("ping", "pong")
	a := agent.New("responder", mock)

	client := startAgentServer(t, a)

	tools, err := client.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, SendTool, tools[0].Name)

	result, err := client.CallTool(context.Background(), SendTool, map[string]any{"text": "ping"})
	require.NoError(t, err)
	assert.Equal(t, "pong", result)

	// The exchange landed in the served agent's own conversation.
	assert.Equal(t, 2, a.Conversation().Len())
}

func TestConversationTransferViaHistoryPrompt(t *testing.T) {
	mock := model.NewMockModel("source")
	mock.AddResponse("capital of France", "Paris.")
	source := agent.New("source", mock)

	_, err := source.Send(context.Background(), "What is the capital of France?")
	require.NoError(t, err)

	client := startAgentServer(t, source)

	prompt, err := client.GetPrompt(context.Background(), HistoryPrompt, nil)
	require.NoError(t, err)

	target := agent.New("target", model.NewMockModel("target"))
	require.NoError(t, target.ImportConversation([]byte(prompt.Rendered)))

	src := source.Conversation().Messages()
	dst := target.Conversation().Messages()
	require.Len(t, dst, len(src))
	for i := range src {
		assert.Equal(t, src[i].ID, dst[i].ID)
		assert.Equal(t, src[i].Role, dst[i].Role)
		assert.Equal(t, src[i].Text(), dst[i].Text())
	}
}

func TestWorkflowRegistryRunsDefinition(t *testing.T) {
	engine := workflow.NewEngine()
	require.NoError(t, engine.Register(agent.New("draft", model.NewMockModel("m1"))))
	require.NoError(t, engine.Register(agent.New("polish", model.NewMockModel("m2"))))

	def := workflow.Definition{
		Name: "pipeline",
		Type: workflow.TypeChain,
		Steps: []workflow.Step{
			{Name: "draft", Agent: "draft"},
			{Name: "polish", Agent: "polish"},
		},
	}

	registry, err := WorkflowRegistry(engine, def)
	require.NoError(t, err)

	clientCh, serverCh := transport.Pipe()
	server := protocol.NewServerSession(serverCh, registry)
	go func() { _ = server.Serve(context.Background()) }()
	client := protocol.NewClientSession(clientCh)
	require.NoError(t, client.Negotiate(context.Background()))
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})

	result, err := client.CallTool(context.Background(), "run_pipeline", map[string]any{"input": "topic"})
	require.NoError(t, err)
	out, ok := result.(string)
	require.True(t, ok)
	assert.Contains(t, out, "mock response")
}

func TestServeStdioRoundTrip(t *testing.T) {
	mock := model.NewMockModel("stdio")
	mock.AddResponse("hello", "hi from stdio")
	a := agent.New("stdio-agent", mock)
	registry, err := AgentRegistry(a)
	require.NoError(t, err)

	clientToServerR, clientToServerW := io.Pipe()
	serverToClientR, serverToClientW := io.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ServeStdio(ctx, registry, clientToServerR, serverToClientW, nil) }()

	channel := transport.NewStdioChannel(serverToClientR, clientToServerW, nil)
	client := protocol.NewClientSession(channel)
	require.NoError(t, client.Negotiate(ctx))
	t.Cleanup(func() { _ = client.Close() })

	result, err := client.CallTool(ctx, SendTool, map[string]any{"text": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hi from stdio", result)
}

func newTestHTTPServer(t *testing.T, a *agent.Agent) (*HTTPServer, *httptest.Server) {
	t.Helper()
	registry, err := AgentRegistry(a)
	require.NoError(t, err)

	srv := NewHTTPServer(registry, HTTPServerConfig{ReplyWait: 5 * time.Second})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown()
	})
	return srv, ts
}

func createSession(t *testing.T, ts *httptest.Server) map[string]string {
	t.Helper()
	resp, err := http.Post(ts.URL+"/sessions", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created["session_id"])
	return created
}

func TestHTTPServerSessionOverPOST(t *testing.T) {
	mock := model.NewMockModel("http")
	mock.AddResponse("over http", "reply over http")
	a := agent.New("http-agent", mock)
	_, ts := newTestHTTPServer(t, a)

	created := createSession(t, ts)

	channel := transport.NewHTTPChannel(transport.HTTPChannelConfig{
		Endpoint: ts.URL + created["messages"],
	})
	client := protocol.NewClientSession(channel)
	require.NoError(t, client.Negotiate(context.Background()))
	t.Cleanup(func() { _ = client.Close() })

	result, err := client.CallTool(context.Background(), SendTool, map[string]any{"text": "over http"})
	require.NoError(t, err)
	assert.Equal(t, "reply over http", result)
}

func TestHTTPServerSessionOverSSE(t *testing.T) {
	mock := model.NewMockModel("sse")
	mock.AddResponse("streamed", "reply over sse")
	a := agent.New("sse-agent", mock)
	_, ts := newTestHTTPServer(t, a)

	created := createSession(t, ts)

	channel := transport.NewSSEChannel(ts.URL+"/sessions/"+created["session_id"], nil, nil)
	require.NoError(t, channel.Connect(context.Background()))

	client := protocol.NewClientSession(channel)
	require.NoError(t, client.Negotiate(context.Background()))
	t.Cleanup(func() { _ = client.Close() })

	result, err := client.CallTool(context.Background(), SendTool, map[string]any{"text": "streamed"})
	require.NoError(t, err)
	assert.Equal(t, "reply over sse", result)
}

func TestHTTPServerDeletedSessionIsGone(t *testing.T) {
	a := agent.New("short-lived", model.NewMockModel("m"))
	_, ts := newTestHTTPServer(t, a)

	created := createSession(t, ts)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/"+created["session_id"], nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	body := strings.NewReader(`{"type":"tool_list","id":"x"}`)
	post, err := http.Post(ts.URL+created["messages"], "application/json", body)
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusGone, post.StatusCode)
}

func TestHTTPServerRejectsSecondEventStream(t *testing.T) {
	a := agent.New("single-stream", model.NewMockModel("m"))
	_, ts := newTestHTTPServer(t, a)

	created := createSession(t, ts)
	eventsURL := ts.URL + created["events"]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, eventsURL, nil)
	require.NoError(t, err)
	first, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer first.Body.Close()
	require.Equal(t, http.StatusOK, first.StatusCode)

	second, err := http.Get(eventsURL)
	require.NoError(t, err)
	defer second.Body.Close()
	assert.Equal(t, http.StatusConflict, second.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	a := agent.New("health", model.NewMockModel("m"))
	_, ts := newTestHTTPServer(t, a)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
