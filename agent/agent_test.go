package agent

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/agentweave/core"
	"github.com/weftworks/agentweave/model"
	"github.com/weftworks/agentweave/protocol"
	"github.com/weftworks/agentweave/transport"
)

// newToolSession starts an echo tool server and returns a negotiated client
// session bound to it.
func newToolSession(t *testing.T) *protocol.ClientSession {
	t.Helper()
	reg := protocol.NewRegistry()
	require.NoError(t, reg.RegisterTool(protocol.NewTool("echo", "Echo text back", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
		},
		"required": []string{"text"},
	}, func(ctx context.Context, tc *protocol.ToolContext) (any, error) {
		return "echo: " + tc.Args["text"].(string), nil
	})))
	require.NoError(t, reg.RegisterPrompt(protocol.Prompt{
		Name:      "summarize",
		Arguments: []protocol.PromptArgument{{Name: "topic", Required: true}},
		Template:  "Summarize everything about {{.topic}}.",
	}))

	clientCh, serverCh := transport.Pipe()
	server := protocol.NewServerSession(serverCh, reg)
	go func() { _ = server.Serve(context.Background()) }()

	session := protocol.NewClientSession(clientCh,
		protocol.WithRequired(protocol.Capabilities{Tools: true}))
	require.NoError(t, session.Negotiate(context.Background()))
	t.Cleanup(func() {
		_ = session.Close()
		_ = server.Close()
	})
	return session
}

func TestSendAppendsHistory(t *testing.T) {
	mock := model.NewMockModel("test")
	mock.AddResponse("hello", "hi there")

	a := New("assistant", mock)
	reply, err := a.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", reply)

	msgs := a.Conversation().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, core.RoleUser, msgs[0].Role)
	assert.Equal(t, core.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "hi there", msgs[1].Text())
}

func TestSendToolLoop(t *testing.T) {
	mock := model.NewMockModel("test")
	mock.Enqueue(&model.Response{
		ToolCalls:    []model.ToolCall{{ID: "c1", Name: "echo", Arguments: `{"text":"ping"}`}},
		FinishReason: "tool_calls",
	})
	mock.Enqueue(&model.Response{Text: "done", FinishReason: "stop"})

	a := New("assistant", mock, WithSessions(newToolSession(t)))
	reply, err := a.Send(context.Background(), "use the tool")
	require.NoError(t, err)
	assert.Equal(t, "done", reply)

	// user, assistant tool request, tool result, final assistant
	msgs := a.Conversation().Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, core.RoleTool, msgs[2].Role)
	result := msgs[2].Parts[0].(core.ToolResultPart)
	assert.Equal(t, "echo: ping", result.Result)

	// The second model call saw the tool result.
	reqs := mock.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[1].Tools, 1)
}

func TestSendToolLoopExceeded(t *testing.T) {
	mock := model.NewMockModel("test")
	for i := 0; i < 5; i++ {
		mock.Enqueue(&model.Response{
			ToolCalls: []model.ToolCall{{ID: "c", Name: "echo", Arguments: `{"text":"again"}`}},
		})
	}

	a := New("assistant", mock, WithSessions(newToolSession(t)), WithMaxToolDepth(2))
	_, err := a.Send(context.Background(), "loop forever")
	assert.True(t, core.IsCode(err, core.ErrToolLoopExceeded))
}

func TestConcurrentSendRejected(t *testing.T) {
	mock := model.NewMockModel("test").WithLatency(100 * time.Millisecond)
	a := New("assistant", mock)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Send(context.Background(), "hi")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var busy, ok int
	for err := range errs {
		if err == nil {
			ok++
		} else if core.IsCode(err, core.ErrAgentBusy) {
			busy++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, busy)
}

func TestModelTimeoutDistinctFromCancellation(t *testing.T) {
	mock := model.NewMockModel("test").WithLatency(200 * time.Millisecond)

	a := New("assistant", mock, WithModelTimeout(20*time.Millisecond))
	_, err := a.Send(context.Background(), "slow")
	assert.True(t, core.IsCode(err, core.ErrTimeout))

	b := New("assistant-2", mock)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err = b.Send(ctx, "cancelled")
	assert.True(t, core.IsCode(err, core.ErrCancelled))
}

func TestApplyPromptDelegatesToSend(t *testing.T) {
	mock := model.NewMockModel("test")
	mock.AddResponse("Summarize everything about Go", "Go is a language.")

	a := New("assistant", mock, WithSessions(newToolSession(t)))
	reply, err := a.ApplyPrompt(context.Background(), "summarize", map[string]any{"topic": "Go"})
	require.NoError(t, err)
	assert.Equal(t, "Go is a language.", reply)

	msgs := a.Conversation().Messages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, "Summarize everything about Go.", msgs[0].Text())
}

func TestApplyPromptUnknown(t *testing.T) {
	a := New("assistant", model.NewMockModel("test"), WithSessions(newToolSession(t)))
	_, err := a.ApplyPrompt(context.Background(), "nope", nil)
	assert.Error(t, err)
}

func TestConversationExportImportRoundTrip(t *testing.T) {
	mock := model.NewMockModel("test")
	mock.AddResponse("first", "one")
	mock.AddResponse("second", "two")

	src := New("source", mock)
	_, err := src.Send(context.Background(), "first")
	require.NoError(t, err)
	_, err = src.Send(context.Background(), "second")
	require.NoError(t, err)

	blob, err := src.ExportConversation()
	require.NoError(t, err)

	dst := New("destination", mock)
	require.NoError(t, dst.ImportConversation(blob))

	want := src.Conversation().Messages()
	got := dst.Conversation().Messages()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Role, got[i].Role)
		assert.Equal(t, want[i].Text(), got[i].Text())
	}
}

func TestInteractiveStops(t *testing.T) {
	mock := model.NewMockModel("test")
	mock.AddResponse("hello", "hi")

	a := New("assistant", mock)
	in := strings.NewReader("hello\nSTOP\nnever seen\n")
	var out bytes.Buffer

	require.NoError(t, a.Interactive(context.Background(), in, &out))
	assert.Contains(t, out.String(), "hi")
	assert.NotContains(t, out.String(), "never seen")
	assert.Equal(t, 2, a.Conversation().Len())
}
