package transport

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/agentweave/core"
)

func TestMessageEnvelope(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	msg, err := NewMessage(TypeToolCall, "call-1", payload{Name: "fetch"})
	require.NoError(t, err)
	assert.Equal(t, TypeToolCall, msg.Type)
	assert.Equal(t, "call-1", msg.ID)

	var decoded payload
	require.NoError(t, msg.Decode(&decoded))
	assert.Equal(t, "fetch", decoded.Name)
}

func TestMessageDecodeEmptyPayload(t *testing.T) {
	msg := &Message{Type: TypeToolList, ID: "1"}
	var v map[string]any
	assert.Error(t, msg.Decode(&v))
}

func TestStdioChannelRoundTrip(t *testing.T) {
	clientReader, serverWriter := io.Pipe()
	serverReader, clientWriter := io.Pipe()

	client := NewStdioChannel(clientReader, clientWriter, nil)
	server := NewStdioChannel(serverReader, serverWriter, nil)

	ctx := context.Background()

	sent, err := NewMessage(TypeToolCall, "call-1", map[string]any{"tool": "fetch"})
	require.NoError(t, err)

	go func() {
		_ = client.Send(ctx, sent)
	}()

	got, err := server.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, TypeToolCall, got.Type)
	assert.Equal(t, "call-1", got.ID)
}

func TestStdioChannelOrdering(t *testing.T) {
	reader, writer := io.Pipe()
	sender := NewStdioChannel(strings.NewReader(""), writer, nil)
	receiver := NewStdioChannel(reader, io.Discard, nil)

	ctx := context.Background()
	go func() {
		for i := 0; i < 5; i++ {
			msg, _ := NewMessage(TypeToolResult, string(rune('a'+i)), nil)
			_ = sender.Send(ctx, msg)
		}
	}()

	for i := 0; i < 5; i++ {
		got, err := receiver.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, string(rune('a'+i)), got.ID)
	}
}

func TestStdioChannelPeerExit(t *testing.T) {
	reader, writer := io.Pipe()
	receiver := NewStdioChannel(reader, io.Discard, nil)
	require.NoError(t, writer.Close())

	_, err := receiver.Receive(context.Background())
	assert.True(t, core.IsCode(err, core.ErrTransportClosed))
}

func TestPipeChannelRoundTrip(t *testing.T) {
	left, right := Pipe()
	ctx := context.Background()

	msg, err := NewMessage(TypePromptList, "p-1", nil)
	require.NoError(t, err)
	require.NoError(t, left.Send(ctx, msg))

	got, err := right.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p-1", got.ID)
}

func TestPipeChannelClose(t *testing.T) {
	left, right := Pipe()
	require.NoError(t, left.Close())

	err := left.Send(context.Background(), &Message{Type: TypeToolCall, ID: "x"})
	assert.True(t, core.IsCode(err, core.ErrTransportClosed))

	_, err = right.Receive(context.Background())
	assert.True(t, core.IsCode(err, core.ErrTransportClosed))
}

func TestPipeChannelDrainsAfterClose(t *testing.T) {
	left, right := Pipe()
	ctx := context.Background()

	require.NoError(t, left.Send(ctx, &Message{Type: TypeToolResult, ID: "r-1"}))
	require.NoError(t, left.Close())

	got, err := right.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r-1", got.ID)
}

func TestPipeChannelReceiveContextCancel(t *testing.T) {
	_, right := Pipe()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := right.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
