package core

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationExportImportRoundTrip(t *testing.T) {
	conv := NewConversation()
	conv.Append(NewUserMessage("what is 2+2?"))
	conv.Append(NewMessage(RoleAssistant,
		TextPart{Text: "let me check"},
		ToolCallPart{CallID: "c1", Name: "calc", Arguments: `{"expr":"2+2"}`}))
	conv.Append(NewToolResultMessage("c1", "calc", 4, nil))
	conv.Append(NewAssistantMessage("4"))

	blob, err := conv.Export()
	require.NoError(t, err)

	restored := NewConversation()
	require.NoError(t, restored.Import(blob))

	src := conv.Messages()
	dst := restored.Messages()
	require.Len(t, dst, len(src))
	for i := range src {
		assert.Equal(t, src[i].ID, dst[i].ID)
		assert.Equal(t, src[i].Role, dst[i].Role)
		assert.Equal(t, src[i].Text(), dst[i].Text())
		assert.Equal(t, src[i].ToolCalls(), dst[i].ToolCalls())
	}
}

func TestConversationImportIsACopy(t *testing.T) {
	source := NewConversation()
	source.Append(NewUserMessage("original"))
	blob, err := source.Export()
	require.NoError(t, err)

	imported := NewConversation()
	require.NoError(t, imported.Import(blob))

	source.Append(NewUserMessage("after export"))
	assert.Equal(t, 1, imported.Len())
}

func TestConversationImportRejectsUnknownVersion(t *testing.T) {
	conv := NewConversation()
	err := conv.Import([]byte(`{"version":99,"messages":[]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestExecutionContextWriteOnce(t *testing.T) {
	ec := NewExecutionContext(map[string]string{"input": "seed"})

	require.NoError(t, ec.Set("step1", "out"))

	err := ec.Set("step1", "overwrite")
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrOutputKeyCollision))

	// Seeded keys count as written.
	err = ec.Set("input", "again")
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrOutputKeyCollision))

	v, ok := ec.Get("step1")
	require.True(t, ok)
	assert.Equal(t, "out", v)
}

func TestExecutionContextConcurrentDistinctKeys(t *testing.T) {
	ec := NewExecutionContext(nil)
	var wg sync.WaitGroup
	for _, key := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			assert.NoError(t, ec.Set(k, k))
		}(key)
	}
	wg.Wait()
	assert.Len(t, ec.Keys(), 4)
}

func TestErrorCarriesOrigin(t *testing.T) {
	err := Errorf(ErrTimeout, "step deadline").WithStep("summarize").WithAgent("writer")
	assert.Contains(t, err.Error(), "TIMEOUT")
	assert.Contains(t, err.Error(), "step=summarize")
	assert.Contains(t, err.Error(), "agent=writer")
}

func TestErrorCodeMatching(t *testing.T) {
	inner := NewError(ErrSessionClosed, "gone")
	wrapped := Errorf(ErrTransportClosed, "channel failed").WithCause(inner)

	assert.Equal(t, ErrTransportClosed, CodeOf(wrapped))
	assert.True(t, errors.Is(wrapped, &Error{Code: ErrTransportClosed}))
	assert.False(t, errors.Is(wrapped, &Error{Code: ErrTimeout}))
	assert.True(t, IsCode(inner, ErrSessionClosed))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}

func TestMessageTextConcatenatesParts(t *testing.T) {
	msg := NewMessage(RoleAssistant,
		TextPart{Text: "first "},
		ToolCallPart{Name: "ignored"},
		TextPart{Text: "second"})
	assert.Equal(t, "first second", msg.Text())
}
