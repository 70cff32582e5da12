package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/agentweave/core"
)

// stores returns each locally testable implementation under a name.
func stores(t *testing.T) map[string]ConversationStore {
	t.Helper()
	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return map[string]ConversationStore{
		"memory": NewMemoryStore(),
		"file":   fileStore,
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			conv := core.NewConversation()
			conv.Append(core.NewUserMessage("hello"))
			conv.Append(core.NewAssistantMessage("hi there"))
			blob, err := conv.Export()
			require.NoError(t, err)

			require.NoError(t, s.Save(ctx, "session-1", blob))

			loaded, err := s.Load(ctx, "session-1")
			require.NoError(t, err)
			assert.Equal(t, blob, loaded)

			restored := core.NewConversation()
			require.NoError(t, restored.Import(loaded))
			require.Equal(t, 2, restored.Len())
			assert.Equal(t, conv.Messages()[0].Text(), restored.Messages()[0].Text())
		})
	}
}

func TestStoreLoadMissingKey(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Load(context.Background(), "absent")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreSaveReplacesExisting(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, "k", []byte("first")))
			require.NoError(t, s.Save(ctx, "k", []byte("second")))

			blob, err := s.Load(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("second"), blob)
		})
	}
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, "k", []byte("v")))
			require.NoError(t, s.Delete(ctx, "k"))
			require.NoError(t, s.Delete(ctx, "k"))

			_, err := s.Load(ctx, "k")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreListSortsKeys(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, key := range []string{"gamma", "alpha", "beta/with/slashes"} {
				require.NoError(t, s.Save(ctx, key, []byte(key)))
			}

			keys, err := s.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"alpha", "beta/with/slashes", "gamma"}, keys)
		})
	}
}

func TestMemoryStoreCopiesBlobs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	blob := []byte("original")
	require.NoError(t, s.Save(ctx, "k", blob))
	blob[0] = 'X'

	loaded, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), loaded)

	loaded[0] = 'Y'
	again, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, "persisted", []byte("blob")))

	second, err := NewFileStore(dir)
	require.NoError(t, err)
	blob, err := second.Load(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), blob)
}
