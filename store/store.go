// Package store persists exported conversations as opaque blobs. The blobs
// come from Conversation.Export and round-trip through Import unchanged, so
// the store never needs to understand message structure.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound reports a missing conversation key.
var ErrNotFound = fmt.Errorf("conversation not found")

// ConversationStore is the persistence sink for exported conversations.
type ConversationStore interface {
	// Save writes the blob under key, replacing any previous value.
	Save(ctx context.Context, key string, blob []byte) error
	// Load returns the blob stored under key, or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)
	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns all stored keys sorted lexically.
	List(ctx context.Context) ([]string, error)
}

// MemoryStore is an in-process ConversationStore for tests and single-node
// setups.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Save implements ConversationStore.
func (s *MemoryStore) Save(_ context.Context, key string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(blob))
	copy(stored, blob)
	s.blobs[key] = stored
	return nil
}

// Load implements ConversationStore.
func (s *MemoryStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, nil
}

// Delete implements ConversationStore.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

// List implements ConversationStore.
func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.blobs))
	for key := range s.blobs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}
