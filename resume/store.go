// Package resume persists session resumption handles so that a reconnecting
// session, or a restarted process, can pick up the server-side context.
package resume

import (
	"context"
	"errors"
	"sync"
)

// ErrInvalidKey is returned for an empty key.
var ErrInvalidKey = errors.New("invalid resumption key")

// Store saves and loads handles by key. An unknown key loads as "".
type Store interface {
	Load(ctx context.Context, key string) (string, error)
	Save(ctx context.Context, key, handle string) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore keeps handles in process memory. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	handles map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{handles: make(map[string]string)}
}

// Load returns the handle stored under key.
func (s *MemoryStore) Load(_ context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handles[key], nil
}

// Save stores handle under key, replacing any previous value.
func (s *MemoryStore) Save(_ context.Context, key, handle string) error {
	if key == "" {
		return ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[key] = handle
	return nil
}

// Delete removes key. Deleting an unknown key is not an error.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, key)
	return nil
}
