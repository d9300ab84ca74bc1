package core

import (
	"context"
	"strings"
	"sync"
)

// MemoryTokenStore keeps snapshots in process. It is the default for tests
// and single process tools.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]StoredToken
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: map[string]StoredToken{}}
}

func (s *MemoryTokenStore) Save(_ context.Context, token StoredToken) error {
	key := strings.TrimSpace(token.Key)
	if key == "" {
		return badInputError("core: token key is required", nil)
	}
	if err := token.Data.Validate(); err != nil {
		return err
	}
	token.Key = key
	token.Data = token.Data.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[key] = token
	return nil
}

func (s *MemoryTokenStore) Load(_ context.Context, key string) (StoredToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[strings.TrimSpace(key)]
	if !ok {
		return StoredToken{}, tokenNotFoundError(key)
	}
	return token, nil
}

func (s *MemoryTokenStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, strings.TrimSpace(key))
	return nil
}
