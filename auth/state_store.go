package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-kick/core"
)

const (
	defaultPendingTTL        = 15 * time.Minute
	defaultPendingMaxEntries = 1024
)

var ErrUnknownState = errors.New("auth: unknown or expired authorization state")

// PendingAuthorization is the server side half of an Authorization, kept
// until the callback presents the same state.
type PendingAuthorization struct {
	State        string
	CodeVerifier string
	Scopes       []string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

type StateStore interface {
	Save(ctx context.Context, pending PendingAuthorization) error
	Consume(ctx context.Context, state string) (PendingAuthorization, error)
}

// MemoryStateStore keeps pending authorizations in process. Each state can be
// consumed once.
type MemoryStateStore struct {
	Now func() time.Time

	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]PendingAuthorization
}

func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	return NewMemoryStateStoreWithLimits(ttl, defaultPendingMaxEntries)
}

func NewMemoryStateStoreWithLimits(ttl time.Duration, maxEntries int) *MemoryStateStore {
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultPendingMaxEntries
	}
	return &MemoryStateStore{
		Now:        func() time.Time { return time.Now().UTC() },
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    map[string]PendingAuthorization{},
	}
}

func (s *MemoryStateStore) Save(_ context.Context, pending PendingAuthorization) error {
	state := strings.TrimSpace(pending.State)
	if state == "" {
		return badInput("auth: authorization state is required")
	}
	if strings.TrimSpace(pending.CodeVerifier) == "" {
		return badInput("auth: code verifier is required")
	}
	now := s.Now()
	if pending.CreatedAt.IsZero() {
		pending.CreatedAt = now
	}
	if pending.ExpiresAt.IsZero() {
		pending.ExpiresAt = pending.CreatedAt.Add(s.ttl)
	}
	pending.State = state
	pending.Scopes = append([]string(nil), pending.Scopes...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)
	if _, exists := s.entries[state]; !exists && len(s.entries) >= s.maxEntries {
		s.evictOldestLocked()
	}
	s.entries[state] = pending
	return nil
}

func (s *MemoryStateStore) Consume(_ context.Context, state string) (PendingAuthorization, error) {
	state = strings.TrimSpace(state)
	s.mu.Lock()
	pending, ok := s.entries[state]
	if ok {
		delete(s.entries, state)
	}
	s.mu.Unlock()

	if !ok || state == "" || s.Now().After(pending.ExpiresAt) {
		return PendingAuthorization{}, unknownState()
	}
	pending.Scopes = append([]string(nil), pending.Scopes...)
	return pending, nil
}

func (s *MemoryStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStateStore) pruneLocked(now time.Time) {
	for state, pending := range s.entries {
		if now.After(pending.ExpiresAt) {
			delete(s.entries, state)
		}
	}
}

func (s *MemoryStateStore) evictOldestLocked() {
	oldest := ""
	var oldestAt time.Time
	for state, pending := range s.entries {
		if oldest == "" || pending.CreatedAt.Before(oldestAt) {
			oldest = state
			oldestAt = pending.CreatedAt
		}
	}
	delete(s.entries, oldest)
}

// BeginAuthorization builds the consent URL and records its verifier in
// store under the generated state.
func (c *Client) BeginAuthorization(ctx context.Context, store StateStore, scopes []string) (Authorization, error) {
	if store == nil {
		return Authorization{}, badInput("auth: state store is required")
	}
	authorization, err := c.AuthorizationURL("", scopes)
	if err != nil {
		return Authorization{}, err
	}
	if err := store.Save(ctx, PendingAuthorization{
		State:        authorization.State,
		CodeVerifier: authorization.CodeVerifier,
		Scopes:       authorization.Scopes,
		CreatedAt:    c.cfg.Now(),
	}); err != nil {
		return Authorization{}, err
	}
	return authorization, nil
}

// CompleteAuthorization consumes state and exchanges code with the verifier
// saved by BeginAuthorization.
func (c *Client) CompleteAuthorization(ctx context.Context, store StateStore, state string, code string) (*core.Token, error) {
	if store == nil {
		return nil, badInput("auth: state store is required")
	}
	pending, err := store.Consume(ctx, state)
	if err != nil {
		return nil, err
	}
	return c.ExchangeCode(ctx, code, pending.CodeVerifier)
}

func unknownState() error {
	return core.NewError(ErrUnknownState, "auth: unknown or expired authorization state", goerrors.CategoryAuth, core.KickErrorNotAuthenticated, nil)
}

var _ StateStore = (*MemoryStateStore)(nil)
