package core

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	TokenTypeBearer = "Bearer"

	// TokenExpiryBuffer is subtracted from the server lifetime so a token is
	// treated as expired slightly before the server rejects it.
	TokenExpiryBuffer = 5 * time.Second
)

// TokenData is the serialized form of a token. Field names are part of the
// persisted format.
type TokenData struct {
	AccessToken  string `json:"accessToken"`
	TokenType    string `json:"tokenType"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int64  `json:"expiresIn"`
	Scope        string `json:"scope,omitempty"`
}

func (d TokenData) Normalize() TokenData {
	d.AccessToken = strings.TrimSpace(d.AccessToken)
	d.RefreshToken = strings.TrimSpace(d.RefreshToken)
	d.Scope = strings.TrimSpace(d.Scope)
	d.TokenType = TokenTypeBearer
	return d
}

func (d TokenData) Validate() error {
	if strings.TrimSpace(d.AccessToken) == "" {
		return invalidTokenError("core: access token is required", nil)
	}
	if d.ExpiresIn < 0 {
		return invalidTokenError("core: expires in must not be negative", map[string]any{
			"expires_in": d.ExpiresIn,
		})
	}
	return nil
}

type RefreshStatus string

const (
	RefreshStatusRefreshed      RefreshStatus = "refreshed"
	RefreshStatusNotRefreshable RefreshStatus = "not_refreshable"
)

type RefreshResult struct {
	Status RefreshStatus
	Data   TokenData
}

type TokenOption func(*Token)

func WithRefresher(refresher TokenRefresher) TokenOption {
	return func(t *Token) {
		t.refresher = refresher
	}
}

// WithIssuedAt restores a token issued at a known instant, typically from a
// persisted snapshot.
func WithIssuedAt(issuedAt time.Time) TokenOption {
	return func(t *Token) {
		t.issuedAt = issuedAt.UTC()
	}
}

func WithTokenClock(now func() time.Time) TokenOption {
	return func(t *Token) {
		t.now = now
	}
}

type tokenListener struct {
	id uint64
	fn func(TokenData)
}

// Token is a managed access token. Refreshes mutate the token in place so
// every holder observes the new credential.
type Token struct {
	mu        sync.RWMutex
	data      TokenData
	issuedAt  time.Time
	expiresAt time.Time
	refresher TokenRefresher
	now       func() time.Time

	flight       singleflight.Group
	commits      []tokenListener
	listeners    []tokenListener
	nextListener uint64
}

func NewToken(data TokenData, opts ...TokenOption) (*Token, error) {
	data = data.Normalize()
	if err := data.Validate(); err != nil {
		return nil, err
	}
	token := &Token{data: data}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(token)
	}
	if token.issuedAt.IsZero() {
		token.issuedAt = token.clock()
	}
	token.expiresAt = tokenExpiry(token.issuedAt, data.ExpiresIn)
	return token, nil
}

func tokenExpiry(issuedAt time.Time, expiresIn int64) time.Time {
	return issuedAt.Add(time.Duration(expiresIn)*time.Second - TokenExpiryBuffer)
}

func (t *Token) clock() time.Time {
	if t.now != nil {
		return t.now().UTC()
	}
	return time.Now().UTC()
}

func (t *Token) AccessToken() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.data.AccessToken
}

func (t *Token) RefreshToken() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.data.RefreshToken
}

func (t *Token) TokenType() string {
	return TokenTypeBearer
}

func (t *Token) ExpiresIn() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.data.ExpiresIn
}

func (t *Token) Scope() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.data.Scope
}

func (t *Token) Scopes() []string {
	return strings.Fields(t.Scope())
}

func (t *Token) IssuedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.issuedAt
}

func (t *Token) ExpiresAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.expiresAt
}

func (t *Token) IsExpired() bool {
	now := t.clock()
	t.mu.RLock()
	defer t.mu.RUnlock()
	return !now.Before(t.expiresAt)
}

// IsAppToken reports whether the token was issued by the client credentials
// grant, which carries neither scopes nor a refresh token.
func (t *Token) IsAppToken() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.data.Scope == "" && t.data.RefreshToken == ""
}

func (t *Token) Refreshable() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.refresher != nil
}

func (t *Token) Snapshot() TokenData {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.data
}

func (t *Token) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Snapshot())
}

// OnRefresh registers fn to run after every successful refresh. The returned
// func removes the listener.
//
// Listeners run inside the shared refresh, so fn must not call GetNewToken on
// the same token: it would wait on the refresh that is running it.
func (t *Token) OnRefresh(fn func(TokenData)) func() {
	if fn == nil {
		return func() {}
	}
	t.mu.Lock()
	t.nextListener++
	id := t.nextListener
	t.listeners = append(t.listeners, tokenListener{id: id, fn: fn})
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, listener := range t.listeners {
			if listener.id == id {
				t.listeners = append(t.listeners[:i:i], t.listeners[i+1:]...)
				return
			}
		}
	}
}

// bindCommit registers fn to run under the token lock each time a refresh
// commits, before any other caller can read the new data. fn also runs once
// with the current data. fn must not call back into the token.
func (t *Token) bindCommit(fn func(TokenData)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextListener++
	id := t.nextListener
	t.commits = append(t.commits, tokenListener{id: id, fn: fn})
	fn(t.data)

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, commit := range t.commits {
			if commit.id == id {
				t.commits = append(t.commits[:i:i], t.commits[i+1:]...)
				return
			}
		}
	}
}

// GetNewToken refreshes the token through its refresher. Concurrent callers
// share one in-flight refresh. A caller whose context ends stops waiting but
// the shared refresh still completes and updates the token.
func (t *Token) GetNewToken(ctx context.Context) (RefreshResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	t.mu.RLock()
	refresher := t.refresher
	t.mu.RUnlock()
	if refresher == nil {
		return RefreshResult{Status: RefreshStatusNotRefreshable, Data: t.Snapshot()}, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := t.flight.DoChan("refresh", func() (any, error) {
		return t.refresh(detached, refresher)
	})
	select {
	case <-ctx.Done():
		return RefreshResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return RefreshResult{}, res.Err
		}
		return res.Val.(RefreshResult), nil
	}
}

func (t *Token) refresh(ctx context.Context, refresher TokenRefresher) (RefreshResult, error) {
	current := t.Snapshot()
	next, err := refresher.RefreshToken(ctx, current)
	if err != nil {
		if errors.Is(err, ErrNotRefreshable) {
			return RefreshResult{Status: RefreshStatusNotRefreshable, Data: current}, nil
		}
		return RefreshResult{}, refreshError(err)
	}
	next = next.Normalize()
	if err := next.Validate(); err != nil {
		return RefreshResult{}, refreshError(err)
	}

	issuedAt := t.clock()
	t.mu.Lock()
	t.data = next
	t.issuedAt = issuedAt
	t.expiresAt = tokenExpiry(issuedAt, next.ExpiresIn)
	for _, commit := range t.commits {
		commit.fn(next)
	}
	listeners := append([]tokenListener(nil), t.listeners...)
	t.mu.Unlock()

	for _, listener := range listeners {
		listener.fn(next)
	}
	return RefreshResult{Status: RefreshStatusRefreshed, Data: next}, nil
}
