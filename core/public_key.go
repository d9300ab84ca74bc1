package core

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const PublicKeyPath = "/public-key"

type publicKeyEnvelope struct {
	Data struct {
		PublicKey string `json:"public_key"`
	} `json:"data"`
}

// UsesLegacyAuthToken reports whether the credential came from
// SetAuthToken.
func (s *Session) UsesLegacyAuthToken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.legacy
}

// CachedPublicKey returns the cached key without any network access. A key
// older than Config.PublicKeyTTL is reported as missing.
func (s *Session) CachedPublicKey() (string, bool) {
	s.keyMu.RLock()
	defer s.keyMu.RUnlock()
	if s.publicKey == "" {
		return "", false
	}
	if ttl := s.config.PublicKeyTTL; ttl > 0 && s.now().Sub(s.keyFetchedAt) >= ttl {
		return "", false
	}
	return s.publicKey, true
}

// InvalidatePublicKey drops the cached key. Fetches started before the call
// do not repopulate the cache.
func (s *Session) InvalidatePublicKey() {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()
	s.publicKey = ""
	s.keyFetchedAt = s.now()
	s.keyGeneration++
}

// EnsurePublicKey returns the cached key or fetches it with the current
// credential, refreshing an expired token first. Concurrent callers share one
// fetch.
func (s *Session) EnsurePublicKey(ctx context.Context) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if key, ok := s.CachedPublicKey(); ok {
		return key, nil
	}
	if !s.IsAuthenticated() {
		return "", notAuthenticatedError("loading the public key")
	}
	if _, err := s.CheckToken(ctx); err != nil {
		return "", err
	}

	s.keyMu.RLock()
	generation := s.keyGeneration
	s.keyMu.RUnlock()

	detached := context.WithoutCancel(ctx)
	ch := s.keyFlight.DoChan("public-key:"+strconv.FormatUint(generation, 10), func() (any, error) {
		return s.fetchPublicKey(detached, generation)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (s *Session) fetchPublicKey(ctx context.Context, generation uint64) (key string, err error) {
	startedAt := s.now()
	defer func() {
		s.observeOperation(ctx, startedAt, "fetch_public_key", err, nil)
	}()

	res, err := s.transport.Do(ctx, TransportRequest{
		Method:  http.MethodGet,
		URL:     PublicKeyPath,
		Timeout: s.config.RequestTimeout,
	})
	if err != nil {
		return "", WrapError(ErrPublicKeyUnavailable, err, "core: fetch public key", goerrors.CategoryExternal, KickErrorPublicKeyUnavailable, nil)
	}
	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		return "", NewError(ErrNotAuthenticated, "core: public key request was not authorized", goerrors.CategoryAuth, KickErrorNotAuthenticated, map[string]any{
			"status_code": res.StatusCode,
		})
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return "", NewError(ErrPublicKeyUnavailable, "core: public key request failed", goerrors.CategoryExternal, KickErrorPublicKeyUnavailable, map[string]any{
			"status_code": res.StatusCode,
		})
	}

	var envelope publicKeyEnvelope
	if err := json.Unmarshal(res.Body, &envelope); err != nil {
		return "", WrapError(ErrPublicKeyUnavailable, err, "core: decode public key response", goerrors.CategoryExternal, KickErrorPublicKeyUnavailable, nil)
	}
	key = strings.TrimSpace(envelope.Data.PublicKey)
	if key == "" {
		return "", NewError(ErrPublicKeyUnavailable, "core: public key response was empty", goerrors.CategoryExternal, KickErrorPublicKeyUnavailable, nil)
	}

	s.keyMu.Lock()
	stored := s.keyGeneration == generation
	if stored {
		s.publicKey = key
		s.keyFetchedAt = s.now()
	}
	s.keyMu.Unlock()

	if stored {
		s.events.Emit(ctx, EventPublicKeyLoaded, key)
	}
	return key, nil
}
