package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-kick/core"
)

const tokenCacheKeyPrefix = "go-kick::token::v1"

// CachedTokenStore serves Load from a read-through cache and drops the
// cached entry on every write.
type CachedTokenStore struct {
	base  core.TokenStore
	cache repositorycache.CacheService
}

func NewCachedTokenStore(base core.TokenStore, cacheService repositorycache.CacheService) (*CachedTokenStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base token store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: token cache service is required")
	}
	return &CachedTokenStore{base: base, cache: cacheService}, nil
}

// TokenCacheKey returns go-kick::token::v1::<session_key> with the key URL
// path escaped.
func TokenCacheKey(sessionKey string) (string, error) {
	sessionKey = strings.TrimSpace(sessionKey)
	if sessionKey == "" {
		return "", fmt.Errorf("sqlstore: session key is required")
	}
	return tokenCacheKeyPrefix + "::" + url.PathEscape(sessionKey), nil
}

func (s *CachedTokenStore) Load(ctx context.Context, key string) (core.StoredToken, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.StoredToken{}, fmt.Errorf("sqlstore: cached token store is not configured")
	}
	cacheKey, err := TokenCacheKey(key)
	if err != nil {
		return core.StoredToken{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.StoredToken, error) {
		return s.base.Load(ctx, strings.TrimSpace(key))
	})
}

func (s *CachedTokenStore) Save(ctx context.Context, token core.StoredToken) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached token store is not configured")
	}
	cacheKey, err := TokenCacheKey(token.Key)
	if err != nil {
		return err
	}
	if err := s.base.Save(ctx, token); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func (s *CachedTokenStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached token store is not configured")
	}
	cacheKey, err := TokenCacheKey(key)
	if err != nil {
		return err
	}
	if err := s.base.Delete(ctx, key); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}
