package security

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-kick/core"
)

// SealedTokenStore encrypts the access and refresh tokens of each snapshot
// before handing it to the wrapped store. Values written before sealing was
// enabled are returned as stored.
type SealedTokenStore struct {
	base    core.TokenStore
	secrets SecretProvider
}

func NewSealedTokenStore(base core.TokenStore, secrets SecretProvider) (*SealedTokenStore, error) {
	if base == nil {
		return nil, fmt.Errorf("security: token store is required")
	}
	if secrets == nil {
		return nil, fmt.Errorf("security: secret provider is required")
	}
	return &SealedTokenStore{base: base, secrets: secrets}, nil
}

func (s *SealedTokenStore) Save(ctx context.Context, token core.StoredToken) error {
	accessToken, err := s.seal(ctx, token.Data.AccessToken)
	if err != nil {
		return sealError(err, token.Key)
	}
	refreshToken, err := s.seal(ctx, token.Data.RefreshToken)
	if err != nil {
		return sealError(err, token.Key)
	}
	token.Data.AccessToken = accessToken
	token.Data.RefreshToken = refreshToken
	return s.base.Save(ctx, token)
}

func (s *SealedTokenStore) Load(ctx context.Context, key string) (core.StoredToken, error) {
	token, err := s.base.Load(ctx, key)
	if err != nil {
		return core.StoredToken{}, err
	}
	accessToken, err := s.open(ctx, token.Data.AccessToken)
	if err != nil {
		return core.StoredToken{}, sealError(err, key)
	}
	refreshToken, err := s.open(ctx, token.Data.RefreshToken)
	if err != nil {
		return core.StoredToken{}, sealError(err, key)
	}
	token.Data.AccessToken = accessToken
	token.Data.RefreshToken = refreshToken
	return token, nil
}

func (s *SealedTokenStore) Delete(ctx context.Context, key string) error {
	return s.base.Delete(ctx, key)
}

func (s *SealedTokenStore) seal(ctx context.Context, value string) (string, error) {
	if value == "" {
		return "", nil
	}
	sealed, err := s.secrets.Encrypt(ctx, []byte(value))
	if err != nil {
		return "", err
	}
	return string(sealed), nil
}

func (s *SealedTokenStore) open(ctx context.Context, value string) (string, error) {
	if value == "" || !IsEnvelope([]byte(value)) {
		return value, nil
	}
	opened, err := s.secrets.Decrypt(ctx, []byte(value))
	if err != nil {
		return "", err
	}
	return string(opened), nil
}

func sealError(source error, key string) error {
	return core.WrapError(nil, source, "security: seal stored token", goerrors.CategoryInternal, core.KickErrorInternal, map[string]any{
		"session_key": key,
	})
}

var _ core.TokenStore = (*SealedTokenStore)(nil)
