package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-kick/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TokenStore persists one token snapshot per session key in kick_tokens.
type TokenStore struct {
	db   *bun.DB
	repo repository.Repository[*tokenRecord]
}

func NewTokenStore(db *bun.DB) (*TokenStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*tokenRecord](db, tokenHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid token repository wiring: %w", err)
		}
	}
	return &TokenStore{db: db, repo: repo}, nil
}

// Save inserts the snapshot or replaces the one stored under the same key.
func (s *TokenStore) Save(ctx context.Context, token core.StoredToken) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: token store is not configured")
	}
	key := strings.TrimSpace(token.Key)
	if key == "" {
		return fmt.Errorf("sqlstore: session key is required")
	}
	if err := token.Data.Validate(); err != nil {
		return err
	}
	data := token.Data.Normalize()
	now := time.Now().UTC()
	if !token.UpdatedAt.IsZero() {
		now = token.UpdatedAt.UTC()
	}

	current, found, err := s.find(ctx, key)
	if err != nil {
		return err
	}
	if !found {
		record := &tokenRecord{
			ID:         uuid.NewString(),
			SessionKey: key,
			CreatedAt:  now,
		}
		applyTokenData(record, data, token.IssuedAt, now)
		_, createErr := s.repo.Create(ctx, record)
		if createErr == nil {
			return nil
		}
		if !isUniqueViolation(createErr) {
			return createErr
		}
		current, found, err = s.find(ctx, key)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("sqlstore: token for session %q vanished during save", key)
		}
	}

	applyTokenData(current, data, token.IssuedAt, now)
	_, err = s.repo.Update(ctx, current, repository.UpdateByID(current.ID))
	return err
}

// Load returns core.ErrTokenNotFound when nothing is stored under key.
func (s *TokenStore) Load(ctx context.Context, key string) (core.StoredToken, error) {
	if s == nil || s.repo == nil {
		return core.StoredToken{}, fmt.Errorf("sqlstore: token store is not configured")
	}
	key = strings.TrimSpace(key)
	record, found, err := s.find(ctx, key)
	if err != nil {
		return core.StoredToken{}, err
	}
	if !found {
		return core.StoredToken{}, core.TokenNotFoundError(key)
	}
	return record.toDomain(), nil
}

func (s *TokenStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: token store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*tokenRecord)(nil)).
		Where("session_key = ?", strings.TrimSpace(key)).
		Exec(ctx)
	return err
}

func (s *TokenStore) find(ctx context.Context, key string) (*tokenRecord, bool, error) {
	if key == "" {
		return nil, false, nil
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("session_key", "=", key),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return nil, false, nil
	}
	return records[0], true, nil
}

func applyTokenData(record *tokenRecord, data core.TokenData, issuedAt time.Time, now time.Time) {
	if issuedAt.IsZero() {
		issuedAt = now
	}
	record.AccessToken = data.AccessToken
	record.TokenType = data.TokenType
	record.RefreshToken = data.RefreshToken
	record.ExpiresIn = data.ExpiresIn
	record.Scope = data.Scope
	record.IssuedAt = issuedAt.UTC()
	record.UpdatedAt = now
}

func (r *tokenRecord) toDomain() core.StoredToken {
	if r == nil {
		return core.StoredToken{}
	}
	return core.StoredToken{
		Key: r.SessionKey,
		Data: core.TokenData{
			AccessToken:  r.AccessToken,
			TokenType:    r.TokenType,
			RefreshToken: r.RefreshToken,
			ExpiresIn:    r.ExpiresIn,
			Scope:        r.Scope,
		},
		IssuedAt:  r.IssuedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}
