package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-kick/webhooks"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultDeliveryTTL = 10 * time.Minute

// WebhookDeliveryStore is a webhooks.DeliveryLedger shared by every process
// using the same database. A message id can be claimed again once its row
// has expired.
type WebhookDeliveryStore struct {
	Now func() time.Time

	db   *bun.DB
	repo repository.Repository[*webhookDeliveryRecord]
}

func NewWebhookDeliveryStore(db *bun.DB) (*WebhookDeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookDeliveryRecord](db, webhookDeliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook delivery repository wiring: %w", err)
		}
	}
	return &WebhookDeliveryStore{
		Now:  func() time.Time { return time.Now().UTC() },
		db:   db,
		repo: repo,
	}, nil
}

func (s *WebhookDeliveryStore) Claim(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return false, fmt.Errorf("sqlstore: message id is required")
	}
	if ttl <= 0 {
		ttl = defaultDeliveryTTL
	}
	now := s.Now().UTC()

	record := &webhookDeliveryRecord{
		ID:        uuid.NewString(),
		MessageID: messageID,
		Status:    deliveryStatusClaimed,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if !isUniqueViolation(err) {
			return false, err
		}
		return s.reclaimExpired(ctx, messageID, now, ttl)
	}
	return true, nil
}

// Complete marks a claimed delivery as dispatched.
func (s *WebhookDeliveryStore) Complete(ctx context.Context, messageID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	_, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", deliveryStatusDispatched).
		Set("updated_at = ?", s.Now().UTC()).
		Where("message_id = ?", strings.TrimSpace(messageID)).
		Exec(ctx)
	return err
}

// State returns the stored status for messageID, or "" when unknown.
func (s *WebhookDeliveryStore) State(ctx context.Context, messageID string) (string, error) {
	if s == nil || s.repo == nil {
		return "", fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("message_id", "=", strings.TrimSpace(messageID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}
	return records[0].Status, nil
}

// PurgeExpired deletes rows whose dedupe window has passed.
func (s *WebhookDeliveryStore) PurgeExpired(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*webhookDeliveryRecord)(nil)).
		Where("expires_at <= ?", s.Now().UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *WebhookDeliveryStore) reclaimExpired(ctx context.Context, messageID string, now time.Time, ttl time.Duration) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", deliveryStatusClaimed).
		Set("expires_at = ?", now.Add(ttl)).
		Set("updated_at = ?", now).
		Where("message_id = ?", messageID).
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var (
	_ webhooks.DeliveryLedger    = (*WebhookDeliveryStore)(nil)
	_ webhooks.DeliveryCompleter = (*WebhookDeliveryStore)(nil)
)
