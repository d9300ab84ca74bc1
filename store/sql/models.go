package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	deliveryStatusClaimed    = "claimed"
	deliveryStatusDispatched = "dispatched"
)

type tokenRecord struct {
	bun.BaseModel `bun:"table:kick_tokens,alias:kt"`

	ID           string    `bun:"id,pk"`
	SessionKey   string    `bun:"session_key,notnull"`
	AccessToken  string    `bun:"access_token,notnull"`
	TokenType    string    `bun:"token_type,notnull"`
	RefreshToken string    `bun:"refresh_token,notnull"`
	ExpiresIn    int64     `bun:"expires_in,notnull"`
	Scope        string    `bun:"scope,notnull"`
	IssuedAt     time.Time `bun:"issued_at,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type webhookDeliveryRecord struct {
	bun.BaseModel `bun:"table:kick_webhook_deliveries,alias:kwd"`

	ID        string    `bun:"id,pk"`
	MessageID string    `bun:"message_id,notnull"`
	Status    string    `bun:"status,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
