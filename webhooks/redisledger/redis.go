// Package redisledger provides a Redis-backed webhooks.DeliveryLedger so
// replicas behind one webhook endpoint share duplicate detection.
package redisledger

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-kick/core"
	"github.com/goliatone/go-kick/query"
	"github.com/goliatone/go-kick/webhooks"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

const (
	defaultAddr      = "localhost:6379"
	defaultKeyPrefix = "kick:webhooks:"
	defaultTTL       = 10 * time.Minute

	stateClaimed    = "claimed"
	stateDispatched = "dispatched"
)

// Config for the ledger. Defaults can be loaded via envdecode.
type Config struct {
	// Addr like "localhost:6379". ENV: KICK_REDIS_ADDR
	Addr string `env:"KICK_REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: KICK_WEBHOOK_LEDGER_PREFIX
	KeyPrefix string `env:"KICK_WEBHOOK_LEDGER_PREFIX,default=kick:webhooks:"`
	// TTL used when Claim receives none. ENV: KICK_WEBHOOK_DEDUPE_TTL
	TTL time.Duration `env:"KICK_WEBHOOK_DEDUPE_TTL,default=10m"`

	// Client overrides Addr when set.
	Client *redis.Client
}

type Ledger struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func New(ctx context.Context, cfg Config) (*Ledger, error) {
	client := cfg.Client
	if client == nil {
		addr := strings.TrimSpace(cfg.Addr)
		if addr == "" {
			addr = defaultAddr
		}
		client = redis.NewClient(&redis.Options{Addr: addr})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, core.WrapError(nil, err, "redisledger: ping", goerrors.CategoryExternal, core.KickErrorExternalFailure, nil)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Ledger{client: client, keyPrefix: prefix, ttl: ttl}, nil
}

// NewFromEnv builds a Ledger using envdecode to populate Config.
func NewFromEnv(ctx context.Context) (*Ledger, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, core.WrapError(nil, err, "redisledger: decode env", goerrors.CategoryBadInput, core.KickErrorBadInput, nil)
	}
	return New(ctx, cfg)
}

func (l *Ledger) Close() error { return l.client.Close() }

func (l *Ledger) key(messageID string) string { return l.keyPrefix + "delivery:" + messageID }

// Claim stores messageID with SET NX so only the first caller wins.
func (l *Ledger) Claim(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return false, core.NewError(nil, "redisledger: message id is required", goerrors.CategoryBadInput, core.KickErrorBadInput, nil)
	}
	if ttl <= 0 {
		ttl = l.ttl
	}
	claimed, err := l.client.SetNX(ctx, l.key(messageID), stateClaimed, ttl).Result()
	if err != nil {
		return false, core.WrapError(nil, err, "redisledger: claim delivery", goerrors.CategoryExternal, core.KickErrorExternalFailure, map[string]any{
			"message_id": messageID,
		})
	}
	return claimed, nil
}

// Complete marks a claimed delivery as dispatched, keeping its expiry.
func (l *Ledger) Complete(ctx context.Context, messageID string) error {
	err := l.client.SetArgs(ctx, l.key(strings.TrimSpace(messageID)), stateDispatched, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if err != nil && err != redis.Nil {
		return core.WrapError(nil, err, "redisledger: complete delivery", goerrors.CategoryExternal, core.KickErrorExternalFailure, map[string]any{
			"message_id": messageID,
		})
	}
	return nil
}

// State returns the recorded state of messageID, or "" when unknown.
func (l *Ledger) State(ctx context.Context, messageID string) (string, error) {
	state, err := l.client.Get(ctx, l.key(strings.TrimSpace(messageID))).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", core.WrapError(nil, err, "redisledger: read delivery", goerrors.CategoryExternal, core.KickErrorExternalFailure, nil)
	}
	return state, nil
}

var (
	_ webhooks.DeliveryLedger    = (*Ledger)(nil)
	_ webhooks.DeliveryCompleter = (*Ledger)(nil)
	_ query.DeliveryStateReader  = (*Ledger)(nil)
)
