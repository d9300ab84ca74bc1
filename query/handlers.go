package query

import (
	"context"
	"time"

	"github.com/goliatone/go-kick/core"
)

type TokenReader interface {
	Token() *core.Token
	UsesLegacyAuthToken() bool
}

type PublicKeyReader interface {
	EnsurePublicKey(ctx context.Context) (string, error)
}

// DeliveryStateReader reports the ledger status of a webhook message id, ""
// when the id was never claimed.
type DeliveryStateReader interface {
	State(ctx context.Context, messageID string) (string, error)
}

// TokenStatus describes the current credential without exposing it.
type TokenStatus struct {
	Authenticated bool
	Legacy        bool
	Expired       bool
	AppToken      bool
	Refreshable   bool
	Scopes        []string
	ExpiresAt     time.Time
}

type TokenStatusQuery struct {
	reader TokenReader
}

func NewTokenStatusQuery(reader TokenReader) *TokenStatusQuery {
	return &TokenStatusQuery{reader: reader}
}

func (q *TokenStatusQuery) Query(_ context.Context, _ TokenStatusMessage) (TokenStatus, error) {
	if q == nil || q.reader == nil {
		return TokenStatus{}, queryDependencyError("query: token reader is required")
	}
	if q.reader.UsesLegacyAuthToken() {
		return TokenStatus{Authenticated: true, Legacy: true}, nil
	}
	token := q.reader.Token()
	if token == nil {
		return TokenStatus{}, nil
	}
	return TokenStatus{
		Authenticated: true,
		Expired:       token.IsExpired(),
		AppToken:      token.IsAppToken(),
		Refreshable:   token.Refreshable(),
		Scopes:        token.Scopes(),
		ExpiresAt:     token.ExpiresAt(),
	}, nil
}

type PublicKeyQuery struct {
	reader PublicKeyReader
}

func NewPublicKeyQuery(reader PublicKeyReader) *PublicKeyQuery {
	return &PublicKeyQuery{reader: reader}
}

func (q *PublicKeyQuery) Query(ctx context.Context, _ PublicKeyMessage) (string, error) {
	if q == nil || q.reader == nil {
		return "", queryDependencyError("query: public key reader is required")
	}
	return q.reader.EnsurePublicKey(ctx)
}

type DeliveryStateQuery struct {
	reader DeliveryStateReader
}

func NewDeliveryStateQuery(reader DeliveryStateReader) *DeliveryStateQuery {
	return &DeliveryStateQuery{reader: reader}
}

func (q *DeliveryStateQuery) Query(ctx context.Context, msg DeliveryStateMessage) (string, error) {
	if q == nil || q.reader == nil {
		return "", queryDependencyError("query: delivery state reader is required")
	}
	if err := msg.Validate(); err != nil {
		return "", err
	}
	return q.reader.State(ctx, msg.MessageID)
}
