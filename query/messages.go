package query

import "strings"

const (
	TypeTokenStatus   = "kick.query.token.status"
	TypePublicKey     = "kick.query.public_key"
	TypeDeliveryState = "kick.query.webhook_delivery.state"
)

type TokenStatusMessage struct{}

func (TokenStatusMessage) Type() string { return TypeTokenStatus }

// PublicKeyMessage loads the webhook key, fetching it when nothing is cached.
type PublicKeyMessage struct{}

func (PublicKeyMessage) Type() string { return TypePublicKey }

type DeliveryStateMessage struct {
	MessageID string
}

func (DeliveryStateMessage) Type() string { return TypeDeliveryState }

func (m DeliveryStateMessage) Validate() error {
	if strings.TrimSpace(m.MessageID) == "" {
		return queryValidationError("message_id", "message id is required")
	}
	return nil
}
