package webhooks

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-kick/core"
)

func verificationError(message string, env Envelope) error {
	return core.NewError(
		core.ErrVerificationFailed,
		message,
		goerrors.CategoryAuth,
		core.KickErrorVerificationFailed,
		map[string]any{"message_id": env.MessageID, "event_type": env.EventType},
	)
}

func verificationWrapError(source error, message string, env Envelope) error {
	return core.WrapError(
		core.ErrVerificationFailed,
		source,
		message,
		goerrors.CategoryAuth,
		core.KickErrorVerificationFailed,
		map[string]any{"message_id": env.MessageID, "event_type": env.EventType},
	)
}

func publicKeyError(source error, message string) error {
	return core.WrapError(
		core.ErrPublicKeyUnavailable,
		source,
		message,
		goerrors.CategoryExternal,
		core.KickErrorPublicKeyUnavailable,
		nil,
	)
}

func decodeError(source error, env Envelope) error {
	return core.WrapError(
		nil,
		source,
		"webhooks: malformed event payload",
		goerrors.CategoryBadInput,
		core.KickErrorBadInput,
		map[string]any{"message_id": env.MessageID, "event_type": env.EventType},
	)
}

func reservedEventError(env Envelope) error {
	return core.NewError(
		nil,
		"webhooks: event type is reserved for session events",
		goerrors.CategoryBadInput,
		core.KickErrorBadInput,
		map[string]any{"message_id": env.MessageID, "event_type": env.EventType},
	)
}
