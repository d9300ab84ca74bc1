package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	KickErrorBadInput             = "KICK_BAD_INPUT"
	KickErrorNotAuthenticated     = "KICK_NOT_AUTHENTICATED"
	KickErrorRefreshFailed        = "KICK_REFRESH_FAILED"
	KickErrorVerificationFailed   = "KICK_VERIFICATION_FAILED"
	KickErrorPublicKeyUnavailable = "KICK_PUBLIC_KEY_UNAVAILABLE"
	KickErrorTokenNotFound        = "KICK_TOKEN_NOT_FOUND"
	KickErrorRateLimited          = "KICK_RATE_LIMITED"
	KickErrorExternalFailure      = "KICK_EXTERNAL_FAILURE"
	KickErrorInternal             = "KICK_INTERNAL_ERROR"
)

var (
	ErrNotAuthenticated     = errors.New("core: not authenticated")
	ErrNotRefreshable       = errors.New("core: token is not refreshable")
	ErrRefreshFailed        = errors.New("core: token refresh failed")
	ErrPublicKeyUnavailable = errors.New("core: public key unavailable")
	ErrVerificationFailed   = errors.New("core: webhook verification failed")
	ErrTokenNotFound        = errors.New("core: token not found")
	ErrInvalidToken         = errors.New("core: invalid token")
)

// NewError joins sentinel with a rich go-errors envelope so callers can use
// errors.Is against the sentinel and goerrors.As for category and codes.
func NewError(sentinel error, message string, category goerrors.Category, textCode string, metadata map[string]any) error {
	rich := goerrors.New(message, category).
		WithCode(kickHTTPStatus(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		rich.WithMetadata(metadata)
	}
	if sentinel == nil {
		return rich
	}
	return errors.Join(sentinel, rich)
}

// WrapError is NewError with a source error carried by the envelope.
func WrapError(sentinel error, source error, message string, category goerrors.Category, textCode string, metadata map[string]any) error {
	if source == nil {
		return NewError(sentinel, message, category, textCode, metadata)
	}
	rich := goerrors.Wrap(source, category, message).
		WithCode(kickHTTPStatus(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		rich.WithMetadata(metadata)
	}
	if sentinel == nil {
		return errors.Join(rich, source)
	}
	return errors.Join(sentinel, rich, source)
}

func badInputError(message string, metadata map[string]any) error {
	return NewError(nil, message, goerrors.CategoryBadInput, KickErrorBadInput, metadata)
}

func invalidTokenError(message string, metadata map[string]any) error {
	return NewError(ErrInvalidToken, message, goerrors.CategoryBadInput, KickErrorBadInput, metadata)
}

// TokenNotFoundError reports a missing persisted token for key.
func TokenNotFoundError(key string) error {
	return tokenNotFoundError(key)
}

func tokenNotFoundError(key string) error {
	return NewError(ErrTokenNotFound, "core: token not found", goerrors.CategoryNotFound, KickErrorTokenNotFound, map[string]any{
		"session_key": strings.TrimSpace(key),
	})
}

func notAuthenticatedError(operation string) error {
	return NewError(
		ErrNotAuthenticated,
		"core: a token or auth token must be set before "+operation,
		goerrors.CategoryAuth,
		KickErrorNotAuthenticated,
		map[string]any{"operation": operation},
	)
}

func refreshError(source error) error {
	return WrapError(
		ErrRefreshFailed,
		source,
		"core: token refresh failed",
		goerrors.CategoryExternal,
		KickErrorRefreshFailed,
		nil,
	)
}

// MapError converts any error into a go-errors envelope with a stable Kick
// text code and an HTTP status.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return ensureKickErrorEnvelope(richOr(err, goerrors.CategoryAuth, KickErrorNotAuthenticated))
	case errors.Is(err, ErrRefreshFailed):
		return ensureKickErrorEnvelope(richOr(err, goerrors.CategoryExternal, KickErrorRefreshFailed))
	case errors.Is(err, ErrVerificationFailed):
		return ensureKickErrorEnvelope(richOr(err, goerrors.CategoryAuth, KickErrorVerificationFailed))
	case errors.Is(err, ErrPublicKeyUnavailable):
		return ensureKickErrorEnvelope(richOr(err, goerrors.CategoryExternal, KickErrorPublicKeyUnavailable))
	case errors.Is(err, ErrTokenNotFound):
		return ensureKickErrorEnvelope(richOr(err, goerrors.CategoryNotFound, KickErrorTokenNotFound))
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureKickErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return newKickError(err.Error(), goerrors.CategoryRateLimit, KickErrorRateLimited)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newKickError(err.Error(), goerrors.CategoryBadInput, KickErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureKickErrorEnvelope(mapped)
}

func richOr(err error, category goerrors.Category, textCode string) *goerrors.Error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return newKickError(err.Error(), category, textCode)
}

func newKickError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureKickErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureKickErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = kickHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultKickTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultKickTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return KickErrorBadInput
	case goerrors.CategoryNotFound:
		return KickErrorTokenNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return KickErrorNotAuthenticated
	case goerrors.CategoryRateLimit:
		return KickErrorRateLimited
	case goerrors.CategoryExternal:
		return KickErrorExternalFailure
	default:
		return KickErrorInternal
	}
}

func kickHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
