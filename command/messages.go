package command

import (
	"strings"

	"github.com/goliatone/go-kick/core"
)

const (
	TypeSetToken         = "kick.command.token.set"
	TypeClearToken       = "kick.command.token.clear"
	TypeCheckToken       = "kick.command.token.check"
	TypeRestoreToken     = "kick.command.token.restore"
	TypeRefreshPublicKey = "kick.command.public_key.refresh"
)

// SetTokenMessage installs a managed token built from Data. Refresher is
// optional; without it the token cannot be renewed.
type SetTokenMessage struct {
	Data      core.TokenData
	Refresher core.TokenRefresher
}

func (SetTokenMessage) Type() string { return TypeSetToken }

func (m SetTokenMessage) Validate() error {
	if strings.TrimSpace(m.Data.AccessToken) == "" {
		return commandValidationError("access_token", "access token is required")
	}
	return commandWrapValidation(m.Data.Validate(), "command: invalid token data")
}

type ClearTokenMessage struct{}

func (ClearTokenMessage) Type() string { return TypeClearToken }

type CheckTokenMessage struct{}

func (CheckTokenMessage) Type() string { return TypeCheckToken }

type RestoreTokenMessage struct {
	Refresher core.TokenRefresher
}

func (RestoreTokenMessage) Type() string { return TypeRestoreToken }

// RefreshPublicKeyMessage drops the cached webhook key and fetches it again.
type RefreshPublicKeyMessage struct{}

func (RefreshPublicKeyMessage) Type() string { return TypeRefreshPublicKey }
