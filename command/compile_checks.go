package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-kick/core"
)

var (
	_ gocmd.Commander[SetTokenMessage]         = (*SetTokenCommand)(nil)
	_ gocmd.Commander[ClearTokenMessage]       = (*ClearTokenCommand)(nil)
	_ gocmd.Commander[CheckTokenMessage]       = (*CheckTokenCommand)(nil)
	_ gocmd.Commander[RestoreTokenMessage]     = (*RestoreTokenCommand)(nil)
	_ gocmd.Commander[RefreshPublicKeyMessage] = (*RefreshPublicKeyCommand)(nil)

	_ TokenSession     = (*core.Session)(nil)
	_ PublicKeySession = (*core.Session)(nil)
)
