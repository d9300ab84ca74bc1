package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-kick/core"
)

var (
	_ gocmd.Querier[TokenStatusMessage, TokenStatus] = (*TokenStatusQuery)(nil)
	_ gocmd.Querier[PublicKeyMessage, string]        = (*PublicKeyQuery)(nil)
	_ gocmd.Querier[DeliveryStateMessage, string]    = (*DeliveryStateQuery)(nil)

	_ TokenReader     = (*core.Session)(nil)
	_ PublicKeyReader = (*core.Session)(nil)
)
