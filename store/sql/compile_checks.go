package sqlstore

import (
	"github.com/goliatone/go-kick/core"
	"github.com/goliatone/go-kick/query"
)

var (
	_ core.TokenStore           = (*TokenStore)(nil)
	_ core.TokenStore           = (*CachedTokenStore)(nil)
	_ query.DeliveryStateReader = (*WebhookDeliveryStore)(nil)
)
