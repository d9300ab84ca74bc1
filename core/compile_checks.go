package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ TokenRefresher    = RefreshFunc(nil)
	_ TokenRefresher    = NoRefresh{}
	_ TokenStore        = (*MemoryTokenStore)(nil)
	_ PublicKeyProvider = (*Session)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
