package gologger

import (
	glog "github.com/goliatone/go-logger/glog"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ForComponent resolves a logger and scopes it to a named component of the
// client, e.g. "kick.webhooks".
func ForComponent(component string, provider glog.LoggerProvider, logger glog.Logger) glog.Logger {
	name := "kick"
	if component != "" {
		name = "kick." + component
	}
	_, resolved := Resolve(name, provider, logger)
	return resolved
}
