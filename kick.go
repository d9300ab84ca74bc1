// Package kick is the entry point of the Kick API client. It wires the core
// session to the REST transport and exposes the auth and webhook helpers
// built on top of it.
package kick

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-kick/adapters/gologger"
	"github.com/goliatone/go-kick/auth"
	"github.com/goliatone/go-kick/core"
	"github.com/goliatone/go-kick/transport"
	"github.com/goliatone/go-kick/webhooks"
)

type Config = core.Config
type OAuthConfig = core.OAuthConfig
type WebhookConfig = core.WebhookConfig

type Option = core.Option

type Session = core.Session
type Token = core.Token
type TokenData = core.TokenData
type TokenCheck = core.TokenCheck
type TokenRefresher = core.TokenRefresher
type RefreshFunc = core.RefreshFunc
type TokenStore = core.TokenStore
type StoredToken = core.StoredToken

type EventBus = core.EventBus
type Event = core.Event
type Subscription = core.Subscription

var (
	WithLogger           = core.WithLogger
	WithLoggerProvider   = core.WithLoggerProvider
	WithMetricsRecorder  = core.WithMetricsRecorder
	WithErrorMapper      = core.WithErrorMapper
	WithConfigProvider   = core.WithConfigProvider
	WithOptionsResolver  = core.WithOptionsResolver
	WithTransport        = core.WithTransport
	WithTransportFactory = core.WithTransportFactory
	WithTokenStore       = core.WithTokenStore
	WithEventBus         = core.WithEventBus
	WithClock            = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// New builds a session. Unless WithTransport or WithTransportFactory is
// given, requests go through the REST adapter against cfg.BaseURL.
func New(cfg Config, opts ...Option) (*Session, error) {
	all := make([]Option, 0, len(opts)+1)
	all = append(all, WithTransportFactory(transport.NewRESTTransport))
	all = append(all, opts...)
	return core.NewSession(cfg, all...)
}

// NewAuthClient builds a token client from the session's OAuth settings.
func NewAuthClient(session *Session) (*auth.Client, error) {
	if session == nil {
		return nil, core.NewError(nil, "kick: session is required", goerrors.CategoryBadInput, core.KickErrorBadInput, nil)
	}
	return auth.NewClient(auth.ConfigFromCore(session.Config()))
}

// NewWebhookDispatcher builds a dispatcher that emits on the session's event
// bus and logs as "kick.webhooks".
func NewWebhookDispatcher(session *Session, opts ...webhooks.DispatcherOption) (*webhooks.Dispatcher, error) {
	if session == nil {
		return webhooks.NewDispatcher(nil, opts...)
	}
	logger := gologger.ForComponent("webhooks", session.LoggerProvider(), session.Logger())
	all := make([]webhooks.DispatcherOption, 0, len(opts)+1)
	all = append(all, webhooks.WithLogger(logger))
	all = append(all, opts...)
	return webhooks.NewDispatcher(session, all...)
}
