package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type sessionBuilder struct {
	runtimeConfig    Config
	logger           Logger
	loggerProvider   LoggerProvider
	metricsRecorder  MetricsRecorder
	errorMapper      ErrorMapper
	configProvider   ConfigProvider
	optionsResolver  OptionsResolver
	transport        HTTPTransport
	transportFactory TransportFactory
	tokenStore       TokenStore
	events           *EventBus
	now              func() time.Time
}

type Option func(*sessionBuilder)

func WithLogger(logger Logger) Option {
	return func(b *sessionBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *sessionBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *sessionBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *sessionBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *sessionBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *sessionBuilder) {
		b.optionsResolver = resolver
	}
}

// WithTransport sets the outbound transport. It takes precedence over
// WithTransportFactory.
func WithTransport(transport HTTPTransport) Option {
	return func(b *sessionBuilder) {
		b.transport = transport
	}
}

// WithTransportFactory builds the transport from the resolved config.
func WithTransportFactory(factory TransportFactory) Option {
	return func(b *sessionBuilder) {
		b.transportFactory = factory
	}
}

func WithTokenStore(store TokenStore) Option {
	return func(b *sessionBuilder) {
		b.tokenStore = store
	}
}

func WithEventBus(bus *EventBus) Option {
	return func(b *sessionBuilder) {
		b.events = bus
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *sessionBuilder) {
		b.now = now
	}
}

func defaultSessionBuilder(runtime Config) sessionBuilder {
	loggerProvider, logger := glog.Resolve("kick", nil, nil)
	return sessionBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     MapError,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString := func(target map[string]any, key string, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			target[key] = strings.TrimSpace(value)
		}
	}
	setDuration := func(target map[string]any, key string, value time.Duration) {
		if includeZero || value != 0 {
			target[key] = value
		}
	}

	setString(layer, "service_name", cfg.ServiceName)
	setString(layer, "session_key", cfg.SessionKey)
	setString(layer, "base_url", cfg.BaseURL)
	setString(layer, "auth_base_url", cfg.AuthBaseURL)
	setDuration(layer, "request_timeout", cfg.RequestTimeout)
	setDuration(layer, "public_key_ttl", cfg.PublicKeyTTL)

	oauth := map[string]any{}
	setString(oauth, "client_id", cfg.OAuth.ClientID)
	setString(oauth, "client_secret", cfg.OAuth.ClientSecret)
	setString(oauth, "redirect_uri", cfg.OAuth.RedirectURI)
	if includeZero || len(cfg.OAuth.Scopes) > 0 {
		oauth["scopes"] = append([]string(nil), cfg.OAuth.Scopes...)
	}
	if len(oauth) > 0 {
		layer["oauth"] = oauth
	}

	webhooks := map[string]any{}
	setDuration(webhooks, "max_skew", cfg.Webhooks.MaxSkew)
	setDuration(webhooks, "dedupe_ttl", cfg.Webhooks.DedupeTTL)
	if includeZero || cfg.Webhooks.LoadKeyOnMiss {
		webhooks["load_key_on_miss"] = cfg.Webhooks.LoadKeyOnMiss
	}
	if len(webhooks) > 0 {
		layer["webhooks"] = webhooks
	}
	return layer
}
