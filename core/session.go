package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"golang.org/x/sync/singleflight"
)

type TokenCheckStatus string

const (
	TokenCheckNoToken          TokenCheckStatus = "no_token"
	TokenCheckValid            TokenCheckStatus = "valid"
	TokenCheckRefreshAttempted TokenCheckStatus = "refresh_attempted"
)

type TokenCheck struct {
	Status  TokenCheckStatus
	Refresh RefreshResult
}

// Refreshed reports whether the check replaced the token.
func (c TokenCheck) Refreshed() bool {
	return c.Status == TokenCheckRefreshAttempted && c.Refresh.Status == RefreshStatusRefreshed
}

// Session coordinates the current credential with the outbound transport and
// the cached webhook public key.
type Session struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	transport       HTTPTransport
	tokenStore      TokenStore
	events          *EventBus
	now             func() time.Time

	mu                 sync.Mutex
	token              *Token
	legacy             bool
	unsubscribeRefresh func()

	// headerMu guards headerOwner and every Authorization header write. It is
	// taken under a token lock when a refresh commits.
	headerMu    sync.Mutex
	headerOwner *Token

	keyMu         sync.RWMutex
	publicKey     string
	keyFetchedAt  time.Time
	keyGeneration uint64
	keyFlight     singleflight.Group
}

func NewSession(cfg Config, opts ...Option) (*Session, error) {
	builder := defaultSessionBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("kick", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("kick"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = MapError
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.events == nil {
		builder.events = NewEventBus()
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}
	builder.events.now = builder.now

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	transport := builder.transport
	if transport == nil && builder.transportFactory != nil {
		transport = builder.transportFactory(finalConfig)
	}
	if transport == nil {
		return nil, mapBuildError(builder.errorMapper, badInputError("core: http transport is required", nil))
	}

	return &Session{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		transport:       transport,
		tokenStore:      builder.tokenStore,
		events:          builder.events,
		now:             builder.now,
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Session) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Session) Transport() HTTPTransport {
	if s == nil {
		return nil
	}
	return s.transport
}

func (s *Session) Events() *EventBus {
	if s == nil {
		return nil
	}
	return s.events
}

func (s *Session) Logger() Logger {
	if s == nil || s.logger == nil {
		return glog.Nop()
	}
	return s.logger
}

func (s *Session) LoggerProvider() LoggerProvider {
	if s == nil {
		return nil
	}
	return s.loggerProvider
}

func (s *Session) MetricsRecorder() MetricsRecorder {
	if s == nil || s.metricsRecorder == nil {
		return NopMetricsRecorder{}
	}
	return s.metricsRecorder
}

func (s *Session) Subscribe(name string, handler EventHandler) (Subscription, error) {
	return s.events.Subscribe(name, handler)
}

func (s *Session) Unsubscribe(sub Subscription) bool {
	return s.events.Unsubscribe(sub)
}

// Token returns the managed token, or nil when none is set.
func (s *Session) Token() *Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// IsAuthenticated reports whether an Authorization header is configured,
// either from a managed token or a legacy auth token.
func (s *Session) IsAuthenticated() bool {
	return strings.TrimSpace(s.transport.Header(HeaderAuthorization)) != ""
}

// SetToken makes token the session credential and reloads the public key
// with it. A key load failure is returned but the token stays set.
func (s *Session) SetToken(ctx context.Context, token *Token) error {
	return s.setToken(ctx, token, true)
}

func (s *Session) setToken(ctx context.Context, token *Token, persist bool) (err error) {
	startedAt := s.now()
	if token == nil {
		return badInputError("core: token is required", nil)
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "set_token", err, map[string]any{
			"app_token": token.IsAppToken(),
		})
	}()

	s.mu.Lock()
	if s.unsubscribeRefresh != nil {
		s.unsubscribeRefresh()
	}
	s.token = token
	s.legacy = false
	s.headerMu.Lock()
	s.headerOwner = token
	s.headerMu.Unlock()
	unbind := token.bindCommit(func(data TokenData) {
		s.commitHeader(token, data)
	})
	unsubscribe := token.OnRefresh(func(data TokenData) {
		s.applyRefresh(ctx, token, data)
	})
	s.unsubscribeRefresh = func() {
		unbind()
		unsubscribe()
	}
	s.mu.Unlock()

	var persistErr error
	if persist {
		persistErr = s.persist(ctx, token)
	}
	s.events.Emit(ctx, EventTokenSet, token)

	s.InvalidatePublicKey()
	_, keyErr := s.EnsurePublicKey(ctx)
	return errors.Join(persistErr, keyErr)
}

// SetAuthToken installs a raw bearer credential without lifecycle
// management.
//
// Deprecated: use SetToken so the credential can be refreshed.
func (s *Session) SetAuthToken(ctx context.Context, accessToken string) error {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return badInputError("core: auth token is required", nil)
	}
	s.logWithLevel(ctx, "warn", "SetAuthToken is deprecated, use SetToken", nil)

	s.mu.Lock()
	if s.unsubscribeRefresh != nil {
		s.unsubscribeRefresh()
		s.unsubscribeRefresh = nil
	}
	s.token = nil
	s.legacy = true
	s.replaceHeader(bearer(accessToken))
	s.mu.Unlock()

	s.events.Emit(ctx, EventAuthTokenSet, nil)
	s.InvalidatePublicKey()
	_, err := s.EnsurePublicKey(ctx)
	return err
}

// ClearToken drops the current credential and removes any persisted
// snapshot.
func (s *Session) ClearToken(ctx context.Context) error {
	s.mu.Lock()
	if s.unsubscribeRefresh != nil {
		s.unsubscribeRefresh()
		s.unsubscribeRefresh = nil
	}
	s.token = nil
	s.legacy = false
	s.replaceHeader("")
	s.mu.Unlock()

	s.InvalidatePublicKey()
	if s.tokenStore == nil {
		return nil
	}
	return s.tokenStore.Delete(ctx, s.config.SessionKey)
}

// CheckToken refreshes the managed token when it has expired. Concurrent
// callers share one refresh.
func (s *Session) CheckToken(ctx context.Context) (TokenCheck, error) {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	if token == nil {
		return TokenCheck{Status: TokenCheckNoToken}, nil
	}
	if !token.IsExpired() {
		return TokenCheck{Status: TokenCheckValid}, nil
	}

	startedAt := s.now()
	result, err := token.GetNewToken(ctx)
	s.observeOperation(ctx, startedAt, "refresh_token", err, map[string]any{
		"refresh_status": string(result.Status),
	})
	if err != nil {
		s.events.Emit(ctx, EventTokenRefreshFailed, err)
		return TokenCheck{Status: TokenCheckRefreshAttempted}, err
	}
	return TokenCheck{Status: TokenCheckRefreshAttempted, Refresh: result}, nil
}

// RestoreToken loads the persisted snapshot for this session and sets it as
// the current token, keeping its original issue time.
func (s *Session) RestoreToken(ctx context.Context, refresher TokenRefresher) (*Token, error) {
	if s.tokenStore == nil {
		return nil, badInputError("core: token store is not configured", nil)
	}
	stored, err := s.tokenStore.Load(ctx, s.config.SessionKey)
	if err != nil {
		return nil, err
	}
	opts := []TokenOption{WithIssuedAt(stored.IssuedAt), WithTokenClock(s.now)}
	if refresher != nil {
		opts = append(opts, WithRefresher(refresher))
	}
	token, err := NewToken(stored.Data, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.setToken(ctx, token, false); err != nil {
		return token, err
	}
	return token, nil
}

// Do sends req through the transport after refreshing an expired token.
func (s *Session) Do(ctx context.Context, req TransportRequest) (res TransportResponse, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.IsAuthenticated() {
		return TransportResponse{}, notAuthenticatedError("sending requests")
	}
	if _, err := s.CheckToken(ctx); err != nil {
		return TransportResponse{}, err
	}
	if req.Timeout <= 0 {
		req.Timeout = s.config.RequestTimeout
	}

	startedAt := s.now()
	res, err = s.transport.Do(ctx, req)
	tags := map[string]string{"method": strings.ToUpper(strings.TrimSpace(req.Method))}
	if err != nil {
		tags["status"] = "failure"
	} else {
		tags["status"] = "success"
	}
	s.recordCounter(ctx, MetricRequestTotal, 1, tags)
	s.recordHistogram(ctx, MetricRequestDurationMilli, float64(s.now().Sub(startedAt).Milliseconds()), tags)
	return res, err
}

// commitHeader runs under the token lock while a refresh of token commits, so
// the header and the token change together.
func (s *Session) commitHeader(token *Token, data TokenData) {
	s.headerMu.Lock()
	defer s.headerMu.Unlock()
	if s.headerOwner != token {
		return
	}
	s.transport.SetHeader(HeaderAuthorization, bearer(data.AccessToken))
}

// replaceHeader detaches the header from any managed token and sets it to
// value, or removes it when value is empty.
func (s *Session) replaceHeader(value string) {
	s.headerMu.Lock()
	defer s.headerMu.Unlock()
	s.headerOwner = nil
	if value == "" {
		s.transport.DeleteHeader(HeaderAuthorization)
		return
	}
	s.transport.SetHeader(HeaderAuthorization, value)
}

func (s *Session) applyRefresh(ctx context.Context, token *Token, data TokenData) {
	s.mu.Lock()
	current := s.token == token
	s.mu.Unlock()
	if !current {
		return
	}

	ctx = context.WithoutCancel(ctx)
	if err := s.persist(ctx, token); err != nil {
		s.logError(ctx, "persist refreshed token failed", map[string]any{"error": err.Error()})
	}
	s.events.Emit(ctx, EventTokenRefreshed, data)
}

func (s *Session) persist(ctx context.Context, token *Token) error {
	if s.tokenStore == nil || token == nil {
		return nil
	}
	return s.tokenStore.Save(ctx, StoredToken{
		Key:       s.config.SessionKey,
		Data:      token.Snapshot(),
		IssuedAt:  token.IssuedAt(),
		UpdatedAt: s.now(),
	})
}

func bearer(accessToken string) string {
	return TokenTypeBearer + " " + strings.TrimSpace(accessToken)
}
