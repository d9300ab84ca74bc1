// Package auth talks to Kick's OAuth 2.1 identity service to obtain user and
// app tokens.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-kick/core"
)

const (
	AuthorizePath = "/oauth/authorize"
	TokenPath     = "/oauth/token"
	RevokePath    = "/oauth/revoke"

	CodeChallengeMethod = "S256"

	defaultTokenRequestTimeout = 30 * time.Second
	maxTokenResponseBodyBytes  = 1 << 20 // 1 MiB
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	BaseURL        string
	ClientID       string
	ClientSecret   string
	RedirectURI    string
	Scopes         []string
	RequestTimeout time.Duration
	HTTPClient     HTTPDoer
	Now            func() time.Time
}

// ConfigFromCore copies the OAuth settings of a session config.
func ConfigFromCore(cfg core.Config) Config {
	return Config{
		BaseURL:        cfg.AuthBaseURL,
		ClientID:       cfg.OAuth.ClientID,
		ClientSecret:   cfg.OAuth.ClientSecret,
		RedirectURI:    cfg.OAuth.RedirectURI,
		Scopes:         cfg.OAuth.Scopes,
		RequestTimeout: cfg.RequestTimeout,
	}
}

// Client issues and refreshes Kick tokens. It is a core.TokenRefresher for
// the user tokens it issues.
type Client struct {
	cfg        Config
	httpClient HTTPDoer
}

// Authorization is the first leg of the authorization code flow. Keep
// CodeVerifier server side until the callback arrives.
type Authorization struct {
	URL          string
	State        string
	CodeVerifier string
	Scopes       []string
}

type tokenEndpointPayload struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Scope            string `json:"scope"`
	ErrorCode        string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func NewClient(cfg Config) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(firstNonEmpty(cfg.BaseURL, core.DefaultAuthBaseURL), "/")
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.RedirectURI = strings.TrimSpace(cfg.RedirectURI)
	cfg.Scopes = normalizeScopes(cfg.Scopes)
	if cfg.ClientID == "" {
		return nil, badInput("auth: client id is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, core.WrapError(nil, err, "auth: invalid base url", goerrors.CategoryBadInput, core.KickErrorBadInput, nil)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultTokenRequestTimeout
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return &Client{cfg: cfg, httpClient: httpClient}, nil
}

// AuthorizationURL builds the consent URL with a fresh PKCE verifier. A blank
// state is generated; nil scopes fall back to the configured ones.
func (c *Client) AuthorizationURL(state string, scopes []string) (Authorization, error) {
	if c.cfg.RedirectURI == "" {
		return Authorization{}, badInput("auth: redirect uri is required for the authorization code flow")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		generated, err := randomToken(24)
		if err != nil {
			return Authorization{}, internal(err, "auth: generate state")
		}
		state = generated
	}
	verifier, err := randomToken(32)
	if err != nil {
		return Authorization{}, internal(err, "auth: generate code verifier")
	}
	requested := normalizeScopes(scopes)
	if len(requested) == 0 {
		requested = append([]string(nil), c.cfg.Scopes...)
	}

	values := url.Values{}
	values.Set("response_type", "code")
	values.Set("client_id", c.cfg.ClientID)
	values.Set("redirect_uri", c.cfg.RedirectURI)
	values.Set("scope", strings.Join(requested, " "))
	values.Set("state", state)
	values.Set("code_challenge", codeChallenge(verifier))
	values.Set("code_challenge_method", CodeChallengeMethod)

	return Authorization{
		URL:          c.cfg.BaseURL + AuthorizePath + "?" + values.Encode(),
		State:        state,
		CodeVerifier: verifier,
		Scopes:       requested,
	}, nil
}

// ExchangeCode redeems an authorization code for a refreshable user token.
func (c *Client) ExchangeCode(ctx context.Context, code string, verifier string) (*core.Token, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, badInput("auth: authorization code is required")
	}
	if strings.TrimSpace(verifier) == "" {
		return nil, badInput("auth: code verifier is required")
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	form.Set("code_verifier", strings.TrimSpace(verifier))

	data, err := c.fetchToken(ctx, form)
	if err != nil {
		return nil, err
	}
	return core.NewToken(data, core.WithRefresher(c), core.WithTokenClock(c.cfg.Now))
}

// AppToken obtains an app access token with the client credentials grant.
// App tokens carry no refresh token; request a new one when it expires.
func (c *Client) AppToken(ctx context.Context) (*core.Token, error) {
	if c.cfg.ClientSecret == "" {
		return nil, badInput("auth: client secret is required for app tokens")
	}
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	data, err := c.fetchToken(ctx, form)
	if err != nil {
		return nil, err
	}
	return core.NewToken(data, core.WithTokenClock(c.cfg.Now))
}

// Refresh redeems current's refresh token. The previous refresh token is kept
// when the response omits a new one.
func (c *Client) Refresh(ctx context.Context, current core.TokenData) (core.TokenData, error) {
	refreshToken := strings.TrimSpace(current.RefreshToken)
	if refreshToken == "" {
		return core.TokenData{}, core.ErrNotRefreshable
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	data, err := c.fetchToken(ctx, form)
	if err != nil {
		return core.TokenData{}, err
	}
	if data.RefreshToken == "" {
		data.RefreshToken = refreshToken
	}
	if data.Scope == "" {
		data.Scope = current.Scope
	}
	return data, nil
}

func (c *Client) RefreshToken(ctx context.Context, current core.TokenData) (core.TokenData, error) {
	return c.Refresh(ctx, current)
}

// RevokeToken invalidates an access or refresh token. hint is
// "access_token" or "refresh_token".
func (c *Client) RevokeToken(ctx context.Context, token string, hint string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return badInput("auth: token is required")
	}
	query := url.Values{}
	query.Set("token", token)
	if hint = strings.TrimSpace(hint); hint != "" {
		query.Set("token_hint_type", hint)
	}
	res, body, err := c.post(ctx, c.cfg.BaseURL+RevokePath+"?"+query.Encode(), url.Values{})
	if err != nil {
		return err
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return endpointError(res.StatusCode, parseTokenPayload(body))
	}
	return nil
}

func (c *Client) fetchToken(ctx context.Context, form url.Values) (core.TokenData, error) {
	form.Set("client_id", c.cfg.ClientID)
	if c.cfg.ClientSecret != "" {
		form.Set("client_secret", c.cfg.ClientSecret)
	}
	res, body, err := c.post(ctx, c.cfg.BaseURL+TokenPath, form)
	if err != nil {
		return core.TokenData{}, err
	}
	payload := parseTokenPayload(body)
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices || payload.ErrorCode != "" {
		return core.TokenData{}, endpointError(res.StatusCode, payload)
	}
	data := core.TokenData{
		AccessToken:  strings.TrimSpace(payload.AccessToken),
		TokenType:    payload.TokenType,
		RefreshToken: strings.TrimSpace(payload.RefreshToken),
		ExpiresIn:    payload.ExpiresIn,
		Scope:        strings.TrimSpace(payload.Scope),
	}.Normalize()
	if data.AccessToken == "" {
		return core.TokenData{}, core.NewError(nil, "auth: token response missing access token", goerrors.CategoryExternal, core.KickErrorExternalFailure, nil)
	}
	return data, nil
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values) (*http.Response, []byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	requestCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, core.WrapError(nil, err, "auth: create request", goerrors.CategoryBadInput, core.KickErrorBadInput, nil)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, core.WrapError(nil, err, "auth: token request failed", goerrors.CategoryExternal, core.KickErrorExternalFailure, nil)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxTokenResponseBodyBytes+1))
	if err != nil {
		return nil, nil, core.WrapError(nil, err, "auth: read token response", goerrors.CategoryExternal, core.KickErrorExternalFailure, nil)
	}
	if int64(len(body)) > maxTokenResponseBodyBytes {
		return nil, nil, core.NewError(nil, fmt.Sprintf("auth: token response exceeds %d bytes", maxTokenResponseBodyBytes), goerrors.CategoryExternal, core.KickErrorExternalFailure, nil)
	}
	return res, body, nil
}

func parseTokenPayload(body []byte) tokenEndpointPayload {
	var payload tokenEndpointPayload
	if len(strings.TrimSpace(string(body))) == 0 {
		return payload
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		values, formErr := url.ParseQuery(string(body))
		if formErr != nil {
			return payload
		}
		payload.ErrorCode = values.Get("error")
		payload.ErrorDescription = values.Get("error_description")
	}
	return payload
}

func endpointError(status int, payload tokenEndpointPayload) error {
	description := firstNonEmpty(payload.ErrorDescription, payload.ErrorCode, http.StatusText(status), "unknown error")
	category := goerrors.CategoryExternal
	textCode := core.KickErrorExternalFailure
	switch {
	case status == http.StatusTooManyRequests:
		category = goerrors.CategoryRateLimit
		textCode = core.KickErrorRateLimited
	case payload.ErrorCode == "invalid_grant", payload.ErrorCode == "invalid_client", status == http.StatusUnauthorized:
		category = goerrors.CategoryAuth
		textCode = core.KickErrorNotAuthenticated
	}
	return core.NewError(nil, fmt.Sprintf("auth: token endpoint error (%d): %s", status, description), category, textCode, map[string]any{
		"status_code": status,
		"error":       payload.ErrorCode,
	})
}

func badInput(message string) error {
	return core.NewError(nil, message, goerrors.CategoryBadInput, core.KickErrorBadInput, nil)
}

func internal(source error, message string) error {
	return core.WrapError(nil, source, message, goerrors.CategoryInternal, core.KickErrorInternal, nil)
}

var _ core.TokenRefresher = (*Client)(nil)
