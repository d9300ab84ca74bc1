package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-kick/core"
)

type tokenServer struct {
	mu       sync.Mutex
	forms    []url.Values
	queries  []url.Values
	response func(form url.Values) (int, string)
}

func newTokenServer(t *testing.T, response func(form url.Values) (int, string)) (*httptest.Server, *tokenServer) {
	t.Helper()
	state := &tokenServer{response: response}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		state.mu.Lock()
		state.forms = append(state.forms, r.PostForm)
		state.queries = append(state.queries, r.URL.Query())
		state.mu.Unlock()

		status, body := state.response(r.PostForm)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, state
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		BaseURL:      baseURL,
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RedirectURI:  "https://app.example.com/callback",
		Scopes:       []string{"user:read", "events:subscribe"},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestAuthorizationURL_IncludesPKCEChallenge(t *testing.T) {
	client := newTestClient(t, "https://id.kick.com")

	auth, err := client.AuthorizationURL("", nil)
	if err != nil {
		t.Fatalf("authorization url: %v", err)
	}
	parsed, err := url.Parse(auth.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if parsed.Host != "id.kick.com" || parsed.Path != AuthorizePath {
		t.Fatalf("unexpected authorize endpoint %s", auth.URL)
	}
	query := parsed.Query()
	if query.Get("code_challenge") != codeChallenge(auth.CodeVerifier) {
		t.Fatalf("expected challenge derived from verifier")
	}
	if query.Get("code_challenge_method") != "S256" || query.Get("response_type") != "code" {
		t.Fatalf("unexpected pkce parameters %v", query)
	}
	if query.Get("scope") != "user:read events:subscribe" {
		t.Fatalf("expected configured scopes, got %q", query.Get("scope"))
	}
	if auth.State == "" || query.Get("state") != auth.State {
		t.Fatalf("expected generated state to round trip")
	}

	other, err := client.AuthorizationURL("fixed", []string{"chat:write", "chat:write"})
	if err != nil {
		t.Fatalf("authorization url: %v", err)
	}
	if other.State != "fixed" || other.CodeVerifier == auth.CodeVerifier {
		t.Fatalf("expected caller state and a fresh verifier")
	}
	if len(other.Scopes) != 1 || other.Scopes[0] != "chat:write" {
		t.Fatalf("expected de-duplicated scopes, got %v", other.Scopes)
	}
}

func TestCodeChallenge_MatchesRFC7636Example(t *testing.T) {
	if got := codeChallenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"); got != "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM" {
		t.Fatalf("unexpected challenge %q", got)
	}
}

func TestExchangeCode_ReturnsRefreshableUserToken(t *testing.T) {
	server, state := newTokenServer(t, func(form url.Values) (int, string) {
		switch form.Get("grant_type") {
		case "authorization_code":
			return http.StatusOK, `{"access_token":"user-a","token_type":"Bearer","refresh_token":"user-r","expires_in":7200,"scope":"user:read"}`
		case "refresh_token":
			return http.StatusOK, `{"access_token":"user-b","token_type":"Bearer","expires_in":7200}`
		}
		return http.StatusBadRequest, `{"error":"unsupported_grant_type"}`
	})
	client := newTestClient(t, server.URL)

	token, err := client.ExchangeCode(context.Background(), "code-1", "verifier-1")
	if err != nil {
		t.Fatalf("exchange code: %v", err)
	}
	if token.AccessToken() != "user-a" || token.RefreshToken() != "user-r" || token.IsAppToken() {
		t.Fatalf("unexpected user token %+v", token.Snapshot())
	}
	form := state.forms[0]
	if form.Get("code_verifier") != "verifier-1" || form.Get("client_id") != "client-1" || form.Get("redirect_uri") != "https://app.example.com/callback" {
		t.Fatalf("unexpected exchange form %v", form)
	}

	result, err := token.GetNewToken(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if result.Status != core.RefreshStatusRefreshed || token.AccessToken() != "user-b" {
		t.Fatalf("expected in-place refresh, got %q %q", result.Status, token.AccessToken())
	}
	if token.RefreshToken() != "user-r" || token.Scope() != "user:read" {
		t.Fatalf("expected previous refresh token and scope kept, got %q %q", token.RefreshToken(), token.Scope())
	}
	if state.forms[1].Get("refresh_token") != "user-r" {
		t.Fatalf("expected refresh grant to send the refresh token")
	}
}

func TestAppToken_UsesClientCredentials(t *testing.T) {
	server, state := newTokenServer(t, func(url.Values) (int, string) {
		return http.StatusOK, `{"access_token":"app-a","token_type":"Bearer","expires_in":5000}`
	})
	client := newTestClient(t, server.URL)

	token, err := client.AppToken(context.Background())
	if err != nil {
		t.Fatalf("app token: %v", err)
	}
	if !token.IsAppToken() || token.Refreshable() {
		t.Fatalf("expected non-refreshable app token")
	}
	if state.forms[0].Get("grant_type") != "client_credentials" || state.forms[0].Get("client_secret") != "secret-1" {
		t.Fatalf("unexpected client credentials form %v", state.forms[0])
	}
	result, err := token.GetNewToken(context.Background())
	if err != nil || result.Status != core.RefreshStatusNotRefreshable {
		t.Fatalf("expected not refreshable, got %q %v", result.Status, err)
	}
}

func TestRefresh_WithoutRefreshTokenIsNotRefreshable(t *testing.T) {
	client := newTestClient(t, "https://id.kick.com")
	if _, err := client.Refresh(context.Background(), core.TokenData{AccessToken: "a"}); !errors.Is(err, core.ErrNotRefreshable) {
		t.Fatalf("expected not refreshable, got %v", err)
	}
}

func TestFetchToken_MapsEndpointErrors(t *testing.T) {
	server, _ := newTokenServer(t, func(url.Values) (int, string) {
		return http.StatusBadRequest, `{"error":"invalid_grant","error_description":"refresh token revoked"}`
	})
	client := newTestClient(t, server.URL)

	_, err := client.Refresh(context.Background(), core.TokenData{AccessToken: "a", RefreshToken: "r"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %v", err)
	}
	if rich.Category != goerrors.CategoryAuth || rich.TextCode != core.KickErrorNotAuthenticated {
		t.Fatalf("unexpected mapping %s %s", rich.Category, rich.TextCode)
	}

	limited, _ := newTokenServer(t, func(url.Values) (int, string) {
		return http.StatusTooManyRequests, `{}`
	})
	client = newTestClient(t, limited.URL)
	_, err = client.AppToken(context.Background())
	if mapped := core.MapError(err); mapped.TextCode != core.KickErrorRateLimited {
		t.Fatalf("expected rate limited, got %s", mapped.TextCode)
	}
}

func TestRevokeToken_SendsTokenHint(t *testing.T) {
	server, state := newTokenServer(t, func(url.Values) (int, string) {
		return http.StatusOK, ``
	})
	client := newTestClient(t, server.URL)

	if err := client.RevokeToken(context.Background(), "user-a", "access_token"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if state.queries[0].Get("token") != "user-a" || state.queries[0].Get("token_hint_type") != "access_token" {
		t.Fatalf("unexpected revoke query %v", state.queries[0])
	}
}

func TestSessionRestoresTokenWithClientRefresher(t *testing.T) {
	server, _ := newTokenServer(t, func(url.Values) (int, string) {
		return http.StatusOK, `{"access_token":"fresh","refresh_token":"r2","expires_in":3600}`
	})
	client := newTestClient(t, server.URL)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	token, err := core.NewToken(core.TokenData{AccessToken: "stale", RefreshToken: "r1", ExpiresIn: 1},
		core.WithRefresher(client),
		core.WithTokenClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	now = now.Add(time.Minute)
	if !token.IsExpired() {
		t.Fatalf("expected token expired")
	}
	if _, err := token.GetNewToken(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if token.AccessToken() != "fresh" || token.RefreshToken() != "r2" {
		t.Fatalf("expected rotated refresh token, got %q", token.RefreshToken())
	}
}

func TestNewClient_RequiresClientID(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected missing client id to fail")
	}
	client, err := NewClient(ConfigFromCore(core.Config{
		AuthBaseURL: "https://id.kick.com/",
		OAuth:       core.OAuthConfig{ClientID: "abc"},
	}))
	if err != nil {
		t.Fatalf("new client from core config: %v", err)
	}
	if client.cfg.BaseURL != "https://id.kick.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", client.cfg.BaseURL)
	}
	if _, err := client.AuthorizationURL("", nil); err == nil {
		t.Fatalf("expected missing redirect uri to fail")
	}
}
