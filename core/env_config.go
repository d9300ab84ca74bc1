package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// envSettings mirrors Config for environment overrides. Unset variables are
// left out of the raw map so lower layers keep their values.
type envSettings struct {
	ServiceName       string        `env:"KICK_SERVICE_NAME"`
	SessionKey        string        `env:"KICK_SESSION_KEY"`
	BaseURL           string        `env:"KICK_API_BASE_URL"`
	AuthBaseURL       string        `env:"KICK_AUTH_BASE_URL"`
	RequestTimeout    time.Duration `env:"KICK_REQUEST_TIMEOUT"`
	PublicKeyTTL      time.Duration `env:"KICK_PUBLIC_KEY_TTL"`
	ClientID          string        `env:"KICK_CLIENT_ID"`
	ClientSecret      string        `env:"KICK_CLIENT_SECRET"`
	RedirectURI       string        `env:"KICK_REDIRECT_URI"`
	Scopes            string        `env:"KICK_SCOPES"`
	WebhookMaxSkew    time.Duration `env:"KICK_WEBHOOK_MAX_SKEW"`
	WebhookDedupeTTL  time.Duration `env:"KICK_WEBHOOK_DEDUPE_TTL"`
	WebhookLoadOnMiss bool          `env:"KICK_WEBHOOK_LOAD_KEY_ON_MISS"`
}

// EnvConfigLoader reads KICK_* environment variables into a raw config map
// for CfgxConfigProvider.
type EnvConfigLoader struct{}

func NewEnvConfigProvider() *CfgxConfigProvider {
	return NewCfgxConfigProvider(EnvConfigLoader{})
}

func (EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	var settings envSettings
	if err := envdecode.Decode(&settings); err != nil {
		if errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("core: decode environment config: %w", err)
	}
	return settings.toRaw(), nil
}

func (s envSettings) toRaw() map[string]any {
	raw := map[string]any{}
	putString := func(target map[string]any, key string, value string) {
		if value = strings.TrimSpace(value); value != "" {
			target[key] = value
		}
	}
	putDuration := func(target map[string]any, key string, value time.Duration) {
		if value != 0 {
			target[key] = value
		}
	}

	putString(raw, "service_name", s.ServiceName)
	putString(raw, "session_key", s.SessionKey)
	putString(raw, "base_url", s.BaseURL)
	putString(raw, "auth_base_url", s.AuthBaseURL)
	putDuration(raw, "request_timeout", s.RequestTimeout)
	putDuration(raw, "public_key_ttl", s.PublicKeyTTL)

	oauth := map[string]any{}
	putString(oauth, "client_id", s.ClientID)
	putString(oauth, "client_secret", s.ClientSecret)
	putString(oauth, "redirect_uri", s.RedirectURI)
	if scopes := strings.Fields(strings.ReplaceAll(s.Scopes, ",", " ")); len(scopes) > 0 {
		oauth["scopes"] = scopes
	}
	if len(oauth) > 0 {
		raw["oauth"] = oauth
	}

	webhooks := map[string]any{}
	putDuration(webhooks, "max_skew", s.WebhookMaxSkew)
	putDuration(webhooks, "dedupe_ttl", s.WebhookDedupeTTL)
	if s.WebhookLoadOnMiss {
		webhooks["load_key_on_miss"] = true
	}
	if len(webhooks) > 0 {
		raw["webhooks"] = webhooks
	}
	return raw
}
