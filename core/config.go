package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultAPIBaseURL     = "https://api.kick.com/public/v1"
	DefaultAuthBaseURL    = "https://id.kick.com"
	DefaultSessionKey     = "default"
	defaultRequestTimeout = 30 * time.Second
)

type OAuthConfig struct {
	ClientID     string   `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string   `koanf:"client_secret" mapstructure:"client_secret"`
	RedirectURI  string   `koanf:"redirect_uri" mapstructure:"redirect_uri"`
	Scopes       []string `koanf:"scopes" mapstructure:"scopes"`
}

type WebhookConfig struct {
	// MaxSkew bounds the accepted age of Kick-Event-Message-Timestamp. Zero
	// disables the check.
	MaxSkew time.Duration `koanf:"max_skew" mapstructure:"max_skew"`
	// DedupeTTL is how long a delivery id is remembered by a delivery ledger.
	DedupeTTL     time.Duration `koanf:"dedupe_ttl" mapstructure:"dedupe_ttl"`
	LoadKeyOnMiss bool          `koanf:"load_key_on_miss" mapstructure:"load_key_on_miss"`
}

type Config struct {
	ServiceName    string        `koanf:"service_name" mapstructure:"service_name"`
	SessionKey     string        `koanf:"session_key" mapstructure:"session_key"`
	BaseURL        string        `koanf:"base_url" mapstructure:"base_url"`
	AuthBaseURL    string        `koanf:"auth_base_url" mapstructure:"auth_base_url"`
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
	// PublicKeyTTL forces a refetch of the webhook public key once the cached
	// copy is older than the TTL. Zero keeps the key until invalidated.
	PublicKeyTTL time.Duration `koanf:"public_key_ttl" mapstructure:"public_key_ttl"`
	OAuth        OAuthConfig   `koanf:"oauth" mapstructure:"oauth"`
	Webhooks     WebhookConfig `koanf:"webhooks" mapstructure:"webhooks"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:    "kick",
		SessionKey:     DefaultSessionKey,
		BaseURL:        DefaultAPIBaseURL,
		AuthBaseURL:    DefaultAuthBaseURL,
		RequestTimeout: defaultRequestTimeout,
		Webhooks: WebhookConfig{
			DedupeTTL: 10 * time.Minute,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.SessionKey) == "" {
		return fmt.Errorf("core: session_key is required")
	}
	for field, value := range map[string]string{"base_url": c.BaseURL, "auth_base_url": c.AuthBaseURL} {
		parsed, err := url.Parse(strings.TrimSpace(value))
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("core: %s must be an absolute url", field)
		}
	}
	if c.RequestTimeout < 0 || c.PublicKeyTTL < 0 {
		return fmt.Errorf("core: durations must not be negative")
	}
	if c.Webhooks.MaxSkew < 0 || c.Webhooks.DedupeTTL < 0 {
		return fmt.Errorf("core: webhook durations must not be negative")
	}
	return nil
}
