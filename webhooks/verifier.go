package webhooks

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-kick/core"
)

// SignatureVerifier checks Kick's RSA SHA-256 signatures against the public
// key held by its provider. Verify never touches the network.
type SignatureVerifier struct {
	Keys    core.PublicKeyProvider
	MaxSkew time.Duration
	Now     func() time.Time

	mu     sync.Mutex
	pem    string
	parsed *rsa.PublicKey
}

func NewSignatureVerifier(keys core.PublicKeyProvider) *SignatureVerifier {
	return &SignatureVerifier{Keys: keys}
}

// EnsureKeyLoaded asks the provider for the key, fetching it when needed.
func (v *SignatureVerifier) EnsureKeyLoaded(ctx context.Context) error {
	if v == nil || v.Keys == nil {
		return publicKeyError(nil, "webhooks: verifier has no key provider")
	}
	pem, err := v.Keys.EnsurePublicKey(ctx)
	if err != nil {
		return err
	}
	_, err = v.rsaKey(pem)
	return err
}

// Verify checks env's signature with the cached public key.
func (v *SignatureVerifier) Verify(env Envelope) error {
	if v == nil || v.Keys == nil {
		return publicKeyError(nil, "webhooks: verifier has no key provider")
	}
	pem, ok := v.Keys.CachedPublicKey()
	if !ok {
		return publicKeyError(nil, "webhooks: public key is not loaded")
	}
	key, err := v.rsaKey(pem)
	if err != nil {
		return err
	}

	if env.MessageID == "" || env.Timestamp == "" || env.Signature == "" {
		return verificationError("webhooks: missing signature headers", env)
	}
	if err := v.checkSkew(env); err != nil {
		return err
	}
	signature, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil {
		return verificationWrapError(err, "webhooks: signature is not valid base64", env)
	}
	if err := jwt.SigningMethodRS256.Verify(env.SigningInput(), signature, key); err != nil {
		return verificationWrapError(err, "webhooks: signature mismatch", env)
	}
	return nil
}

func (v *SignatureVerifier) rsaKey(pem string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.parsed != nil && v.pem == pem {
		return v.parsed, nil
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(strings.TrimSpace(pem)))
	if err != nil {
		return nil, publicKeyError(err, "webhooks: parse public key")
	}
	v.pem = pem
	v.parsed = key
	return key, nil
}

func (v *SignatureVerifier) checkSkew(env Envelope) error {
	if v.MaxSkew <= 0 {
		return nil
	}
	sentAt, ok := parseTimestamp(env.Timestamp)
	if !ok {
		return verificationError("webhooks: malformed message timestamp", env)
	}
	now := time.Now().UTC()
	if v.Now != nil {
		now = v.Now().UTC()
	}
	skew := now.Sub(sentAt)
	if skew < 0 {
		skew = -skew
	}
	if skew > v.MaxSkew {
		return verificationError("webhooks: message timestamp outside allowed skew", env)
	}
	return nil
}

// parseTimestamp accepts RFC 3339 and unix seconds.
func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return parsed.UTC(), true
	}
	if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(seconds, 0).UTC(), true
	}
	return time.Time{}, false
}
