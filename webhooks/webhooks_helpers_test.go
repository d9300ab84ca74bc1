package webhooks

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-kick/core"
	glog "github.com/goliatone/go-logger/glog"
)

type signingKey struct {
	private *rsa.PrivateKey
	pem     string
}

func newSigningKey(t *testing.T) signingKey {
	t.Helper()
	private, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&private.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	block := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return signingKey{private: private, pem: string(block)}
}

func (k signingKey) sign(t *testing.T, env Envelope) Envelope {
	t.Helper()
	signature, err := jwt.SigningMethodRS256.Sign(env.SigningInput(), k.private)
	if err != nil {
		t.Fatalf("sign envelope: %v", err)
	}
	env.Signature = base64.StdEncoding.EncodeToString(signature)
	return env
}

type fakeSource struct {
	mu        sync.Mutex
	key       string
	loadable  string
	loadErr   error
	loadCalls int
	events    *core.EventBus
	config    core.Config
	metrics   *countingMetrics
}

func newFakeSource(key string) *fakeSource {
	return &fakeSource{
		key:     key,
		events:  core.NewEventBus(),
		config:  core.Config{},
		metrics: &countingMetrics{counters: map[string]int64{}},
	}
}

func (s *fakeSource) EnsurePublicKey(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadCalls++
	if s.key != "" {
		return s.key, nil
	}
	if s.loadErr != nil {
		return "", s.loadErr
	}
	s.key = s.loadable
	return s.key, nil
}

func (s *fakeSource) CachedPublicKey() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key, s.key != ""
}

func (s *fakeSource) Events() *core.EventBus                { return s.events }
func (s *fakeSource) Config() core.Config                   { return s.config }
func (s *fakeSource) Logger() core.Logger                   { return glog.Nop() }
func (s *fakeSource) MetricsRecorder() core.MetricsRecorder { return s.metrics }

type countingMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (m *countingMetrics) IncCounter(_ context.Context, name string, value int64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += value
}

func (m *countingMetrics) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func (m *countingMetrics) count(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

func followEnvelope(messageID string) Envelope {
	return Envelope{
		MessageID:      messageID,
		SubscriptionID: "sub-1",
		Timestamp:      "2026-03-14T12:00:00Z",
		EventType:      EventChannelFollowed,
		EventVersion:   "1",
		Body:           []byte(`{"broadcaster":{"user_id":1,"username":"streamer","channel_slug":"streamer"},"follower":{"user_id":2,"username":"fan"}}`),
	}
}
