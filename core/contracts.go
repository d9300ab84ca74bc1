package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

const HeaderAuthorization = "Authorization"

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type TransportRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   map[string]string
	Body    []byte
	Timeout time.Duration
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

// HTTPTransport sends requests relative to a base URL and carries default
// headers applied to every request.
type HTTPTransport interface {
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
	SetHeader(key string, value string)
	DeleteHeader(key string)
	Header(key string) string
}

type StoredToken struct {
	Key       string
	Data      TokenData
	IssuedAt  time.Time
	UpdatedAt time.Time
}

// TokenStore persists token snapshots by session key. Load returns
// ErrTokenNotFound when no snapshot exists.
type TokenStore interface {
	Save(ctx context.Context, token StoredToken) error
	Load(ctx context.Context, key string) (StoredToken, error)
	Delete(ctx context.Context, key string) error
}

// PublicKeyProvider resolves the PEM encoded key used to verify webhook
// signatures.
type PublicKeyProvider interface {
	EnsurePublicKey(ctx context.Context) (string, error)
	CachedPublicKey() (string, bool)
}

type TransportFactory func(cfg Config) HTTPTransport
