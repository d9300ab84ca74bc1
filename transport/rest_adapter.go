package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-kick/core"
)

const KindREST = "rest"

const defaultRESTClientTimeout = 30 * time.Second
const defaultRESTResponseBodyLimit int64 = 10 << 20 // 10 MiB

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RESTAdapter sends requests relative to BaseURL with a shared set of
// default headers. Header mutations are safe for concurrent use with Do.
type RESTAdapter struct {
	Client               HTTPDoer
	BaseURL              string
	MaxResponseBodyBytes int64

	mu      sync.RWMutex
	headers http.Header
}

func NewRESTAdapter(client HTTPDoer, baseURL string) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultRESTClientTimeout}
	}
	adapter := &RESTAdapter{
		Client:               client,
		BaseURL:              strings.TrimSpace(baseURL),
		MaxResponseBodyBytes: defaultRESTResponseBodyLimit,
		headers:              http.Header{},
	}
	adapter.headers.Set("Accept", "application/json")
	return adapter
}

// NewRESTTransport builds an adapter from the session config.
func NewRESTTransport(cfg core.Config) core.HTTPTransport {
	return NewRESTAdapter(&http.Client{Timeout: cfg.RequestTimeout}, cfg.BaseURL)
}

func (*RESTAdapter) Kind() string {
	return KindREST
}

func (a *RESTAdapter) SetHeader(key string, value string) {
	key = strings.TrimSpace(key)
	if a == nil || key == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.headers == nil {
		a.headers = http.Header{}
	}
	a.headers.Set(key, strings.TrimSpace(value))
}

func (a *RESTAdapter) DeleteHeader(key string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.headers.Del(strings.TrimSpace(key))
}

func (a *RESTAdapter) Header(key string) string {
	if a == nil {
		return ""
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.headers.Get(strings.TrimSpace(key))
}

func (a *RESTAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.Client == nil {
		return core.TransportResponse{}, transportError(
			"transport: rest adapter requires an http client",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			map[string]any{"adapter": KindREST},
		)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	parsedURL, err := a.resolveURL(req.URL)
	if err != nil {
		return core.TransportResponse{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: invalid request url",
			http.StatusBadRequest,
			map[string]any{"adapter": KindREST, "url": strings.TrimSpace(req.URL)},
		)
	}
	if parsedURL.String() == "" {
		return core.TransportResponse{}, transportError(
			"transport: request url is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"adapter": KindREST},
		)
	}

	query := parsedURL.Query()
	for key, value := range req.Query {
		if strings.TrimSpace(key) == "" {
			continue
		}
		query.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	parsedURL.RawQuery = query.Encode()

	requestCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, method, parsedURL.String(), bytes.NewReader(req.Body))
	if err != nil {
		return core.TransportResponse{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: create http request",
			http.StatusBadRequest,
			map[string]any{"adapter": KindREST, "method": method, "url": parsedURL.String()},
		)
	}
	a.mu.RLock()
	for key, values := range a.headers {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	a.mu.RUnlock()
	for key, value := range req.Headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	startedAt := time.Now().UTC()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return core.TransportResponse{}, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: execute http request",
			http.StatusBadGateway,
			map[string]any{"adapter": KindREST, "method": method, "url": parsedURL.String()},
		)
	}
	defer httpRes.Body.Close()

	maxBodyBytes := resolveResponseBodyLimit(a.MaxResponseBodyBytes)
	body, err := io.ReadAll(io.LimitReader(httpRes.Body, maxBodyBytes+1))
	if err != nil {
		return core.TransportResponse{}, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: read response body",
			http.StatusBadGateway,
			map[string]any{"adapter": KindREST, "status_code": httpRes.StatusCode},
		)
	}
	if int64(len(body)) > maxBodyBytes {
		return core.TransportResponse{}, transportError(
			fmt.Sprintf("transport: response body exceeds limit of %d bytes", maxBodyBytes),
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			map[string]any{
				"adapter":          KindREST,
				"status_code":      httpRes.StatusCode,
				"response_limit_b": maxBodyBytes,
			},
		)
	}

	return core.TransportResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       body,
		Metadata: map[string]any{
			"duration_ms": time.Since(startedAt).Milliseconds(),
			"kind":        KindREST,
		},
	}, nil
}

// resolveURL joins relative paths onto BaseURL, keeping the base path.
func (a *RESTAdapter) resolveURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	target, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if target.IsAbs() || strings.TrimSpace(a.BaseURL) == "" {
		return target, nil
	}
	base, err := url.Parse(strings.TrimSpace(a.BaseURL))
	if err != nil {
		return nil, err
	}
	resolved := *base
	resolved.Path = strings.TrimSuffix(base.Path, "/") + "/" + strings.TrimPrefix(target.Path, "/")
	resolved.RawPath = ""
	resolved.RawQuery = target.RawQuery
	return &resolved, nil
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			flat[key] = ""
			continue
		}
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

func resolveResponseBodyLimit(adapterLimit int64) int64 {
	if adapterLimit > 0 {
		return adapterLimit
	}
	return defaultRESTResponseBodyLimit
}

var _ core.HTTPTransport = (*RESTAdapter)(nil)
