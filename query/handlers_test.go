package query

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-kick/core"
)

func TestTokenStatusQuery_DescribesManagedToken(t *testing.T) {
	issuedAt := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	token, err := core.NewToken(
		core.TokenData{AccessToken: "user-token", RefreshToken: "refresh-1", ExpiresIn: 3600, Scope: "user:read chat:write"},
		core.WithIssuedAt(issuedAt),
		core.WithTokenClock(func() time.Time { return issuedAt.Add(time.Minute) }),
		core.WithRefresher(core.NoRefresh{}),
	)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}

	status, err := NewTokenStatusQuery(stubTokenReader{token: token}).Query(context.Background(), TokenStatusMessage{})
	if err != nil {
		t.Fatalf("query token status: %v", err)
	}
	if !status.Authenticated || status.Expired || status.AppToken || !status.Refreshable {
		t.Fatalf("unexpected status %#v", status)
	}
	if len(status.Scopes) != 2 || status.Scopes[1] != "chat:write" {
		t.Fatalf("unexpected scopes %#v", status.Scopes)
	}
	if !status.ExpiresAt.Equal(token.ExpiresAt()) {
		t.Fatalf("expected expiry %s, got %s", token.ExpiresAt(), status.ExpiresAt)
	}
}

func TestTokenStatusQuery_NoTokenAndLegacy(t *testing.T) {
	status, err := NewTokenStatusQuery(stubTokenReader{}).Query(context.Background(), TokenStatusMessage{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if status.Authenticated {
		t.Fatalf("expected unauthenticated status, got %#v", status)
	}

	status, err = NewTokenStatusQuery(stubTokenReader{legacy: true}).Query(context.Background(), TokenStatusMessage{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !status.Authenticated || !status.Legacy {
		t.Fatalf("expected legacy authenticated status, got %#v", status)
	}
}

func TestPublicKeyQuery_Delegates(t *testing.T) {
	reader := &stubKeyReader{key: "pem"}
	key, err := NewPublicKeyQuery(reader).Query(context.Background(), PublicKeyMessage{})
	if err != nil {
		t.Fatalf("query public key: %v", err)
	}
	if key != "pem" || reader.calls != 1 {
		t.Fatalf("unexpected key %q after %d calls", key, reader.calls)
	}

	expected := errors.New("key endpoint down")
	if _, err := NewPublicKeyQuery(&stubKeyReader{err: expected}).Query(context.Background(), PublicKeyMessage{}); !errors.Is(err, expected) {
		t.Fatalf("expected reader error, got %v", err)
	}
}

func TestDeliveryStateQuery_ValidatesAndDelegates(t *testing.T) {
	reader := stubDeliveryReader{states: map[string]string{"msg-1": "dispatched"}}
	qry := NewDeliveryStateQuery(reader)

	state, err := qry.Query(context.Background(), DeliveryStateMessage{MessageID: "msg-1"})
	if err != nil {
		t.Fatalf("query delivery state: %v", err)
	}
	if state != "dispatched" {
		t.Fatalf("expected dispatched, got %q", state)
	}

	_, err = qry.Query(context.Background(), DeliveryStateMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.TextCode != core.KickErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.KickErrorBadInput, rich.TextCode)
	}
}

func TestQueries_NilReaderReturnsRichError(t *testing.T) {
	_, err := NewTokenStatusQuery(nil).Query(context.Background(), TokenStatusMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
	if _, err := NewDeliveryStateQuery(nil).Query(context.Background(), DeliveryStateMessage{MessageID: "m"}); err == nil {
		t.Fatalf("expected missing reader to fail")
	}
}

type stubTokenReader struct {
	token  *core.Token
	legacy bool
}

func (s stubTokenReader) Token() *core.Token        { return s.token }
func (s stubTokenReader) UsesLegacyAuthToken() bool { return s.legacy }

type stubKeyReader struct {
	key   string
	err   error
	calls int
}

func (s *stubKeyReader) EnsurePublicKey(context.Context) (string, error) {
	s.calls++
	return s.key, s.err
}

type stubDeliveryReader struct {
	states map[string]string
}

func (s stubDeliveryReader) State(_ context.Context, messageID string) (string, error) {
	return s.states[messageID], nil
}
