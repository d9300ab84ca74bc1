package command

import (
	"context"
	"errors"
	"testing"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-kick/core"
)

func TestSetTokenCommand_ExecuteInstallsTokenAndStoresResult(t *testing.T) {
	session := &stubSession{}
	refresher := core.RefreshFunc(func(context.Context, core.TokenData) (core.TokenData, error) {
		return core.TokenData{AccessToken: "next", ExpiresIn: 60}, nil
	})

	cmd := NewSetTokenCommand(session)
	collector := gocmd.NewResult[*core.Token]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, SetTokenMessage{
		Data:      core.TokenData{AccessToken: " user-token ", RefreshToken: "refresh-1", ExpiresIn: 3600},
		Refresher: refresher,
	})
	if err != nil {
		t.Fatalf("execute set token: %v", err)
	}
	if session.token == nil || session.token.AccessToken() != "user-token" {
		t.Fatalf("expected normalized token to be installed, got %#v", session.token)
	}
	if !session.token.Refreshable() {
		t.Fatalf("expected refresher to be attached")
	}
	result, ok := collector.Load()
	if !ok || result != session.token {
		t.Fatalf("expected installed token to be stored as result")
	}
}

func TestSetTokenCommand_PropagatesSessionError(t *testing.T) {
	expected := errors.New("public key unavailable")
	session := &stubSession{setErr: expected}

	err := NewSetTokenCommand(session).Execute(context.Background(), SetTokenMessage{
		Data: core.TokenData{AccessToken: "user-token", ExpiresIn: 60},
	})
	if !errors.Is(err, expected) {
		t.Fatalf("expected session error, got %v", err)
	}
}

func TestTokenCommands_DelegateToSession(t *testing.T) {
	t.Run("clear", func(t *testing.T) {
		session := &stubSession{}
		if err := NewClearTokenCommand(session).Execute(context.Background(), ClearTokenMessage{}); err != nil {
			t.Fatalf("execute clear: %v", err)
		}
		if session.cleared != 1 {
			t.Fatalf("expected one clear call, got %d", session.cleared)
		}
	})

	t.Run("check", func(t *testing.T) {
		session := &stubSession{check: core.TokenCheck{Status: core.TokenCheckValid}}
		collector := gocmd.NewResult[core.TokenCheck]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewCheckTokenCommand(session).Execute(ctx, CheckTokenMessage{}); err != nil {
			t.Fatalf("execute check: %v", err)
		}
		result, ok := collector.Load()
		if !ok || result.Status != core.TokenCheckValid {
			t.Fatalf("unexpected check result %#v", result)
		}
	})

	t.Run("restore", func(t *testing.T) {
		restored, err := core.NewToken(core.TokenData{AccessToken: "stored", ExpiresIn: 60})
		if err != nil {
			t.Fatalf("new token: %v", err)
		}
		session := &stubSession{restored: restored}
		collector := gocmd.NewResult[*core.Token]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewRestoreTokenCommand(session).Execute(ctx, RestoreTokenMessage{Refresher: core.NoRefresh{}}); err != nil {
			t.Fatalf("execute restore: %v", err)
		}
		if session.restoreRefresher == nil {
			t.Fatalf("expected refresher to be passed through")
		}
		result, ok := collector.Load()
		if !ok || result.AccessToken() != "stored" {
			t.Fatalf("unexpected restore result")
		}
	})

	t.Run("refresh public key", func(t *testing.T) {
		session := &stubSession{key: "-----BEGIN PUBLIC KEY-----"}
		collector := gocmd.NewResult[string]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewRefreshPublicKeyCommand(session).Execute(ctx, RefreshPublicKeyMessage{}); err != nil {
			t.Fatalf("execute refresh public key: %v", err)
		}
		if session.invalidated != 1 {
			t.Fatalf("expected cached key to be invalidated once, got %d", session.invalidated)
		}
		result, ok := collector.Load()
		if !ok || result != session.key {
			t.Fatalf("unexpected key result %q", result)
		}
	})
}

func TestSetTokenMessage_ValidateReturnsRichError(t *testing.T) {
	err := (SetTokenMessage{}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.KickErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.KickErrorBadInput, rich.TextCode)
	}

	err = (SetTokenMessage{Data: core.TokenData{AccessToken: "t", ExpiresIn: -1}}).Validate()
	if err == nil {
		t.Fatalf("expected negative expiry to fail validation")
	}
	if err := (SetTokenMessage{Data: core.TokenData{AccessToken: "t", ExpiresIn: 60}}).Validate(); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
}

func TestCommands_NilSessionReturnsRichError(t *testing.T) {
	var cmd *SetTokenCommand
	err := cmd.Execute(context.Background(), SetTokenMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
	if err := NewRefreshPublicKeyCommand(nil).Execute(context.Background(), RefreshPublicKeyMessage{}); err == nil {
		t.Fatalf("expected missing session to fail")
	}
}

func TestMessageTypes(t *testing.T) {
	cases := map[string]string{
		SetTokenMessage{}.Type():         TypeSetToken,
		ClearTokenMessage{}.Type():       TypeClearToken,
		CheckTokenMessage{}.Type():       TypeCheckToken,
		RestoreTokenMessage{}.Type():     TypeRestoreToken,
		RefreshPublicKeyMessage{}.Type(): TypeRefreshPublicKey,
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}

type stubSession struct {
	token            *core.Token
	setErr           error
	cleared          int
	check            core.TokenCheck
	restored         *core.Token
	restoreRefresher core.TokenRefresher
	key              string
	invalidated      int
}

func (s *stubSession) SetToken(_ context.Context, token *core.Token) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.token = token
	return nil
}

func (s *stubSession) ClearToken(context.Context) error {
	s.cleared++
	return nil
}

func (s *stubSession) CheckToken(context.Context) (core.TokenCheck, error) {
	return s.check, nil
}

func (s *stubSession) RestoreToken(_ context.Context, refresher core.TokenRefresher) (*core.Token, error) {
	s.restoreRefresher = refresher
	return s.restored, nil
}

func (s *stubSession) InvalidatePublicKey() {
	s.invalidated++
}

func (s *stubSession) EnsurePublicKey(context.Context) (string, error) {
	return s.key, nil
}
