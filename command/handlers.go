package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-kick/core"
)

// TokenSession is the part of core.Session the token commands drive.
type TokenSession interface {
	SetToken(ctx context.Context, token *core.Token) error
	ClearToken(ctx context.Context) error
	CheckToken(ctx context.Context) (core.TokenCheck, error)
	RestoreToken(ctx context.Context, refresher core.TokenRefresher) (*core.Token, error)
}

type PublicKeySession interface {
	InvalidatePublicKey()
	EnsurePublicKey(ctx context.Context) (string, error)
}

type SetTokenCommand struct {
	session TokenSession
	opts    []core.TokenOption
}

// NewSetTokenCommand builds tokens with opts before installing them, e.g.
// core.WithTokenClock in tests.
func NewSetTokenCommand(session TokenSession, opts ...core.TokenOption) *SetTokenCommand {
	return &SetTokenCommand{session: session, opts: opts}
}

func (c *SetTokenCommand) Execute(ctx context.Context, msg SetTokenMessage) error {
	if c == nil || c.session == nil {
		return commandDependencyError("command: token session is required")
	}
	opts := append([]core.TokenOption(nil), c.opts...)
	if msg.Refresher != nil {
		opts = append(opts, core.WithRefresher(msg.Refresher))
	}
	token, err := core.NewToken(msg.Data, opts...)
	if err != nil {
		return err
	}
	if err := c.session.SetToken(ctx, token); err != nil {
		return err
	}
	storeResult(ctx, token)
	return nil
}

type ClearTokenCommand struct {
	session TokenSession
}

func NewClearTokenCommand(session TokenSession) *ClearTokenCommand {
	return &ClearTokenCommand{session: session}
}

func (c *ClearTokenCommand) Execute(ctx context.Context, _ ClearTokenMessage) error {
	if c == nil || c.session == nil {
		return commandDependencyError("command: token session is required")
	}
	return c.session.ClearToken(ctx)
}

type CheckTokenCommand struct {
	session TokenSession
}

func NewCheckTokenCommand(session TokenSession) *CheckTokenCommand {
	return &CheckTokenCommand{session: session}
}

func (c *CheckTokenCommand) Execute(ctx context.Context, _ CheckTokenMessage) error {
	if c == nil || c.session == nil {
		return commandDependencyError("command: token session is required")
	}
	out, err := c.session.CheckToken(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RestoreTokenCommand struct {
	session TokenSession
}

func NewRestoreTokenCommand(session TokenSession) *RestoreTokenCommand {
	return &RestoreTokenCommand{session: session}
}

func (c *RestoreTokenCommand) Execute(ctx context.Context, msg RestoreTokenMessage) error {
	if c == nil || c.session == nil {
		return commandDependencyError("command: token session is required")
	}
	token, err := c.session.RestoreToken(ctx, msg.Refresher)
	if err != nil {
		return err
	}
	storeResult(ctx, token)
	return nil
}

type RefreshPublicKeyCommand struct {
	session PublicKeySession
}

func NewRefreshPublicKeyCommand(session PublicKeySession) *RefreshPublicKeyCommand {
	return &RefreshPublicKeyCommand{session: session}
}

func (c *RefreshPublicKeyCommand) Execute(ctx context.Context, _ RefreshPublicKeyMessage) error {
	if c == nil || c.session == nil {
		return commandDependencyError("command: public key session is required")
	}
	c.session.InvalidatePublicKey()
	key, err := c.session.EnsurePublicKey(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, key)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
