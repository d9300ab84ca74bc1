package kick

import (
	"fmt"

	kickcommand "github.com/goliatone/go-kick/command"
	kickquery "github.com/goliatone/go-kick/query"
)

type Commands struct {
	SetToken         *kickcommand.SetTokenCommand
	ClearToken       *kickcommand.ClearTokenCommand
	CheckToken       *kickcommand.CheckTokenCommand
	RestoreToken     *kickcommand.RestoreTokenCommand
	RefreshPublicKey *kickcommand.RefreshPublicKeyCommand
}

type Queries struct {
	TokenStatus   *kickquery.TokenStatusQuery
	PublicKey     *kickquery.PublicKeyQuery
	DeliveryState *kickquery.DeliveryStateQuery
}

// Facade groups the go-command handlers that drive one session.
type Facade struct {
	session  *Session
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	deliveryReader kickquery.DeliveryStateReader
}

// WithDeliveryStateReader backs the DeliveryState query, typically with the
// SQL webhook delivery store.
func WithDeliveryStateReader(reader kickquery.DeliveryStateReader) FacadeOption {
	return func(options *facadeOptions) {
		options.deliveryReader = reader
	}
}

func NewFacade(session *Session, opts ...FacadeOption) (*Facade, error) {
	if session == nil {
		return nil, fmt.Errorf("kick: session is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	facade := &Facade{session: session}
	facade.commands = Commands{
		SetToken:         kickcommand.NewSetTokenCommand(session),
		ClearToken:       kickcommand.NewClearTokenCommand(session),
		CheckToken:       kickcommand.NewCheckTokenCommand(session),
		RestoreToken:     kickcommand.NewRestoreTokenCommand(session),
		RefreshPublicKey: kickcommand.NewRefreshPublicKeyCommand(session),
	}
	facade.queries = Queries{
		TokenStatus:   kickquery.NewTokenStatusQuery(session),
		PublicKey:     kickquery.NewPublicKeyQuery(session),
		DeliveryState: kickquery.NewDeliveryStateQuery(cfg.deliveryReader),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Session() *Session {
	if f == nil {
		return nil
	}
	return f.session
}
