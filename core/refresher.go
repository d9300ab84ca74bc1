package core

import "context"

// TokenRefresher obtains a replacement for current. Returning
// ErrNotRefreshable signals that no refresh mechanism exists; any other error
// is a refresh failure.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, current TokenData) (TokenData, error)
}

// RefreshFunc adapts a callback into a TokenRefresher.
type RefreshFunc func(ctx context.Context, current TokenData) (TokenData, error)

func (f RefreshFunc) RefreshToken(ctx context.Context, current TokenData) (TokenData, error) {
	if f == nil {
		return TokenData{}, ErrNotRefreshable
	}
	return f(ctx, current)
}

// NoRefresh is the refresher for tokens that cannot be renewed, such as app
// tokens from the client credentials grant.
type NoRefresh struct{}

func (NoRefresh) RefreshToken(context.Context, TokenData) (TokenData, error) {
	return TokenData{}, ErrNotRefreshable
}
