package api

import (
	"context"
	"net/http"

	"github.com/mesh-intelligence/capture/pkg/types"
)

// FetchToken exchanges credentials for a session token. Unknown emails fail
// with types.ErrEmailNotFound and bad passwords with types.ErrWrongPassword
// (both matched with errors.Is).
func (c *Client) FetchToken(ctx context.Context, creds types.Credentials) (types.Token, error) {
	var tok types.Token
	err := c.do(ctx, "fetch token", http.MethodPost,
		[]string{"auth", "session-token"}, creds, &tok, func() error { return checkToken(tok) })
	return tok, err
}

// RefreshToken asks the backend for a fresh token to replace token.
func (c *Client) RefreshToken(ctx context.Context, token string) (types.Token, error) {
	var tok types.Token
	err := c.do(ctx, "refresh token", http.MethodPost,
		[]string{"auth", "refresh-token", token}, nil, &tok, func() error { return checkToken(tok) })
	return tok, err
}

// RemoveToken revokes token on the backend.
func (c *Client) RemoveToken(ctx context.Context, token string) error {
	return c.do(ctx, "remove token", http.MethodDelete,
		[]string{"auth", "remove-token", token}, nil, nil, nil)
}

// UserByToken returns the user owning token. Any failure means the token
// cannot be used.
func (c *Client) UserByToken(ctx context.Context, token string) (types.User, error) {
	var u types.User
	err := c.do(ctx, "validate token", http.MethodGet,
		[]string{"get", "user", "by", "token", token}, nil, &u, func() error { return checkUser(u) })
	return u, err
}

func checkToken(t types.Token) error {
	if t.Token == "" {
		return errMissing("token")
	}
	return nil
}

func checkUser(u types.User) error {
	if u.Email == "" {
		return errMissing("email")
	}
	if u.Access == "" {
		return errMissing("access")
	}
	return nil
}
