package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mesh-intelligence/capture/pkg/types"
)

// Users lists every account. Requires admin access.
func (c *Client) Users(ctx context.Context) ([]types.User, error) {
	var users []types.User
	err := c.do(ctx, "get users", http.MethodGet, []string{"get", "users"}, nil, &users, func() error {
		for i, u := range users {
			if err := checkUser(u); err != nil {
				return fmt.Errorf("user %d: %w", i, err)
			}
		}
		return nil
	})
	return users, err
}

// CreateUser creates an account. Requires admin access.
func (c *Client) CreateUser(ctx context.Context, u types.NewUser) error {
	return c.do(ctx, "create user", http.MethodPut, []string{"create", "user"}, u, nil, nil)
}

// RemoveUser deletes the account with the given email. Requires admin access.
func (c *Client) RemoveUser(ctx context.Context, email string) error {
	return c.do(ctx, "remove user", http.MethodDelete, []string{"remove", "user", email}, nil, nil, nil)
}
