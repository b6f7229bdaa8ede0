package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mesh-intelligence/capture/pkg/types"
)

// Projects lists the caller's projects.
func (c *Client) Projects(ctx context.Context) ([]types.Project, error) {
	var projects []types.Project
	err := c.do(ctx, "get projects", http.MethodGet, []string{"get", "projects"}, nil, &projects, func() error {
		for i, p := range projects {
			if p.Name == "" {
				return fmt.Errorf("project %d: %w", i, errMissing("name"))
			}
		}
		return nil
	})
	return projects, err
}

// CreateProject creates a project. A duplicate name fails with
// types.ErrConflict.
func (c *Client) CreateProject(ctx context.Context, name string) error {
	return c.do(ctx, "create project", http.MethodPut, []string{"create", "project", name}, nil, nil, nil)
}

// DeleteProject removes a project and all of its tables.
func (c *Client) DeleteProject(ctx context.Context, name string) error {
	return c.do(ctx, "delete project", http.MethodDelete, []string{"delete", "project", name}, nil, nil, nil)
}
