package api

import (
	"context"
	"fmt"
	"net/http"
)

// ListProjects returns the caller's projects with their task counts.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var out []Project
	if err := c.do(ctx, http.MethodGet, "/projects", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetProject returns project id.
func (c *Client) GetProject(ctx context.Context, id int64) (Project, error) {
	var out Project
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/projects/%d", id), nil, &out); err != nil {
		return Project{}, err
	}
	return out, nil
}

// CreateProject validates in and creates a project owned by the caller.
func (c *Client) CreateProject(ctx context.Context, in ProjectInput) (Project, error) {
	if err := validate(in); err != nil {
		return Project{}, err
	}
	var out Project
	if err := c.do(ctx, http.MethodPost, "/projects", in, &out); err != nil {
		return Project{}, err
	}
	return out, nil
}

// UpdateProject replaces the writable fields of project id.
func (c *Client) UpdateProject(ctx context.Context, id int64, in ProjectInput) (Project, error) {
	if err := validate(in); err != nil {
		return Project{}, err
	}
	var out Project
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/projects/%d", id), in, &out); err != nil {
		return Project{}, err
	}
	return out, nil
}

// DeleteProject deletes project id and, server side, all of its tasks.
func (c *Client) DeleteProject(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/projects/%d", id), nil, nil)
}
