package api

import (
	"context"
	"fmt"
	"net/http"
)

// ListTasks returns the tasks of project projectID.
func (c *Client) ListTasks(ctx context.Context, projectID int64) ([]Task, error) {
	var out []Task
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/projects/%d/tasks", projectID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTask returns task id.
func (c *Client) GetTask(ctx context.Context, id int64) (Task, error) {
	var out Task
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/tasks/%d", id), nil, &out); err != nil {
		return Task{}, err
	}
	return out, nil
}

// CreateTask fills in the default status and priority, validates in and
// creates a task in project projectID.
func (c *Client) CreateTask(ctx context.Context, projectID int64, in TaskInput) (Task, error) {
	in = in.withDefaults()
	if err := validate(in); err != nil {
		return Task{}, err
	}
	var out Task
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/projects/%d/tasks", projectID), in, &out); err != nil {
		return Task{}, err
	}
	return out, nil
}

// UpdateTask replaces the writable fields of task id.
func (c *Client) UpdateTask(ctx context.Context, id int64, in TaskInput) (Task, error) {
	in = in.withDefaults()
	if err := validate(in); err != nil {
		return Task{}, err
	}
	var out Task
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/tasks/%d", id), in, &out); err != nil {
		return Task{}, err
	}
	return out, nil
}

// DeleteTask deletes task id.
func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/tasks/%d", id), nil, nil)
}
