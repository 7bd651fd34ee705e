package api

import (
	"context"
	"net/http"

	"github.com/jmcleod/taskdesk/authz"
)

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	if err := validate(req); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/register", req, nil)
}

// Login exchanges a username and password for an access token. The request
// is tagged so that a 401 is reported to the caller as bad credentials rather
// than handled as a session invalidation.
func (c *Client) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	if err := validate(req); err != nil {
		return LoginResponse{}, err
	}
	var resp LoginResponse
	if err := c.do(authz.SkipGlobalAuthHandling(ctx), http.MethodPost, "/login", req, &resp); err != nil {
		return LoginResponse{}, err
	}
	if resp.AccessToken == "" {
		return LoginResponse{}, &StatusError{StatusCode: http.StatusBadGateway, Message: "login response carried no access token"}
	}
	return resp, nil
}

// CurrentUser returns the identity behind the bearer token in use.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/user", nil, &u); err != nil {
		return User{}, err
	}
	return u, nil
}
