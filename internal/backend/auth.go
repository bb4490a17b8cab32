package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/example/dispatch-client/internal/session"
)

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// accountPrefix maps a role to the resource that owns its accounts.
func accountPrefix(role session.Role) (string, error) {
	switch role {
	case session.RoleUser:
		return "/users", nil
	case session.RoleDriver:
		return "/drivers", nil
	case session.RoleAdmin:
		return "/admin", nil
	}
	return "", fmt.Errorf("%w: %q", session.ErrUnknownRole, role)
}

// Login exchanges credentials for an access token. It satisfies
// session.Authenticator.
func (c *Client) Login(ctx context.Context, role session.Role, email, password string) (string, error) {
	prefix, err := accountPrefix(role)
	if err != nil {
		return "", err
	}
	var out tokenResponse
	if err := c.do(ctx, http.MethodPost, prefix+"/login", prefix+"/login", Credentials{Email: email, Password: password}, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", &NetworkError{Method: http.MethodPost, Path: prefix + "/login", Message: "no token in response"}
	}
	return out.Token, nil
}

// Register creates a rider or driver account. Admin accounts are provisioned
// out of band.
func (c *Client) Register(ctx context.Context, role session.Role, r Registration) error {
	if role == session.RoleAdmin {
		return fmt.Errorf("%w: admin accounts cannot self-register", session.ErrForbidden)
	}
	prefix, err := accountPrefix(role)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, prefix+"/register", prefix+"/register", r, nil)
}
