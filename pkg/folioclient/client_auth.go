package folioclient

import (
	"context"
	"net/http"
)

// CSRF fetches (and if needed mints) the CSRF cookie.
func (c *Client) CSRF(ctx context.Context) (*CSRFResponse, error) {
	var out CSRFResponse
	return &out, c.do(ctx, http.MethodGet, "/api/auth/csrf", nil, &out, http.StatusOK)
}

// Login signs in and stores the session cookie in the jar.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var out LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", LoginRequest{Email: email, Password: password}, &out, http.StatusOK)
	return &out, err
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil, http.StatusNoContent)
}

func (c *Client) Me(ctx context.Context) (*Account, error) {
	var out Account
	return &out, c.do(ctx, http.MethodGet, "/api/auth/me", nil, &out, http.StatusOK)
}

func (c *Client) UpdateProfile(ctx context.Context, name string) (*Account, error) {
	var out Account
	return &out, c.do(ctx, http.MethodPatch, "/api/auth/me", UpdateProfileRequest{Name: name}, &out, http.StatusOK)
}

// ChangePassword keeps the current session and revokes the others.
func (c *Client) ChangePassword(ctx context.Context, current, next string) (*RevokedResponse, error) {
	var out RevokedResponse
	req := ChangePasswordRequest{CurrentPassword: current, NewPassword: next}
	return &out, c.do(ctx, http.MethodPost, "/api/auth/password", req, &out, http.StatusOK)
}

func (c *Client) Sessions(ctx context.Context) (*SessionList, error) {
	var out SessionList
	return &out, c.do(ctx, http.MethodGet, "/api/auth/sessions", nil, &out, http.StatusOK)
}

// LogoutOtherSessions revokes every session but the current one.
func (c *Client) LogoutOtherSessions(ctx context.Context) (*RevokedResponse, error) {
	var out RevokedResponse
	return &out, c.do(ctx, http.MethodDelete, "/api/auth/sessions", nil, &out, http.StatusOK)
}

func (c *Client) CheckPassword(ctx context.Context, req PasswordCheckRequest) (*PasswordCheckResponse, error) {
	var out PasswordCheckResponse
	return &out, c.do(ctx, http.MethodPost, "/api/auth/password-check", req, &out, http.StatusOK)
}
