package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"docchat/gateway/internal/upstream"
	"docchat/gateway/pkg/api"
)

// Client calls the gateway's /api routes. The session cookie lives in the
// jar; this code never sees the token.
type Client struct {
	gateway *upstream.Client
}

func NewClient(baseURL string, jar http.CookieJar, timeout time.Duration) *Client {
	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Jar = jar
	httpClient.Timeout = timeout
	return &Client{gateway: upstream.NewClientWithHTTP(baseURL, httpClient)}
}

func (c *Client) Me(ctx context.Context) (*api.User, error) {
	var user api.User
	if err := c.doJSON(ctx, http.MethodGet, "/api/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Signup(ctx context.Context, req api.SignupRequest) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/signup", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Logout(ctx context.Context) (*api.LogoutResponse, error) {
	var resp api.LogoutResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/logout", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Refresh(ctx context.Context) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/refresh", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ChangePassword(ctx context.Context, req api.ChangePasswordRequest) (*api.PasswordResetResponse, error) {
	var resp api.PasswordResetResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/change-password", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ForgotPassword(ctx context.Context, req api.ForgotPasswordRequest) (*api.PasswordResetResponse, error) {
	var resp api.PasswordResetResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/forgot-password", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ResetPassword(ctx context.Context, req api.ResetPasswordRequest) (*api.PasswordResetResponse, error) {
	var resp api.PasswordResetResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/reset-password", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ValidateResetToken returns the verdict even when the gateway answers
// non-2xx, since invalid and expired tokens come back as 4xx bodies.
func (c *Client) ValidateResetToken(ctx context.Context, token string) (*api.ValidateResetTokenResponse, error) {
	resp, err := c.Send(ctx, upstream.Call{
		Method: http.MethodGet,
		Path:   "/api/auth/validate-reset-token/" + url.PathEscape(token),
	})
	if err != nil {
		return nil, api.TransportError(err)
	}

	var verdict api.ValidateResetTokenResponse
	if err := resp.Decode(&verdict); err != nil {
		return nil, api.NewError(resp.Status, resp.Body)
	}
	return &verdict, nil
}

func (c *Client) UpdateProfile(ctx context.Context, req api.UpdateProfileRequest) (*api.UserProfileResponse, error) {
	var resp api.UserProfileResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/user/profile", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Send performs a raw exchange with the gateway. Errors wrap
// upstream.ErrTransport.
func (c *Client) Send(ctx context.Context, call upstream.Call) (upstream.Response, error) {
	return c.gateway.Do(ctx, call)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	call := upstream.Call{Method: method, Path: path}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		call.Body = body
		call.ContentType = "application/json"
	}

	resp, err := c.Send(ctx, call)
	if err != nil {
		return api.TransportError(err)
	}
	if !resp.OK() {
		return api.NewError(resp.Status, resp.Body)
	}
	if out == nil {
		return nil
	}
	if err := resp.Decode(out); err != nil {
		return api.TransportError(err)
	}
	return nil
}
