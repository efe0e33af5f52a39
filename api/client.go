// Package api is the thin REST client for the CRM auth endpoints. It
// speaks the backend's JSON envelope and maps failures onto the shared
// error taxonomy; token attachment happens in the transport layer below it.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nuvocrm/go-session-client/users"
)

// envelope is the backend's uniform response shape.
type envelope struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message"`
	Data         json.RawMessage `json:"data"`
	TokenExpired bool            `json:"tokenExpired"`
	Code         string          `json:"code"`
}

// LoginData is the payload of a successful login.
type LoginData struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	TokenExpiry  time.Time   `json:"tokenExpiry"`
	User         *users.User `json:"user"`
}

// RefreshData is the payload of a successful token refresh.
type RefreshData struct {
	AccessToken string    `json:"accessToken"`
	TokenExpiry time.Time `json:"tokenExpiry"`
}

type profileData struct {
	User *users.User `json:"user"`
}

// Client calls the CRM auth endpoints. The http.Client it is given should
// use the session transport so requests carry the current access token.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient creates an API client rooted at baseURL.
func NewClient(baseURL string, httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// Login exchanges credentials for a token pair and the user profile.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginData, error) {
	body := map[string]string{"email": email, "password": password}

	var data LoginData
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &data); err != nil {
		return nil, err
	}
	users.ApplyLegacyAdminNames(data.User)
	return &data, nil
}

// RefreshToken mints a new access token from the refresh token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*RefreshData, error) {
	body := map[string]string{"refreshToken": refreshToken}

	var data RefreshData
	if err := c.do(ctx, http.MethodPost, "/auth/refresh-token", body, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Logout notifies the backend that the session ended.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// Profile fetches the current user, validating the session as a side
// effect.
func (c *Client) Profile(ctx context.Context) (*users.User, error) {
	var data profileData
	if err := c.do(ctx, http.MethodGet, "/auth/profile", nil, &data); err != nil {
		return nil, err
	}
	users.ApplyLegacyAdminNames(data.User)
	return data.User, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: read response: %w", err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("api: decode response: %w", err)
		}
	}

	if resp.StatusCode >= 300 || (len(raw) > 0 && !env.Success) {
		apiErr := newError(resp.StatusCode, env.Message, env.TokenExpired || env.Code == "TOKEN_EXPIRED")
		c.logger.Debug().Int("status", resp.StatusCode).Str("path", path).Str("message", env.Message).Msg("request failed")
		return apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("api: decode data: %w", err)
		}
	}
	return nil
}
