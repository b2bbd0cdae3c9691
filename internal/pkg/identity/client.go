package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pmuprofit/coursegate/internal/pkg/env"
)

var (
	// ErrInvalidSession means the identity provider rejected the credential.
	ErrInvalidSession = errors.New("invalid session")
	// ErrProviderNotConfigured means AUTH_URL is empty.
	ErrProviderNotConfigured = errors.New("identity provider not configured")
)

// User is the identity provider's view of an authenticated user.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is a token pair issued by the identity provider.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	User         User   `json:"user"`
}

// Client talks to a GoTrue-compatible auth API.
type Client struct {
	BaseURL    string
	AnonKey    string
	HTTPClient *http.Client
	RetryDelay time.Duration
}

func NewClientFromEnv() *Client {
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(env.GetEnv("AUTH_URL", "")), "/"),
		AnonKey: strings.TrimSpace(env.GetEnv("AUTH_ANON_KEY", "")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		RetryDelay: 250 * time.Millisecond,
	}
}

func (c *Client) Configured() bool {
	return c != nil && strings.TrimSpace(c.BaseURL) != ""
}

// GetUser validates an access token and returns its user.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrInvalidSession
	}
	var u User
	err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/auth/v1/user"), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		return req, nil
	}, &u)
	if err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, fmt.Errorf("%w: user response missing id", ErrInvalidSession)
	}
	return &u, nil
}

// Refresh exchanges a refresh token for a new session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, ErrInvalidSession
	}
	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, err
	}
	var s Session
	err = c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/auth/v1/token?grant_type=refresh_token"), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, &s)
	if err != nil {
		return nil, err
	}
	if s.AccessToken == "" || s.User.ID == "" {
		return nil, fmt.Errorf("%w: refresh response incomplete", ErrInvalidSession)
	}
	return &s, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("identity provider returned status %d", e.code)
}

// do sends the request built by build and retries once on transport errors
// and 5xx answers.
func (c *Client) do(ctx context.Context, build func() (*http.Request, error), out any) error {
	if !c.Configured() {
		return ErrProviderNotConfigured
	}
	err := c.once(build, out)
	if err == nil || errors.Is(err, ErrInvalidSession) || ctx.Err() != nil {
		return err
	}
	var se *statusError
	if errors.As(err, &se) && se.code < 500 {
		return err
	}

	select {
	case <-ctx.Done():
		return err
	case <-time.After(c.RetryDelay):
	}
	return c.once(build, out)
}

func (c *Client) once(build func() (*http.Request, error), out any) error {
	req, err := build()
	if err != nil {
		return err
	}
	if c.AnonKey != "" {
		req.Header.Set("apikey", c.AnonKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrInvalidSession
	case resp.StatusCode == http.StatusBadRequest:
		// refresh with a revoked or reused token
		return fmt.Errorf("%w: %s", ErrInvalidSession, strings.TrimSpace(string(b)))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &statusError{code: resp.StatusCode}
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode identity response: %w", err)
	}
	return nil
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}
