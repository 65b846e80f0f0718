package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
)

const apiPrefix = "/api/v1/users"

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type HTTPClient struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Token returns the session token kept from the last login.
func (c *HTTPClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *HTTPClient) setToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// do sends body as JSON and decodes the envelope's data into out when out is
// non-nil. A reply with success=false becomes an error.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) (string, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return "", err
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return "", err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", &APIError{Status: resp.StatusCode, Message: "malformed response"}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return env.Message, fmt.Errorf("%w: %s", ErrUnauthorized, env.Message)
	}
	if !env.Success || resp.StatusCode >= http.StatusBadRequest {
		return env.Message, &APIError{Status: resp.StatusCode, Message: env.Message}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env.Message, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return env.Message, nil
}

// Ping checks that the server answers its health endpoint.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health-checkup", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) Register(ctx context.Context, name, email string, password []byte) error {
	body := map[string]string{"name": name, "email": email, "password": string(password)}
	_, err := c.do(ctx, http.MethodPost, apiPrefix+"/register", body, nil)
	return err
}

func (c *HTTPClient) VerifyEmail(ctx context.Context, token string) error {
	_, err := c.do(ctx, http.MethodGet, apiPrefix+"/verify/"+url.PathEscape(token), nil, nil)
	return err
}

// Login authenticates and keeps the session token for later calls.
func (c *HTTPClient) Login(ctx context.Context, email string, password []byte) (*Session, error) {
	body := map[string]string{"email": email, "password": string(password)}

	var s Session
	if _, err := c.do(ctx, http.MethodPost, apiPrefix+"/login", body, &s); err != nil {
		return nil, err
	}
	if s.Token == "" {
		return nil, &APIError{Status: http.StatusOK, Message: "login reply carries no token"}
	}

	c.setToken(s.Token)
	return &s, nil
}

func (c *HTTPClient) Profile(ctx context.Context) (*User, error) {
	if c.Token() == "" {
		return nil, ErrNotLoggedIn
	}

	var u User
	if _, err := c.do(ctx, http.MethodGet, apiPrefix+"/profile", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Logout tells the server and forgets the token. The token is dropped even
// when the call fails; the server keeps no session state.
func (c *HTTPClient) Logout(ctx context.Context) error {
	if c.Token() == "" {
		return ErrNotLoggedIn
	}
	_, err := c.do(ctx, http.MethodGet, apiPrefix+"/logout", nil, nil)
	c.setToken("")
	return err
}

// ForgotPassword returns the server's message, which is the same whether or
// not the email is registered.
func (c *HTTPClient) ForgotPassword(ctx context.Context, email string) (string, error) {
	return c.do(ctx, http.MethodPost, apiPrefix+"/forgot-password", map[string]string{"email": email}, nil)
}

func (c *HTTPClient) ResetPassword(ctx context.Context, token string, password []byte) error {
	body := map[string]string{"password": string(password)}
	_, err := c.do(ctx, http.MethodPost, apiPrefix+"/reset-password/"+url.PathEscape(token), body, nil)
	return err
}
