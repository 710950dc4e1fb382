// Package authclient is an HTTP client for the StreamTweet API that keeps the
// session alive: it attaches the access token, refreshes it once on 401 and
// replays the request. Concurrent 401s share a single refresh call.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

const DefaultRefreshTimeout = 10 * time.Second

var (
	// ErrUnauthorized is returned when a request is still rejected after a refresh.
	ErrUnauthorized = errors.New("authclient: unauthorized")
	// ErrForbidden is the logout reason when the server answers 403.
	ErrForbidden = errors.New("authclient: session forbidden")
	// ErrRefreshFailed wraps every refresh failure, including timeouts.
	ErrRefreshFailed = errors.New("authclient: refresh failed")
)

type Client struct {
	baseURL        string
	httpClient     *http.Client
	session        *Session
	refreshTimeout time.Duration
	logger         *slog.Logger

	refreshes singleflight.Group
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) { c.refreshTimeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(baseURL string, store TokenStore, opts ...Option) (*Client, error) {
	session, err := NewSession(store)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		session:        session,
		refreshTimeout: DefaultRefreshTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Session() *Session { return c.session }

// OnLogout is a shortcut for Session().OnLogout.
func (c *Client) OnLogout(fn func(reason error)) { c.session.OnLogout(fn) }

// Do sends req with the current access token. A 401 triggers at most one
// refresh and one replay; a 403 ends the session and returns the response.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	tokens, gen, state := c.session.snapshot()
	if state != StateLoggedIn {
		return nil, ErrNotLoggedIn
	}
	if err := rewindable(req); err != nil {
		return nil, err
	}

	resp, err := c.send(req, tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusForbidden:
		c.session.LogOut(ErrForbidden)
		return resp, nil
	case http.StatusUnauthorized:
	default:
		return resp, nil
	}
	discard(resp)

	if err := c.refreshAfter(gen); err != nil {
		return nil, err
	}
	tokens, _, state = c.session.snapshot()
	if state != StateLoggedIn {
		return nil, ErrNotLoggedIn
	}

	resp, err = c.send(req, tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		discard(resp)
		return nil, ErrUnauthorized
	case http.StatusForbidden:
		c.session.LogOut(ErrForbidden)
	}
	return resp, nil
}

// refreshAfter makes sure the session has moved past generation gen. If some
// other caller already rotated the tokens nothing is sent; otherwise the caller
// joins the in-flight refresh or starts one.
func (c *Client) refreshAfter(gen uint64) error {
	if _, current, _ := c.session.snapshot(); current != gen {
		return nil
	}
	_, err, _ := c.refreshes.Do("refresh", func() (any, error) {
		tokens, current, state := c.session.snapshot()
		if state != StateLoggedIn {
			return nil, ErrNotLoggedIn
		}
		if current != gen {
			return nil, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
		defer cancel()

		next, err := c.RefreshTokens(ctx, tokens.RefreshToken)
		if err != nil {
			c.logger.Warn("session_refresh_failed", "error", err)
			c.session.LogOut(err)
			return nil, err
		}
		if err := c.session.rotate(*next); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}

func (c *Client) send(req *http.Request, accessToken string) (*http.Response, error) {
	r := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		r.Body = body
	}
	r.Header.Set("Authorization", "Bearer "+accessToken)
	return c.httpClient.Do(r)
}

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
}

type sessionData struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Login authenticates with a username or email and starts the session.
func (c *Client) Login(ctx context.Context, identifier, password string) error {
	body := map[string]string{"password": password}
	if strings.Contains(identifier, "@") {
		body["email"] = identifier
	} else {
		body["username"] = identifier
	}

	var data sessionData
	if err := c.post(ctx, "/api/v1/user/login", body, &data); err != nil {
		return err
	}
	return c.session.LogIn(Tokens(data))
}

// Logout revokes the session on the server and always ends it locally.
func (c *Client) Logout(ctx context.Context) error {
	tokens, _, state := c.session.snapshot()
	if state != StateLoggedIn {
		return nil
	}
	defer c.session.LogOut(nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/user/logout", nil)
	if err != nil {
		return err
	}
	resp, err := c.send(req, tokens.AccessToken)
	if err != nil {
		return fmt.Errorf("authclient: logout: %w", err)
	}
	defer discard(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("authclient: logout failed with status %d", resp.StatusCode)
	}
	return nil
}

// RefreshTokens exchanges a refresh token for a new pair without touching the session.
func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (*Tokens, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", ErrRefreshFailed)
	}
	var data sessionData
	if err := c.post(ctx, "/api/v1/user/refresh-token", map[string]string{"refreshToken": refreshToken}, &data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	if data.AccessToken == "" || data.RefreshToken == "" {
		return nil, fmt.Errorf("%w: incomplete token pair", ErrRefreshFailed)
	}
	t := Tokens(data)
	return &t, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

// rewindable buffers the body so the request can be replayed after a refresh.
func rewindable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("authclient: buffer body: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.Body, _ = req.GetBody()
	return nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
