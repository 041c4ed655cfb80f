// Package authclient is the Go client for the storefront auth service. It
// owns the session cookies and transparently recovers from access-token
// expiry: a request answered with TOKEN_EXPIRED triggers one shared refresh
// exchange, after which the original request is replayed once.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"

	"golang.org/x/sync/singleflight"
)

// ErrSessionExpired is returned by the convenience calls once a refresh
// exchange has failed and the session is gone for good.
var ErrSessionExpired = errors.New("session expired")

const tokenExpiredCode = "TOKEN_EXPIRED"

type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type Option func(*Client)

// WithHTTPClient swaps the underlying transport; its cookie jar is replaced
// by the client's own so both tokens ride on every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithSessionExpiredHandler registers a callback fired once per failed
// refresh exchange, so callers can drop their local identity state.
func WithSessionExpiredHandler(fn func()) Option {
	return func(c *Client) {
		c.onSessionExpired = fn
	}
}

// Client is safe for concurrent use. All requests share one cookie jar, and
// at most one refresh exchange is in flight at any time regardless of how
// many requests hit token expiry concurrently.
type Client struct {
	baseURL          string
	httpClient       *http.Client
	refreshFlight    singleflight.Group
	onSessionExpired func()
}

func New(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}

	for _, opt := range opts {
		opt(c)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	c.httpClient.Jar = jar

	return c, nil
}

// Do sends the request, and on a TOKEN_EXPIRED answer joins the shared
// refresh exchange and replays the original request exactly once. Any other
// failure, including a 401 with a different code, is returned as-is: a bad
// signature is a security event, not a refresh trigger.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := bufferBody(req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	expired, resp, err := isTokenExpired(resp)
	if err != nil {
		return nil, err
	}
	if !expired {
		return resp, nil
	}

	if refreshErr := c.refresh(); refreshErr != nil {
		// Refresh failed: every waiter gets its original failure back.
		return resp, nil
	}

	_ = resp.Body.Close()

	replay, err := cloneRequest(req)
	if err != nil {
		return nil, err
	}

	// The replay is never retried again, so a request that keeps failing
	// after a successful refresh cannot loop.
	return c.httpClient.Do(replay)
}

// refresh collapses concurrent expiries into one network exchange. The
// in-flight slot is owned by singleflight and cleared only when the exchange
// settles, so a second refresh can never race the first. A started refresh
// always runs to completion: it deliberately ignores caller contexts and is
// bounded only by the transport's own timeout.
func (c *Client) refresh() error {
	_, err, _ := c.refreshFlight.Do("refresh", func() (any, error) {
		req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/auth/refresh-token", nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			if c.onSessionExpired != nil {
				c.onSessionExpired()
			}
			return nil, ErrSessionExpired
		}

		return nil, nil
	})

	return err
}

// Login authenticates and primes the cookie jar with the session pair.
func (c *Client) Login(ctx context.Context, email string, password string) (AuthUser, error) {
	return c.sessionCall(ctx, "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

// Signup registers a new identity; the response also carries session cookies.
func (c *Client) Signup(ctx context.Context, name string, email string, password string) (AuthUser, error) {
	return c.sessionCall(ctx, "/api/v1/auth/signup", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
}

// Logout always clears the server-side session; cookie removal happens via
// the expired Set-Cookie headers flowing back through the jar.
func (c *Client) Logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/auth/logout", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("logout failed with status %d", resp.StatusCode)
	}
	return nil
}

// Profile fetches the authenticated identity, refreshing if needed.
func (c *Client) Profile(ctx context.Context) (AuthUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/auth/profile", nil)
	if err != nil {
		return AuthUser{}, err
	}

	resp, err := c.Do(req)
	if err != nil {
		return AuthUser{}, err
	}
	defer resp.Body.Close()

	return decodeUser(resp)
}

func (c *Client) sessionCall(ctx context.Context, path string, payload map[string]string) (AuthUser, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return AuthUser{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return AuthUser{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return AuthUser{}, err
	}
	defer resp.Body.Close()

	return decodeUser(resp)
}

func decodeUser(resp *http.Response) (AuthUser, error) {
	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return AuthUser{}, fmt.Errorf("decode response: %w", err)
	}

	if !envelope.Success {
		if envelope.Error != nil {
			return AuthUser{}, fmt.Errorf("%s: %s", envelope.Error.Code, envelope.Error.Message)
		}
		return AuthUser{}, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	var user AuthUser
	if err := json.Unmarshal(envelope.Data, &user); err != nil {
		return AuthUser{}, fmt.Errorf("decode user: %w", err)
	}
	return user, nil
}

// isTokenExpired inspects a 401 body for the TOKEN_EXPIRED code and hands
// back a response whose body is still readable by the caller.
func isTokenExpired(resp *http.Response) (bool, *http.Response, error) {
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return false, nil, fmt.Errorf("read error body: %w", err)
	}

	resp.Body = io.NopCloser(bytes.NewReader(data))

	var envelope apiEnvelope
	if json.Unmarshal(data, &envelope) != nil || envelope.Error == nil {
		return false, resp, nil
	}

	return envelope.Error.Code == tokenExpiredCode, resp, nil
}

// bufferBody makes the request body rewindable so it can be replayed after
// a refresh.
func bufferBody(req *http.Request) error {
	if req.Body == nil || req.GetBody != nil {
		return nil
	}

	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("buffer request body: %w", err)
	}

	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil
}

func cloneRequest(req *http.Request) (*http.Request, error) {
	replay := req.Clone(req.Context())
	if req.GetBody == nil {
		return replay, nil
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind request body: %w", err)
	}
	replay.Body = body
	return replay, nil
}
