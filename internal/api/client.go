package api

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
)

const (
	DefaultTimeout = 30 * time.Second
	maxErrorBody   = 64 << 10
)

// TokenSource supplies the bearer token and is told when the server rejects it.
type TokenSource interface {
	AccessToken() string
	// Invalidate drops both stored tokens.
	Invalidate()
}

// Client talks to the document chat REST API.
type Client struct {
	baseURL        string
	http           *http.Client
	tokens         TokenSource
	userAgent      string
	onUnauthorized func()
	logger         *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithUnauthorizedHandler registers a callback fired after a 401 on an
// authenticated call, once the tokens are cleared.
func WithUnauthorizedHandler(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New builds a client rooted at baseURL (for example http://host/api/v1).
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		tokens:  tokens,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Auth() *AuthService { return &AuthService{c: c} }

func (c *Client) Rooms() *RoomService { return &RoomService{c: c} }

func (c *Client) Documents() *DocumentService { return &DocumentService{c: c} }

func (c *Client) Chat() *ChatService { return &ChatService{c: c} }

type request struct {
	method      string
	path        string
	body        io.Reader
	contentType string
	// public marks login/register, where a 401 means bad credentials
	// rather than an expired session.
	public bool
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	req := request{method: method, path: path}
	if payload != nil {
		body, err := jsonBody(payload)
		if err != nil {
			return err
		}
		req.body = body
		req.contentType = "application/json"
	}
	return c.do(ctx, req, out)
}

func jsonBody(payload any) (io.Reader, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(buf), nil
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return err
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.tokens != nil {
		if token := c.tokens.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.responseError(r, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			c.logger.Debug("ignoring non-JSON success body", "path", r.path, "status", resp.StatusCode)
			return nil
		}
		return fmt.Errorf("decode %s: %w", r.path, err)
	}
	return nil
}

func (c *Client) responseError(r request, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{Status: resp.StatusCode, Body: body}
	// 429 bodies come from a rate limiter and are often plain text.
	if resp.StatusCode != http.StatusTooManyRequests {
		apiErr.Detail = readDetail(body)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		if r.public {
			apiErr.err = ErrInvalidCredentials
			return apiErr
		}
		apiErr.err = ErrUnauthorized
		if c.tokens != nil {
			c.tokens.Invalidate()
		}
		c.logger.Info("session rejected by server", "path", r.path)
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
	}
	return apiErr
}
