package relayclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SecretHeader carries the internal API secret.
const SecretHeader = "X-Relaygate-Secret"

// DefaultTimeout bounds each request when no http.Client is supplied.
const DefaultTimeout = 10 * time.Second

const maxResponseBytes = 4 << 20

// Client talks to the relaygate internal API.
type Client struct {
	baseURL   string
	secret    string
	userAgent string
	http      *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithTLSConfig sets the TLS config used for https servers.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = cfg
		c.http.Transport = t
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a client for server, which may omit the scheme (http is assumed).
func New(server, secret string, opts ...Option) (*Client, error) {
	base := strings.TrimRight(server, "/")
	if base == "" {
		return nil, fmt.Errorf("relayclient: server address is required")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("relayclient: invalid server address: %w", err)
	}

	c := &Client{
		baseURL:   base,
		secret:    secret,
		userAgent: "relaygate-client",
		http:      &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// VerifyToken validates raw on the server. Write tokens are consumed
// according to mode.
func (c *Client) VerifyToken(ctx context.Context, raw string, mode ConsumeMode) (*Identity, error) {
	req := verifyRequest{Token: raw}
	switch mode {
	case Consume:
		req.Consume = boolPtr(true)
	case Peek:
		req.Consume = boolPtr(false)
	}
	var id Identity
	if err := c.do(ctx, http.MethodPost, "/internal/v1/tokens/verify", req, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// UpsertRoom creates or refreshes a room owned by up.NodeID.
func (c *Client) UpsertRoom(ctx context.Context, up RoomUpsert) (*Room, error) {
	req := upsertRequest{RoomUpsert: up}
	if up.TTL > 0 {
		req.TTLSeconds = int64((up.TTL + time.Second - 1) / time.Second)
	}
	var room Room
	if err := c.do(ctx, http.MethodPost, "/internal/v1/rooms/upsert", req, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// ResolveRoom looks up a live room by name.
func (c *Client) ResolveRoom(ctx context.Context, name string) (*Room, error) {
	var room Room
	path := "/internal/v1/rooms/resolve?room=" + url.QueryEscape(name)
	if err := c.do(ctx, http.MethodGet, path, nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// ListRooms returns every live room.
func (c *Client) ListRooms(ctx context.Context) ([]Room, error) {
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, "/internal/v1/rooms/list", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

// DeleteRoom removes a room. A non-empty nodeID makes the delete conditional
// on ownership.
func (c *Client) DeleteRoom(ctx context.Context, name, nodeID string) error {
	var resp deleteResponse
	return c.do(ctx, http.MethodPost, "/internal/v1/rooms/delete", deleteRequest{RoomName: name, NodeID: nodeID}, &resp)
}

// Ready reports whether the server can reach its store.
func (c *Client) Ready(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/ready", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("relayclient: marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("relayclient: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.secret != "" {
		req.Header.Set(SecretHeader, c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("relayclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	return decode(resp, target)
}

func decode(resp *http.Response, target any) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("relayclient: read response: %w", err)
	}

	var env envelope
	envErr := json.Unmarshal(raw, &env)

	if resp.StatusCode >= 400 {
		ae := &APIError{Status: resp.StatusCode}
		if envErr == nil {
			ae.Code = env.Code
			ae.Message = env.Message
			ae.RequestID = env.RequestID
			ae.Details = env.Details
		}
		if ae.Code == "" {
			ae.Code = resp.Header.Get("X-Error-Code")
		}
		if ae.RequestID == "" {
			ae.RequestID = resp.Header.Get("X-Request-ID")
		}
		return ae
	}

	if envErr != nil {
		return fmt.Errorf("relayclient: parse response: %w", envErr)
	}
	if target == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return fmt.Errorf("relayclient: parse data: %w", err)
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }
