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
)

// Client talks to a running daemon.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the API listening on addr (host:port).
func NewClient(addr string) *Client {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

// Health checks that the daemon is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/v1/healthz", nil, nil)
}

// Status returns the tunnel status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Connect asks the daemon to connect with req.
func (c *Client) Connect(ctx context.Context, req ConnectRequest) error {
	return c.do(ctx, http.MethodPost, "/v1/connect", req, nil)
}

// Disconnect asks the daemon to disconnect.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/disconnect", nil, nil)
}

// AlwaysOn returns the always-on setting.
func (c *Client) AlwaysOn(ctx context.Context) (AlwaysOn, error) {
	var resp AlwaysOn
	err := c.do(ctx, http.MethodGet, "/v1/always-on", nil, &resp)
	return resp, err
}

// SetAlwaysOn changes the always-on setting and returns the stored value.
func (c *Client) SetAlwaysOn(ctx context.Context, enabled bool) (AlwaysOn, error) {
	var resp AlwaysOn
	err := c.do(ctx, http.MethodPut, "/v1/always-on", AlwaysOn{Enabled: enabled}, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
