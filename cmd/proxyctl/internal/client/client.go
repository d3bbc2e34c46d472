// Package client talks to a running videoproc server.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/getgoodtape/videoproc/internal/conflict"
	"github.com/getgoodtape/videoproc/internal/service"
)

// Client calls the diagnostics API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a client for baseURL.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// Diagnostics fetches GET /api/v1/diagnostics.
func (c *Client) Diagnostics(ctx context.Context) (*service.Diagnostics, error) {
	var d service.Diagnostics
	if err := c.do(ctx, http.MethodGet, "/api/v1/diagnostics", &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Probe forces a conflict re-probe on the server.
func (c *Client) Probe(ctx context.Context) (*conflict.State, error) {
	var s conflict.State
	if err := c.do(ctx, http.MethodPost, "/api/v1/diagnostics/probe", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
