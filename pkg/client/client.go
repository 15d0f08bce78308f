// Package client is a typed HTTP client for a running agent's local API.
// Fleet tooling and the astra CLI use it to query component status, read
// the event log, fetch the current telemetry record, and trigger manual
// image captures.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds client configuration.
type Config struct {
	BaseURL string // e.g. http://127.0.0.1:8082
	Timeout time.Duration
}

// DefaultConfig targets the agent's default loopback listen address.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8082",
		Timeout: 5 * time.Second,
	}
}

// Client talks to one agent instance.
type Client struct {
	baseURL string
	client  *http.Client
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://127.0.0.1:8082"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Healthy reports whether the agent answers its health endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	var out struct {
		OK bool `json:"ok"`
	}
	return c.get(ctx, "/healthz", &out) == nil && out.OK
}

// Status returns component states and, when a relay runs in-process,
// its delivery statistics.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var out StatusResponse
	err := c.get(ctx, "/api/status", &out)
	return out, err
}

// Telemetry returns the agent's current merged telemetry record as raw
// JSON; the wire shape belongs to the dashboard contract.
func (c *Client) Telemetry(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.get(ctx, "/api/telemetry", &out)
	return out, err
}

// Events returns up to limit recent component lifecycle events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	var out []Event
	err := c.get(ctx, fmt.Sprintf("/api/events?limit=%d", limit), &out)
	return out, err
}

// Stop asks the agent to shut down cleanly.
func (c *Client) Stop(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/shutdown", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("agent not reachable at %s: %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

// Capture asks the relay to send the image at path ahead of schedule.
func (c *Client) Capture(ctx context.Context, path string) error {
	body, err := json.Marshal(map[string]string{"path": path})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/capture", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("agent not reachable at %s: %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("agent not reachable at %s: %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Errorf("agent: %s", e.Error)
	}
	return fmt.Errorf("agent returned %s", resp.Status)
}
