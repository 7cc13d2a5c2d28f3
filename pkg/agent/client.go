package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client talks to a remote agent over mutual TLS
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient creates a new agent client
func NewClient(config ClientConfig) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tlsConfig, err := config.LoadClientTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS config: %w", err)
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
		},
		Timeout: 30 * time.Second,
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
	}, nil
}

// Get fetches an endpoint and returns the raw body
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	u := url.URL{
		Scheme:   "https",
		Host:     fmt.Sprintf("%s:%d", c.config.Host, c.config.Port),
		Path:     "/" + endpoint,
		RawQuery: query.Encode(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// CheckHealth checks if the agent is healthy
func (c *Client) CheckHealth(ctx context.Context) error {
	body, err := c.Get(ctx, "health", nil)
	if err != nil {
		return err
	}

	if string(body) != "OK\n" {
		return fmt.Errorf("unexpected health response: %s", string(body))
	}

	return nil
}

// Devices fetches the remote monitor's device snapshots
func (c *Client) Devices(ctx context.Context) (*DevicesResponse, error) {
	var resp DevicesResponse
	if err := c.getJSON(ctx, "devices", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Readings fetches recorded readings for device, newest first. An empty
// device matches every device.
func (c *Client) Readings(ctx context.Context, device string, limit int) (*ReadingsResponse, error) {
	query := url.Values{}
	if device != "" {
		query.Set("device", device)
	}
	if limit > 0 {
		query.Set("limit", fmt.Sprint(limit))
	}

	var resp ReadingsResponse
	if err := c.getJSON(ctx, "readings", query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, query url.Values, v any) error {
	body, err := c.Get(ctx, endpoint, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}
