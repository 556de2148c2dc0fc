// Package benchclient talks to a gpubench server.
package benchclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fxnlabs/gpubench/pkg/api"
)

// Error is a non-2xx answer from the server.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client sends benchmark requests to one server.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a Client for baseURL, e.g. "http://127.0.0.1:8090". A nil
// http.Client means http.DefaultClient.
func NewClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (c *Client) Bench(ctx context.Context, req api.BenchRequest) (api.Result, error) {
	var res api.Result
	err := c.do(ctx, http.MethodPost, api.PathBench, req, &res)
	return res, err
}

func (c *Client) Autotune(ctx context.Context, req api.AutotuneRequest) (api.AutotuneResponse, error) {
	var res api.AutotuneResponse
	err := c.do(ctx, http.MethodPost, api.PathAutotune, req, &res)
	return res, err
}

func (c *Client) E2E(ctx context.Context, req api.E2ERequest) (api.Result, error) {
	var res api.Result
	err := c.do(ctx, http.MethodPost, api.PathE2E, req, &res)
	return res, err
}

func (c *Client) Device(ctx context.Context) (api.Device, error) {
	var dev api.Device
	err := c.do(ctx, http.MethodGet, api.PathDevice, nil, &dev)
	return dev, err
}

// SendRequest sends a JSON body to path and returns the raw response.
func (c *Client) SendRequest(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.client.Do(req)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}
	resp, err := c.SendRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		var apiErr api.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return &Error{StatusCode: resp.StatusCode, Message: apiErr.Error}
		}
		return &Error{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
