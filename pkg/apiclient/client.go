// Package apiclient provides a REST API client for a running dittocache server.
package apiclient

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

// Client is the dittocache API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithTimeout returns a new client whose requests time out after d.
func (c *Client) WithTimeout(d time.Duration) *Client {
	return &Client{
		baseURL:    c.baseURL,
		httpClient: &http.Client{Timeout: d, Transport: c.httpClient.Transport},
	}
}

// envelope mirrors the server's response wrapper.
type envelope[T any] struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      T         `json:"data"`
	Error     string    `json:"error"`
}

// request describes a single API call.
type request struct {
	method      string
	path        string
	body        io.Reader
	contentType string
	accept      string
}

// send performs the request and returns the response body of a successful
// call. Responses with status >= 400 become *APIError.
func (c *Client) send(ctx context.Context, r request) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	accept := r.accept
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return respBody, resp.StatusCode, newAPIError(resp.StatusCode, respBody)
	}
	return respBody, resp.StatusCode, nil
}

// do performs a JSON request and unwraps the response envelope into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
		contentType = "application/json"
	}

	respBody, _, err := c.send(ctx, request{method: method, path: path, body: bodyReader, contentType: contentType})
	if err != nil {
		return err
	}
	return decodeEnvelope(respBody, result)
}

// decodeEnvelope unwraps the data field of an enveloped response into result.
func decodeEnvelope(body []byte, result any) error {
	if result == nil || len(body) == 0 {
		return nil
	}
	env := envelope[json.RawMessage]{}
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, result); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// get performs a GET request.
func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// delete performs a DELETE request.
func (c *Client) delete(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodDelete, path, nil, result)
}
