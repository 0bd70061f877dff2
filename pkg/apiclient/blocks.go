package apiclient

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
)

// PutResult is the outcome of a block upload.
type PutResult struct {
	Cache    string `json:"cache"`
	Key      string `json:"key"`
	Size     int    `json:"size"`
	Buffered bool   `json:"buffered"`
	Mode     string `json:"mode"`
}

// PutBlock uploads data under key in the named cache.
func (c *Client) PutBlock(ctx context.Context, cache, key string, data []byte) (*PutResult, error) {
	body, _, err := c.send(ctx, request{
		method:      http.MethodPut,
		path:        blockPath(cache, key),
		body:        bytes.NewReader(data),
		contentType: "application/octet-stream",
	})
	if err != nil {
		return nil, err
	}

	var result PutResult
	if err := decodeEnvelope(body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetBlock downloads the block stored under key in the named cache.
func (c *Client) GetBlock(ctx context.Context, cache, key string) ([]byte, error) {
	body, _, err := c.send(ctx, request{
		method: http.MethodGet,
		path:   blockPath(cache, key),
		accept: "application/octet-stream",
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// DeleteBlock removes key from the named cache and its backend.
func (c *Client) DeleteBlock(ctx context.Context, cache, key string) error {
	return c.delete(ctx, blockPath(cache, key), nil)
}

// Keys lists the buffered block keys of the named cache, least recently
// used first.
func (c *Client) Keys(ctx context.Context, cache string) ([]string, error) {
	var keys []string
	if err := c.get(ctx, "/api/v1/caches/"+url.PathEscape(cache)+"/keys", &keys); err != nil {
		return nil, err
	}
	return keys, nil
}
