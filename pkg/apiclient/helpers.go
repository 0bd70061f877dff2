package apiclient

import (
	"context"
	"net/url"
	"strings"
)

// getResource performs a GET request to the given path and decodes the
// enveloped response data into a value of type T.
//
// Example:
//
//	st, err := getResource[Status](ctx, c, "/api/v1/status")
func getResource[T any](ctx context.Context, c *Client, path string) (*T, error) {
	var result T
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// blockPath builds /api/v1/caches/{cache}/blocks/{key}, escaping every key
// segment but keeping the slashes.
func blockPath(cache, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return "/api/v1/caches/" + url.PathEscape(cache) + "/blocks/" + strings.Join(segments, "/")
}
