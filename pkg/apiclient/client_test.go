package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	client := New("http://localhost:8080/")
	assert.NotNil(t, client)
	assert.Equal(t, "http://localhost:8080", client.baseURL)
}

func TestWithTimeout(t *testing.T) {
	client := New("http://localhost:8080")
	short := client.WithTimeout(time.Second)

	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
	assert.Equal(t, time.Second, short.httpClient.Timeout)
	assert.Equal(t, client.baseURL, short.baseURL)
}

func TestDoUnwrapsEnvelope(t *testing.T) {
	type payload struct {
		Message string `json:"message"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"data":   payload{Message: "success"},
		})
	}))
	defer server.Close()

	var resp payload
	err := New(server.URL).get(context.Background(), "/test", &resp)
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Message)
}

func TestDoWithAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "error",
			"error":  `cache "x" not found`,
		})
	}))
	defer server.Close()

	err := New(server.URL).get(context.Background(), "/test", nil)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, `cache "x" not found`, apiErr.Message)
	assert.True(t, apiErr.IsNotFound())
	assert.Contains(t, apiErr.Error(), "404")
}

func TestDoWithPlainTextError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	err := New(server.URL).get(context.Background(), "/test", nil)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream exploded", apiErr.Message)
}

func TestDoHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := New(server.URL).get(ctx, "/slow", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPutBlockSendsRawBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/caches/default/blocks/dir/a%20b", r.URL.EscapedPath())
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "data", string(body))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"data":   PutResult{Cache: "default", Key: "dir/a b", Size: 4, Buffered: true, Mode: "buffered"},
		})
	}))
	defer server.Close()

	res, err := New(server.URL).PutBlock(context.Background(), "default", "dir/a b", []byte("data"))
	require.NoError(t, err)
	assert.True(t, res.Buffered)
	assert.Equal(t, 4, res.Size)
}

func TestBlockPath(t *testing.T) {
	assert.Equal(t, "/api/v1/caches/c/blocks/a/b/c", blockPath("c", "a/b/c"))
	assert.Equal(t, "/api/v1/caches/c/blocks/a%3Fb", blockPath("c", "a?b"))
}
