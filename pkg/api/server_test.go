package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port
}

func TestServerStartStop(t *testing.T) {
	port := freePort(t)
	srv := NewServer(APIConfig{Port: port}, nil)
	assert.Equal(t, port, srv.Port())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	url := "http://127.0.0.1:" + strconv.Itoa(port) + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	// Stop is idempotent.
	assert.NoError(t, srv.Stop(context.Background()))
}

func TestServerStartPortInUse(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	srv := NewServer(APIConfig{Port: l.Addr().(*net.TCPAddr).Port}, nil)
	err = srv.Start(context.Background())
	assert.ErrorContains(t, err, "failed to listen")
}

func TestAPIConfigDefaults(t *testing.T) {
	var cfg APIConfig
	assert.True(t, cfg.IsEnabled())

	cfg.ApplyDefaults()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.IdleTimeout)
	assert.EqualValues(t, 16<<20, cfg.MaxBlockSize)

	disabled := false
	cfg.Enabled = &disabled
	assert.False(t, cfg.IsEnabled())
}
