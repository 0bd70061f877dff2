package apiclient

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittocache/pkg/api"
	"github.com/marmos91/dittocache/pkg/api/handlers"
	"github.com/marmos91/dittocache/pkg/cache"
	"github.com/marmos91/dittocache/pkg/store/block/memory"
)

type budget struct {
	mu   sync.Mutex
	used int64
	max  int64
}

func (b *budget) Admit(n int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used+n > b.max {
		return false
	}
	b.used += n
	return true
}

func (b *budget) Release(n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used -= n
}

type runtime struct{ c *cache.Cache }

func (r runtime) Status() handlers.Status {
	return handlers.Status{Caches: []handlers.CacheStatus{{
		Name: r.c.Name(), Backend: "memory", Size: r.c.Size(), Blocks: r.c.Len(),
	}}}
}

func (r runtime) Caches() []*cache.Cache { return []*cache.Cache{r.c} }

func (r runtime) Cache(name string) (*cache.Cache, bool) {
	return r.c, name == r.c.Name()
}

func TestClientAgainstServer(t *testing.T) {
	c, err := cache.New("default", memory.New(), &budget{max: 1024})
	require.NoError(t, err)

	cfg := api.APIConfig{}
	srv := httptest.NewServer(api.NewRouter(runtime{c: c}, cfg))
	defer srv.Close()

	ctx := context.Background()
	client := New(srv.URL)

	require.NoError(t, client.Health(ctx))
	require.NoError(t, client.Ready(ctx))

	res, err := client.PutBlock(ctx, "default", "files/1/0", []byte("hello"))
	require.NoError(t, err)
	assert.True(t, res.Buffered)

	data, err := client.GetBlock(ctx, "default", "files/1/0")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	keys, err := client.Keys(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, []string{"files/1/0"}, keys)

	st, err := client.Status(ctx)
	require.NoError(t, err)
	require.Len(t, st.Caches, 1)
	assert.Equal(t, int64(5), st.Caches[0].Size)

	backends, err := client.Backends(ctx)
	require.NoError(t, err)
	require.Len(t, backends, 1)
	assert.Equal(t, "healthy", backends[0].Status)

	require.NoError(t, client.DeleteBlock(ctx, "default", "files/1/0"))
	_, err = client.GetBlock(ctx, "default", "files/1/0")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsNotFound())

	_, err = client.PutBlock(ctx, "missing", "k", []byte("x"))
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsNotFound())
}
