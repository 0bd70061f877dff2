package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittocache/pkg/store/block"
	"github.com/marmos91/dittocache/pkg/store/block/memory"
)

func TestNewValidatesArguments(t *testing.T) {
	backend := memory.New()
	l := &ledger{max: 10}

	_, err := New("", backend, l)
	assert.Error(t, err)
	_, err = New("c", nil, l)
	assert.Error(t, err)
	_, err = New("c", backend, nil)
	assert.Error(t, err)

	c, err := New("c", backend, l)
	require.NoError(t, err)
	assert.Equal(t, "c", c.Name())
	assert.Same(t, backend, c.Backend())
}

func TestPutBuffersAdmittedBlock(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	c, l := newTestCache(t, backend, 100)

	mode, err := c.Put(ctx, "k", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, WriteBuffered, mode)

	assert.Equal(t, int64(5), c.Size())
	assert.Equal(t, int64(5), l.Size())
	assert.Equal(t, 1, c.Len())
	assert.Zero(t, backend.BlockCount(), "buffered blocks are not written yet")

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestPutCopiesData(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, memory.New(), 100)

	data := []byte("abc")
	_, err := c.Put(ctx, "k", data)
	require.NoError(t, err)
	data[0] = 'X'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	got[1] = 'Y'
	again, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestPutRefusedWritesThrough(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	c, l := newTestCache(t, backend, 4)

	mode, err := c.Put(ctx, "k", []byte("too big"))
	require.NoError(t, err)
	assert.Equal(t, WriteThrough, mode)

	assert.Zero(t, c.Size())
	assert.Zero(t, l.Size())
	got, err := backend.ReadBlock(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "too big", string(got))
}

func TestEmptyBlockIsWrittenThrough(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	c, _ := newTestCache(t, backend, 100)

	mode, err := c.Put(ctx, "empty", nil)
	require.NoError(t, err)
	assert.Equal(t, WriteThrough, mode)
	assert.Equal(t, 1, backend.BlockCount())
	assert.Zero(t, c.Len())
}

func TestOverwriteReleasesOldBytes(t *testing.T) {
	ctx := context.Background()
	c, l := newTestCache(t, memory.New(), 100)

	_, err := c.Put(ctx, "k", make([]byte, 30))
	require.NoError(t, err)
	_, err = c.Put(ctx, "k", make([]byte, 10))
	require.NoError(t, err)

	assert.Equal(t, int64(10), c.Size())
	assert.Equal(t, int64(10), l.Size())
	assert.Equal(t, int64(30), l.released)
	assert.Equal(t, 1, c.Len())
}

func TestWriteThroughDropsStaleBufferedCopy(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	c, l := newTestCache(t, backend, 100)

	_, err := c.Put(ctx, "k", []byte("old"))
	require.NoError(t, err)

	l.refuse = true
	mode, err := c.Put(ctx, "k", []byte("new"))
	require.NoError(t, err)
	assert.Equal(t, WriteThrough, mode)

	assert.Zero(t, c.Size())
	assert.Zero(t, l.Size())

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestWriteThroughFailureKeepsBufferedCopy(t *testing.T) {
	ctx := context.Background()
	backend := newFlakyStore()
	c, l := newTestCache(t, backend, 100)

	_, err := c.Put(ctx, "k", []byte("old"))
	require.NoError(t, err)

	l.refuse = true
	backend.failNext(1)
	_, err = c.Put(ctx, "k", []byte("new"))
	assert.ErrorIs(t, err, errBackend)

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))
	assert.Equal(t, int64(3), c.Size())
}

func TestGetMissFallsBackToBackend(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	require.NoError(t, backend.WriteBlock(ctx, "k", []byte("durable")))
	c, _ := newTestCache(t, backend, 100)

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "durable", string(got))

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, block.ErrBlockNotFound)
}

func TestGetMarksRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, memory.New(), 100)

	for _, k := range []string{"a", "b", "c"} {
		_, err := c.Put(ctx, k, []byte(k))
		require.NoError(t, err)
	}
	_, err := c.Get(ctx, "a")
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "c", "a"}, c.Keys())
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	c, l := newTestCache(t, backend, 100)

	_, err := c.Put(ctx, "buffered", []byte("12345"))
	require.NoError(t, err)
	require.NoError(t, backend.WriteBlock(ctx, "durable", []byte("x")))

	require.NoError(t, c.Delete(ctx, "buffered"))
	require.NoError(t, c.Delete(ctx, "durable"))

	assert.Zero(t, c.Size())
	assert.Zero(t, l.Size())
	_, err = c.Get(ctx, "buffered")
	assert.ErrorIs(t, err, block.ErrBlockNotFound)
	_, err = c.Get(ctx, "durable")
	assert.ErrorIs(t, err, block.ErrBlockNotFound)
}

func TestInvalidKey(t *testing.T) {
	c, l := newTestCache(t, memory.New(), 100)

	_, err := c.Put(context.Background(), "", []byte("v"))
	assert.ErrorIs(t, err, block.ErrInvalidKey)
	assert.Zero(t, l.Size())
}

func TestClosedCacheRejectsWrites(t *testing.T) {
	ctx := context.Background()
	c, l := newTestCache(t, memory.New(), 100)
	_, err := c.Put(ctx, "k", []byte("v"))
	require.NoError(t, err)

	require.NoError(t, c.Close())

	_, err = c.Put(ctx, "k2", []byte("v"))
	assert.ErrorIs(t, err, ErrCacheClosed)
	assert.Equal(t, int64(1), l.Size())

	// Buffered blocks can still be read and drained.
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
	n, err := c.EvictOneBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

// closingLedger closes the cache right after granting space, so Put finds
// the cache closed when it tries to buffer.
type closingLedger struct {
	ledger
	c *Cache
}

func (l *closingLedger) Admit(n int64) bool {
	ok := l.ledger.Admit(n)
	_ = l.c.Close()
	return ok
}

func TestPutLosesRaceWithClose(t *testing.T) {
	l := &closingLedger{ledger: ledger{max: 100}}
	c, err := New("test", memory.New(), l)
	require.NoError(t, err)
	l.c = c

	mode, err := c.Put(context.Background(), "k", []byte("v"))
	assert.ErrorIs(t, err, ErrCacheClosed)
	assert.Equal(t, WriteThrough, mode)
	assert.Zero(t, l.Size(), "reservation is returned")
	assert.Equal(t, int64(1), l.released)
	assert.Zero(t, c.Len())
}

func TestMetricsAreRecorded(t *testing.T) {
	ctx := context.Background()
	m := newRecordingMetrics()
	c, l := newTestCache(t, memory.New(), 10, WithMetrics(m))

	_, err := c.Put(ctx, "a", make([]byte, 8))
	require.NoError(t, err)
	_, err = c.Put(ctx, "b", make([]byte, 8))
	require.NoError(t, err)

	n, err := c.EvictOneBlock(ctx)
	require.NoError(t, err)
	l.evicted(n)

	assert.Equal(t, 1, m.writes["buffered"])
	assert.Equal(t, 1, m.writes["write-through"])
	assert.Equal(t, 1, m.evictions[true])
	assert.Zero(t, m.bytes)
	assert.Zero(t, m.blocks)
}

func TestWriteModeString(t *testing.T) {
	assert.Equal(t, "buffered", WriteBuffered.String())
	assert.Equal(t, "write-through", WriteThrough.String())
	assert.Equal(t, "unknown", WriteMode(9).String())
}
