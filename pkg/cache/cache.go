// Package cache implements a write-back block cache in front of a durable
// block store.
//
// Blocks are buffered in memory while the memory tracker admits them and are
// written to the backend when the tracker asks the cache to evict its least
// recently used block. A refused admission turns the write into a
// synchronous write-through.
//
// Key Design Principles:
//   - The cache never flushes on its own; the tracker drives eviction
//   - Buffered bytes are always accounted with the tracker: replaced or
//     deleted blocks are released, evicted blocks are reported as freed
//   - Evictions and write-throughs are serialised so an older flush can
//     never overwrite a newer synchronous write
//   - The cache lock is never held while talking to the backend
package cache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittocache/internal/logger"
	"github.com/marmos91/dittocache/internal/telemetry"
	"github.com/marmos91/dittocache/pkg/store/block"
)

// ErrCacheClosed is returned by writes after Close.
var ErrCacheClosed = errors.New("cache is closed")

// Admitter grants buffer space. *tracker.Tracker satisfies it.
type Admitter interface {
	// Admit reports whether blockSize more bytes may be buffered and
	// accounts them if so.
	Admit(blockSize int64) bool

	// Release returns bytes that left the buffer without being evicted.
	Release(n int64)
}

// WriteMode tells how Put stored a block.
type WriteMode int

const (
	// WriteBuffered means the block is held in memory until evicted.
	WriteBuffered WriteMode = iota

	// WriteThrough means the block was written to the backend directly.
	WriteThrough
)

func (m WriteMode) String() string {
	switch m {
	case WriteBuffered:
		return "buffered"
	case WriteThrough:
		return "write-through"
	default:
		return "unknown"
	}
}

type entry struct {
	key  string
	data []byte
	seq  uint64
}

// Cache is a write-back LRU block cache. It implements tracker.Store.
type Cache struct {
	name     string
	backend  block.Store
	admitter Admitter
	metrics  Metrics

	mu       sync.Mutex
	lru      *list.List // front is least recently used
	entries  map[string]*list.Element
	flushing *entry
	size     int64
	seq      uint64
	closed   bool

	// flushMu serialises evictions, write-throughs and deletes.
	flushMu sync.Mutex
}

// Option configures a Cache.
type Option func(*Cache)

// WithMetrics sets the metrics sink. A nil Metrics disables collection.
func WithMetrics(m Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New creates a cache named name that flushes to backend and asks admitter
// for buffer space.
func New(name string, backend block.Store, admitter Admitter, opts ...Option) (*Cache, error) {
	if name == "" {
		return nil, errors.New("cache name is required")
	}
	if backend == nil {
		return nil, errors.New("cache backend is required")
	}
	if admitter == nil {
		return nil, errors.New("cache admitter is required")
	}

	c := &Cache{
		name:     name,
		backend:  backend,
		admitter: admitter,
		lru:      list.New(),
		entries:  make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name returns the cache name.
func (c *Cache) Name() string {
	return c.name
}

// Backend returns the durable store behind the cache.
func (c *Cache) Backend() block.Store {
	return c.backend
}

// Size returns the buffered bytes, including a block being flushed.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the number of buffered blocks, including a block being flushed.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.lru.Len()
	if c.flushing != nil {
		n++
	}
	return n
}

// Keys returns the buffered keys from least to most recently used.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.lru.Len())
	for el := c.lru.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry).key)
	}
	return keys
}

// Put stores data under key. The block is buffered if the admitter grants
// the space, otherwise it is written through to the backend.
func (c *Cache) Put(ctx context.Context, key string, data []byte) (WriteMode, error) {
	if err := block.ValidateKey(key); err != nil {
		return WriteThrough, err
	}

	ctx, span := telemetry.StartCacheSpan(ctx, telemetry.SpanCachePut, c.name,
		telemetry.BlockKey(key), telemetry.BlockSize(len(data)))
	defer span.End()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return WriteThrough, ErrCacheClosed
	}

	start := time.Now()
	n := int64(len(data))

	// Empty blocks carry no bytes to account and would never be picked by
	// a sweep.
	if n > 0 && c.admitter.Admit(n) {
		if err := c.buffer(key, data); err != nil {
			c.admitter.Release(n)
			return WriteThrough, err
		}
		telemetry.SetAttributes(ctx, telemetry.Buffered(true))
		c.observeWrite(WriteBuffered, n, time.Since(start))
		logger.DebugCtx(ctx, "Block buffered",
			logger.CacheName(c.name), logger.BlockKey(key), logger.BlockSize(n))
		return WriteBuffered, nil
	}

	telemetry.SetAttributes(ctx, telemetry.Buffered(false))
	if err := c.writeThrough(ctx, key, data); err != nil {
		telemetry.RecordError(ctx, err)
		return WriteThrough, err
	}
	c.observeWrite(WriteThrough, n, time.Since(start))
	logger.DebugCtx(ctx, "Block written through",
		logger.CacheName(c.name), logger.BlockKey(key), logger.BlockSize(n))
	return WriteThrough, nil
}

// buffer stores a copy of data as the most recently used block. The bytes
// must already be admitted.
func (c *Cache) buffer(key string, data []byte) error {
	copied := make([]byte, len(data))
	copy(copied, data)
	n := int64(len(copied))

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCacheClosed
	}

	c.seq++
	var replaced int64
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry)
		replaced = int64(len(e.data))
		e.data = copied
		e.seq = c.seq
		c.lru.MoveToBack(el)
	} else {
		c.entries[key] = c.lru.PushBack(&entry{key: key, data: copied, seq: c.seq})
	}
	c.size += n - replaced
	c.recordBufferedLocked()
	c.mu.Unlock()

	if replaced > 0 {
		c.admitter.Release(replaced)
	}
	return nil
}

// writeThrough writes data straight to the backend and drops any older
// buffered copy of key.
func (c *Cache) writeThrough(ctx context.Context, key string, data []byte) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	cutoff := c.seq
	c.mu.Unlock()

	if err := c.backend.WriteBlock(ctx, key, data); err != nil {
		return fmt.Errorf("cache %s: write through %q: %w", c.name, key, err)
	}

	// Copies buffered after the write started are newer and stay.
	c.dropBuffered(key, func(e *entry) bool { return e.seq <= cutoff })
	return nil
}

// dropBuffered removes key from the buffer when drop accepts its entry, releasing
// its bytes.
func (c *Cache) dropBuffered(key string, drop func(*entry) bool) {
	c.mu.Lock()
	el, ok := c.entries[key]
	if !ok || !drop(el.Value.(*entry)) {
		c.mu.Unlock()
		return
	}
	e := c.lru.Remove(el).(*entry)
	delete(c.entries, key)
	n := int64(len(e.data))
	c.size -= n
	c.recordBufferedLocked()
	c.mu.Unlock()

	c.admitter.Release(n)
}

// Get returns the block stored under key, preferring the buffered copy.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	var data []byte
	if el, ok := c.entries[key]; ok {
		c.lru.MoveToBack(el)
		data = el.Value.(*entry).data
	} else if c.flushing != nil && c.flushing.key == key {
		data = c.flushing.data
	}
	if data != nil {
		out := make([]byte, len(data))
		copy(out, data)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	data, err := c.backend.ReadBlock(ctx, key)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Delete drops any buffered copy of key and deletes it from the backend.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.dropBuffered(key, func(*entry) bool { return true })

	if err := c.backend.DeleteBlock(ctx, key); err != nil {
		return fmt.Errorf("cache %s: delete %q: %w", c.name, key, err)
	}
	return nil
}

// Close rejects further writes. Buffered blocks stay until evicted, so the
// cache should be drained through the tracker first.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.size > 0 {
		logger.Warn("Cache closed with buffered blocks",
			logger.CacheName(c.name), logger.CacheSize(c.size), logger.KeyCount, c.lru.Len())
	}
	return nil
}

// recordBufferedLocked publishes the buffer gauges. c.mu must be held.
func (c *Cache) recordBufferedLocked() {
	if c.metrics == nil {
		return
	}
	n := c.lru.Len()
	if c.flushing != nil {
		n++
	}
	c.metrics.RecordBuffered(c.name, c.size, n)
}

func (c *Cache) observeWrite(mode WriteMode, n int64, d time.Duration) {
	if c.metrics != nil {
		c.metrics.ObserveWrite(c.name, mode.String(), n, d)
	}
}
