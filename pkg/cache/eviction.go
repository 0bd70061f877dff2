package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/dittocache/internal/logger"
	"github.com/marmos91/dittocache/internal/telemetry"
)

// EvictOneBlock writes the least recently used block to the backend and
// drops it from the buffer, returning its size. It returns 0 when nothing
// is buffered. On failure the block is put back as least recently used.
func (c *Cache) EvictOneBlock(ctx context.Context) (int64, error) {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	front := c.lru.Front()
	if front == nil {
		c.mu.Unlock()
		return 0, nil
	}
	e := c.lru.Remove(front).(*entry)
	delete(c.entries, e.key)
	c.flushing = e
	c.mu.Unlock()

	n := int64(len(e.data))
	ctx, span := telemetry.StartCacheSpan(ctx, telemetry.SpanCacheEvict, c.name,
		telemetry.BlockKey(e.key), telemetry.BlockSize(len(e.data)))
	defer span.End()

	start := time.Now()
	err := c.backend.WriteBlock(ctx, e.key, e.data)
	d := time.Since(start)

	c.mu.Lock()
	c.flushing = nil
	if err != nil {
		if _, newer := c.entries[e.key]; newer {
			// Superseded while in flight; the newer copy will be flushed.
			c.size -= n
			c.recordBufferedLocked()
			c.mu.Unlock()
			logger.DebugCtx(ctx, "Dropped superseded block after failed flush",
				logger.CacheName(c.name), logger.BlockKey(e.key), logger.Err(err))
			c.observeEviction(n, true, d)
			return n, nil
		}
		c.entries[e.key] = c.lru.PushFront(e)
		c.recordBufferedLocked()
		c.mu.Unlock()

		telemetry.RecordError(ctx, err)
		c.observeEviction(n, false, d)
		logger.WarnCtx(ctx, "Block flush failed",
			logger.CacheName(c.name), logger.BlockKey(e.key), logger.BlockSize(n), logger.Err(err))
		return 0, fmt.Errorf("cache %s: flush %q: %w", c.name, e.key, err)
	}
	c.size -= n
	c.recordBufferedLocked()
	c.mu.Unlock()

	c.observeEviction(n, true, d)
	logger.DebugCtx(ctx, "Block flushed",
		logger.CacheName(c.name), logger.BlockKey(e.key), logger.BlockSize(n),
		logger.DurationMs(float64(d.Microseconds())/1000.0))
	return n, nil
}

func (c *Cache) observeEviction(n int64, ok bool, d time.Duration) {
	if c.metrics != nil {
		c.metrics.ObserveEviction(c.name, n, ok, d)
	}
}
