package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for memory tracker, cache and backend spans.
const (
	AttrSweepKind    = "tracker.sweep.kind"
	AttrFreedBytes   = "tracker.freed_bytes"
	AttrEvictions    = "tracker.evictions"
	AttrSkipped      = "tracker.skipped_stores"
	AttrLedgerSize   = "tracker.size"
	AttrLedgerMax    = "tracker.max_size"
	AttrStoreCount   = "tracker.stores"
	AttrCacheName    = "cache.name"
	AttrBlockKey     = "cache.block_key"
	AttrBlockSize    = "cache.block_size"
	AttrBuffered     = "cache.buffered"
	AttrBackendType  = "backend.type"
	AttrBackendStore = "backend.store"
)

// Span names
const (
	SpanSweep      = "tracker.sweep"
	SpanUnregister = "tracker.unregister"
	SpanCachePut   = "cache.put"
	SpanCacheEvict = "cache.evict"
)

func SweepKind(kind string) attribute.KeyValue {
	return attribute.String(AttrSweepKind, kind)
}

func FreedBytes(n int64) attribute.KeyValue {
	return attribute.Int64(AttrFreedBytes, n)
}

func Evictions(n int) attribute.KeyValue {
	return attribute.Int(AttrEvictions, n)
}

func Skipped(n int) attribute.KeyValue {
	return attribute.Int(AttrSkipped, n)
}

func LedgerSize(n int64) attribute.KeyValue {
	return attribute.Int64(AttrLedgerSize, n)
}

func LedgerMax(n int64) attribute.KeyValue {
	return attribute.Int64(AttrLedgerMax, n)
}

func StoreCount(n int) attribute.KeyValue {
	return attribute.Int(AttrStoreCount, n)
}

func CacheName(name string) attribute.KeyValue {
	return attribute.String(AttrCacheName, name)
}

func BlockKey(key string) attribute.KeyValue {
	return attribute.String(AttrBlockKey, key)
}

func BlockSize(n int) attribute.KeyValue {
	return attribute.Int(AttrBlockSize, n)
}

func Buffered(b bool) attribute.KeyValue {
	return attribute.Bool(AttrBuffered, b)
}

func BackendType(kind string) attribute.KeyValue {
	return attribute.String(AttrBackendType, kind)
}

// StartTrackerSpan starts an internal span for tracker housekeeping.
func StartTrackerSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// StartCacheSpan starts a span for a cache operation on the named cache.
func StartCacheSpan(ctx context.Context, name, cache string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{CacheName(cache)}, attrs...)
	return StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}
