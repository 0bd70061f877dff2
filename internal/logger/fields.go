package logger

import "log/slog"

// Field keys shared by every log statement, so logs can be aggregated and
// queried consistently.
const (
	// Tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// HTTP
	KeyRequestID = "request_id"
	KeyClientIP  = "client_ip"
	KeyMethod    = "method"
	KeyPath      = "path"
	KeyStatus    = "status"

	// Memory tracker
	KeyCacheSize    = "cache_size"     // aggregate buffered bytes
	KeyCacheMaxSize = "cache_max_size" // configured capacity
	KeyBlockSize    = "block_size"     // size of the block being admitted
	KeySweepKind    = "sweep"          // routine or urgent
	KeyFreed        = "freed_bytes"
	KeyEvictions    = "evictions"
	KeyStores       = "stores"
	KeyQueued       = "queued"
	KeyRunning      = "running"

	// Caches and backends
	KeyCache     = "cache"
	KeyBackend   = "backend"
	KeyBlockKey  = "block_key"
	KeyBucket    = "bucket"
	KeyStorePath = "store_path"

	// Generic
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyOperation  = "operation"
	KeyCount      = "count"
)

// Err returns an error attribute; nil errors are rendered empty.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

func CacheName(name string) slog.Attr {
	return slog.String(KeyCache, name)
}

func Backend(kind string) slog.Attr {
	return slog.String(KeyBackend, kind)
}

func BlockKey(key string) slog.Attr {
	return slog.String(KeyBlockKey, key)
}

func BlockSize(n int64) slog.Attr {
	return slog.Int64(KeyBlockSize, n)
}

func CacheSize(n int64) slog.Attr {
	return slog.Int64(KeyCacheSize, n)
}

func CacheMaxSize(n int64) slog.Attr {
	return slog.Int64(KeyCacheMaxSize, n)
}

func SweepKind(kind string) slog.Attr {
	return slog.String(KeySweepKind, kind)
}

func Freed(n int64) slog.Attr {
	return slog.Int64(KeyFreed, n)
}

func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}
