package cache

import "time"

// Metrics receives cache observations. Implementations must be safe for
// concurrent use.
type Metrics interface {
	// ObserveWrite records a Put; mode is "buffered" or "write-through".
	ObserveWrite(cache, mode string, bytes int64, d time.Duration)

	// ObserveEviction records one flush attempt of a buffered block.
	ObserveEviction(cache string, bytes int64, ok bool, d time.Duration)

	// RecordBuffered publishes the buffered bytes and block count.
	RecordBuffered(cache string, bytes int64, blocks int)
}
