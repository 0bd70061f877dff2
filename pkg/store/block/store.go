// Package block defines the durable storage that write-back caches flush
// their blocks to.
package block

import (
	"context"
	"errors"
)

var (
	// ErrBlockNotFound is returned when a requested block doesn't exist.
	ErrBlockNotFound = errors.New("block not found")

	// ErrStoreClosed is returned when operations are attempted on a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrInvalidKey is returned for empty keys or keys a backend cannot
	// represent.
	ErrInvalidKey = errors.New("invalid block key")
)

// Store is a durable key/value store for blocks. Implementations must be
// safe for concurrent use. Writes replace any existing block with the same
// key.
type Store interface {
	// WriteBlock durably stores data under key.
	WriteBlock(ctx context.Context, key string, data []byte) error

	// ReadBlock returns the block stored under key, or ErrBlockNotFound.
	ReadBlock(ctx context.Context, key string) ([]byte, error)

	// DeleteBlock removes the block. Deleting a missing block is not an error.
	DeleteBlock(ctx context.Context, key string) error

	// ListByPrefix returns the sorted keys starting with prefix.
	ListByPrefix(ctx context.Context, prefix string) ([]string, error)

	// HealthCheck returns nil if the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases resources. Later calls return ErrStoreClosed.
	Close() error
}

// ValidateKey rejects empty keys and keys with NUL bytes.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	for i := 0; i < len(key); i++ {
		if key[i] == 0 {
			return ErrInvalidKey
		}
	}
	return nil
}
