// Package memory provides an in-memory block store, used in tests, benchmarks
// and as a volatile backend.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/dittocache/pkg/store/block"
)

// Store is an in-memory implementation of block.Store.
type Store struct {
	mu      sync.RWMutex
	blocks  map[string][]byte
	closed  bool
	latency time.Duration
	writes  uint64
}

// Option configures a Store.
type Option func(*Store)

// WithLatency delays every write by d, simulating a slow disk or network.
func WithLatency(d time.Duration) Option {
	return func(s *Store) {
		s.latency = d
	}
}

// New creates a new in-memory block store.
func New(opts ...Option) *Store {
	s := &Store{blocks: make(map[string][]byte)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) WriteBlock(ctx context.Context, key string, data []byte) error {
	if err := block.ValidateKey(key); err != nil {
		return err
	}
	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	copied := make([]byte, len(data))
	copy(copied, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return block.ErrStoreClosed
	}
	s.blocks[key] = copied
	s.writes++
	return nil
}

func (s *Store) ReadBlock(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, block.ErrStoreClosed
	}

	data, ok := s.blocks[key]
	if !ok {
		return nil, block.ErrBlockNotFound
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, nil
}

func (s *Store) DeleteBlock(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return block.ErrStoreClosed
	}
	delete(s.blocks, key)
	return nil
}

func (s *Store) ListByPrefix(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, block.ErrStoreClosed
	}

	keys := []string{}
	for key := range s.blocks {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) HealthCheck(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return block.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.blocks = nil
	return nil
}

// BlockCount returns the number of stored blocks.
func (s *Store) BlockCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks)
}

// TotalSize returns the number of stored bytes.
func (s *Store) TotalSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, data := range s.blocks {
		total += int64(len(data))
	}
	return total
}

// Writes returns the number of successful writes.
func (s *Store) Writes() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

var _ block.Store = (*Store)(nil)
