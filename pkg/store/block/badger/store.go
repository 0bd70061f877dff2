// Package badger provides a block store on an embedded BadgerDB database.
package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/dittocache/internal/logger"
	"github.com/marmos91/dittocache/pkg/store/block"
)

// keyPrefix namespaces block keys inside the database.
const keyPrefix = "b:"

// Config holds configuration for the BadgerDB block store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps the database in memory only.
	InMemory bool

	// SyncWrites fsyncs every committed write.
	SyncWrites bool
}

// Store is a BadgerDB-backed implementation of block.Store.
type Store struct {
	db     *badgerdb.DB
	mu     sync.RWMutex
	closed bool
}

// New opens (or creates) the database described by cfg.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" && !cfg.InMemory {
		return nil, errors.New("badger path is required")
	}

	opts := badgerdb.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("")
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	logger.Debug("Badger block store opened", logger.KeyStorePath, cfg.Path, "in_memory", cfg.InMemory)
	return &Store{db: db}, nil
}

func dbKey(key string) []byte {
	return []byte(keyPrefix + key)
}

// view runs fn in a read transaction while the store is open.
func (s *Store) view(fn func(txn *badgerdb.Txn) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return block.ErrStoreClosed
	}
	return s.db.View(fn)
}

func (s *Store) update(fn func(txn *badgerdb.Txn) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return block.ErrStoreClosed
	}
	return s.db.Update(fn)
}

func (s *Store) WriteBlock(ctx context.Context, key string, data []byte) error {
	if err := block.ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	value := make([]byte, len(data))
	copy(value, data)

	err := s.update(func(txn *badgerdb.Txn) error {
		return txn.Set(dbKey(key), value)
	})
	if err != nil && !errors.Is(err, block.ErrStoreClosed) {
		return fmt.Errorf("badger set: %w", err)
	}
	return err
}

func (s *Store) ReadBlock(_ context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.view(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(dbKey(key))
		if err != nil {
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				return block.ErrBlockNotFound
			}
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) DeleteBlock(_ context.Context, key string) error {
	return s.update(func(txn *badgerdb.Txn) error {
		return txn.Delete(dbKey(key))
	})
}

func (s *Store) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	err := s.view(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = dbKey(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			k := it.Item().KeyCopy(nil)
			keys = append(keys, string(k[len(keyPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// HealthCheck runs an empty read transaction.
func (s *Store) HealthCheck(context.Context) error {
	return s.view(func(*badgerdb.Txn) error { return nil })
}

// Close closes the database. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var _ block.Store = (*Store)(nil)
