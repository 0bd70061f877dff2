package tracker

import (
	"context"
	"fmt"

	"github.com/marmos91/dittocache/internal/logger"
	"github.com/marmos91/dittocache/internal/telemetry"
)

// Store is a write-back cache whose buffered bytes are accounted by the
// Tracker. Implementations must be safe for concurrent use and comparable
// (pointer types), since the registry identifies stores by equality.
type Store interface {
	// Size returns the bytes currently buffered. It must not block.
	Size() int64

	// EvictOneBlock flushes the least recently used block to durable
	// storage, drops it from memory and returns its size. An empty store
	// returns 0 and a nil error. It may block on I/O.
	EvictOneBlock(ctx context.Context) (int64, error)
}

// Register adds s to the set of stores drained by future sweeps.
// Registering a store twice has no effect.
func (t *Tracker) Register(s Store) {
	t.regMu.Lock()
	for _, existing := range t.stores {
		if existing == s {
			t.regMu.Unlock()
			return
		}
	}
	next := make([]Store, len(t.stores), len(t.stores)+1)
	copy(next, t.stores)
	next = append(next, s)
	t.stores = next
	n := len(next)
	t.regMu.Unlock()

	t.recordStores(n)
	logger.Debug("Store registered", logger.KeyStores, n)
}

// Unregister drains s completely, subtracting every flushed block from the
// ledger, then removes it from the registry. It blocks until the store is
// empty. On error the store stays registered and the bytes flushed so far
// remain subtracted.
//
// Unregister may run concurrently with a sweep that still holds s in its
// snapshot; the store's own eviction locking keeps every block counted once.
func (t *Tracker) Unregister(ctx context.Context, s Store) error {
	ctx, span := telemetry.StartTrackerSpan(ctx, telemetry.SpanUnregister)
	defer span.End()

	var freed int64
	evictions := 0
	for s.Size() > 0 {
		if err := ctx.Err(); err != nil {
			telemetry.RecordError(ctx, err)
			return fmt.Errorf("drain store: %w", err)
		}

		n, err := s.EvictOneBlock(ctx)
		if err != nil {
			telemetry.RecordError(ctx, err)
			return fmt.Errorf("drain store: %w", err)
		}
		if n <= 0 {
			// A concurrent sweep may have taken the last block.
			if s.Size() == 0 {
				break
			}
			telemetry.RecordError(ctx, ErrNoProgress)
			return ErrNoProgress
		}

		freed += n
		evictions++
		t.noteEvictions(1, n)
		t.subtract(n, "unregister")
	}

	remaining := t.remove(s)
	telemetry.SetAttributes(ctx, telemetry.FreedBytes(freed), telemetry.Evictions(evictions))
	logger.DebugCtx(ctx, "Store unregistered",
		logger.Freed(freed), logger.KeyEvictions, evictions, logger.KeyStores, remaining)
	return nil
}

func (t *Tracker) remove(s Store) int {
	t.regMu.Lock()
	next := make([]Store, 0, len(t.stores))
	for _, existing := range t.stores {
		if existing != s {
			next = append(next, existing)
		}
	}
	t.stores = next
	n := len(next)
	t.regMu.Unlock()

	t.recordStores(n)
	return n
}

// snapshot returns the registered stores in registration order. The slice
// must not be modified.
func (t *Tracker) snapshot() []Store {
	t.regMu.Lock()
	defer t.regMu.Unlock()
	return t.stores
}

// Stores returns a copy of the registered stores.
func (t *Tracker) Stores() []Store {
	s := t.snapshot()
	out := make([]Store, len(s))
	copy(out, s)
	return out
}

func (t *Tracker) noteEvictions(n int, freed int64) {
	t.mu.Lock()
	t.counters.evictions += uint64(n)
	t.counters.flushedBytes += uint64(freed)
	t.mu.Unlock()
}
