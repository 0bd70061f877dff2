// Package tracker accounts for the memory buffered by a set of write-back
// caches and decides when those caches must be drained.
//
// Every cache asks the Tracker for permission before buffering a block
// (Admit). Admitted bytes are added to a shared ledger bounded by MaxSize.
// A write that would overflow the ledger is refused, and the caller is
// expected to write it synchronously to durable storage instead.
//
// Draining is performed by sweeps, handed to a Scheduler as Jobs:
//
//   - a routine sweep is armed by the first admission after a flush and runs
//     Period later, so any admitted byte is flushed within Period;
//   - an urgent sweep runs immediately when an admission is refused.
//
// At most one sweep body runs at a time and at most one routine sweep is
// outstanding. A sweep repeatedly asks every registered store to evict and
// flush its least recently used block until the ledger reaches zero or no
// store can make progress.
//
// Admission, registration and the sweep bookkeeping never block: the only
// blocking calls are Store.EvictOneBlock and the drain loop of Unregister,
// and no Tracker lock is held across them.
package tracker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittocache/internal/bytesize"
	"github.com/marmos91/dittocache/internal/logger"
)

var (
	// ErrNilScheduler is returned by New when no Scheduler is supplied.
	ErrNilScheduler = errors.New("tracker: scheduler is required")

	// ErrInvalidMaxSize is returned by New for a non-positive capacity.
	ErrInvalidMaxSize = errors.New("tracker: max size must be positive")

	// ErrInvalidPeriod is returned by New for a non-positive flush period.
	ErrInvalidPeriod = errors.New("tracker: period must be positive")

	// ErrNoProgress is returned by Unregister when a store reports buffered
	// bytes but frees nothing when asked to evict.
	ErrNoProgress = errors.New("tracker: store reported data but freed nothing")
)

// Defaults used by DefaultConfig.
const (
	DefaultMaxSize = int64(64 * bytesize.MiB)
	DefaultPeriod  = 5 * time.Second
)

// Config holds the Tracker parameters.
type Config struct {
	// MaxSize is the capacity of the ledger in bytes.
	MaxSize int64

	// Period bounds how long an admitted block may stay buffered.
	Period time.Duration

	// StrictAccounting turns a negative ledger into a panic instead of a
	// logged clamp. Meant for tests and debug builds.
	StrictAccounting bool
}

// DefaultConfig returns a 64MiB ledger flushed every 5 seconds.
func DefaultConfig() Config {
	return Config{
		MaxSize: DefaultMaxSize,
		Period:  DefaultPeriod,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxSize, c.MaxSize)
	}
	if c.Period <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPeriod, c.Period)
	}
	return nil
}

// Option configures optional Tracker collaborators.
type Option func(*Tracker)

// WithMetrics reports ledger activity to m. A nil m disables metrics.
func WithMetrics(m Metrics) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

// Tracker is the shared memory ledger for a set of write-back stores.
// It is safe for concurrent use.
type Tracker struct {
	maxSize   int64
	period    time.Duration
	strict    bool
	scheduler Scheduler
	metrics   Metrics

	// mu guards the ledger, the scheduling flags and the counters. It is
	// never held across a store or scheduler call.
	mu         sync.Mutex
	size       int64
	queuedJob  bool
	runningJob bool
	counters   counters

	// regMu serialises registry mutations. stores is replaced, never
	// modified in place, so a slice read under regMu is a stable snapshot.
	regMu  sync.Mutex
	stores []Store
}

type counters struct {
	admitted          uint64
	admittedBytes     uint64
	refused           uint64
	routineSweeps     uint64
	urgentSweeps      uint64
	abortedSweeps     uint64
	rearms            uint64
	skippedStores     uint64
	accountingDefects uint64
	evictions         uint64
	flushedBytes      uint64
}

// New creates a Tracker that hands its sweeps to scheduler.
func New(cfg Config, scheduler Scheduler, opts ...Option) (*Tracker, error) {
	if scheduler == nil {
		return nil, ErrNilScheduler
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Tracker{
		maxSize:   cfg.MaxSize,
		period:    cfg.Period,
		strict:    cfg.StrictAccounting,
		scheduler: scheduler,
	}
	for _, opt := range opts {
		opt(t)
	}

	t.recordSize(0)
	return t, nil
}

// MaxSize returns the ledger capacity in bytes.
func (t *Tracker) MaxSize() int64 {
	return t.maxSize
}

// Period returns the routine flush delay.
func (t *Tracker) Period() time.Duration {
	return t.period
}

// Size returns the number of bytes currently accounted as buffered.
func (t *Tracker) Size() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

// Admit reserves blockSize bytes in the ledger.
//
// It returns true when the block may be buffered in memory; the caller then
// owns the reservation until the block is flushed (reported by the store's
// EvictOneBlock) or dropped (Release). It returns false when the ledger would
// overflow; the caller must then write the block synchronously, and an
// urgent sweep is started unless one is already running.
func (t *Tracker) Admit(blockSize int64) bool {
	if blockSize < 0 {
		logger.Warn("Refusing negative block size", logger.BlockSize(blockSize))
		return false
	}

	t.mu.Lock()
	// size <= maxSize, so the subtraction cannot overflow.
	if blockSize > t.maxSize-t.size {
		t.counters.refused++
		size := t.size
		defect := size > 0 && !t.queuedJob && !t.runningJob
		urgent := !t.runningJob
		if urgent {
			t.runningJob = true
		}
		t.mu.Unlock()

		if defect {
			logger.Warn("Buffered data without a pending flush",
				logger.CacheSize(size), logger.CacheMaxSize(t.maxSize))
		}
		logger.Debug("Block refused, cache full",
			logger.BlockSize(blockSize), logger.CacheSize(size),
			logger.CacheMaxSize(t.maxSize), logger.KeyRunning, !urgent)

		t.observeAdmission(false, blockSize)
		if urgent {
			t.scheduler.Schedule(0, urgentFlush{t: t})
		}
		return false
	}

	t.size += blockSize
	t.counters.admitted++
	t.counters.admittedBytes += uint64(blockSize)
	size := t.size
	arm := !t.queuedJob
	if arm {
		t.queuedJob = true
	}
	t.mu.Unlock()

	t.observeAdmission(true, blockSize)
	t.recordSize(size)
	if arm {
		t.scheduler.Schedule(t.period, routineFlush{t: t})
	}
	return true
}

// Release returns n previously admitted bytes to the ledger without a
// flush, for blocks that were dropped or replaced while still buffered.
func (t *Tracker) Release(n int64) {
	if n <= 0 {
		return
	}
	t.subtract(n, "release")
}

// subtract removes n bytes from the ledger and returns the new size. A
// negative result is an accounting defect: it is clamped to zero.
func (t *Tracker) subtract(n int64, source string) int64 {
	t.mu.Lock()
	t.size -= n
	if t.size >= 0 {
		size := t.size
		t.mu.Unlock()
		t.recordSize(size)
		return size
	}

	deficit := -t.size
	t.size = 0
	t.counters.accountingDefects++
	t.mu.Unlock()

	logger.Error("Memory ledger went negative, clamping to zero",
		logger.KeyOperation, source, "deficit", deficit)
	t.recordDefect(deficit)
	t.recordSize(0)
	if t.strict {
		panic(fmt.Sprintf("tracker: ledger negative by %d bytes after %s", deficit, source))
	}
	return 0
}

// Stats is a point-in-time view of the Tracker.
type Stats struct {
	Size              int64         `json:"size"`
	MaxSize           int64         `json:"max_size"`
	Period            time.Duration `json:"period"`
	Queued            bool          `json:"queued"`
	Running           bool          `json:"running"`
	Stores            int           `json:"stores"`
	Admitted          uint64        `json:"admitted"`
	AdmittedBytes     uint64        `json:"admitted_bytes"`
	Refused           uint64        `json:"refused"`
	RoutineSweeps     uint64        `json:"routine_sweeps"`
	UrgentSweeps      uint64        `json:"urgent_sweeps"`
	AbortedSweeps     uint64        `json:"aborted_sweeps"`
	Rearms            uint64        `json:"rearms"`
	SkippedStores     uint64        `json:"skipped_stores"`
	AccountingDefects uint64        `json:"accounting_defects"`
	Evictions         uint64        `json:"evictions"`
	FlushedBytes      uint64        `json:"flushed_bytes"`
}

// Stats returns a consistent snapshot of the ledger, flags and counters.
func (t *Tracker) Stats() Stats {
	stores := len(t.snapshot())

	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.counters
	return Stats{
		Size:              t.size,
		MaxSize:           t.maxSize,
		Period:            t.period,
		Queued:            t.queuedJob,
		Running:           t.runningJob,
		Stores:            stores,
		Admitted:          c.admitted,
		AdmittedBytes:     c.admittedBytes,
		Refused:           c.refused,
		RoutineSweeps:     c.routineSweeps,
		UrgentSweeps:      c.urgentSweeps,
		AbortedSweeps:     c.abortedSweeps,
		Rearms:            c.rearms,
		SkippedStores:     c.skippedStores,
		AccountingDefects: c.accountingDefects,
		Evictions:         c.evictions,
		FlushedBytes:      c.flushedBytes,
	}
}
