package tracker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scheduledJob is one Schedule call captured by manualScheduler.
type scheduledJob struct {
	delay time.Duration
	job   Job
}

// manualScheduler records jobs and runs them only when the test asks.
type manualScheduler struct {
	mu   sync.Mutex
	jobs []scheduledJob
}

func (s *manualScheduler) Schedule(delay time.Duration, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, scheduledJob{delay: delay, job: job})
}

func (s *manualScheduler) pending() []scheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]scheduledJob, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// runNext pops and runs the oldest job with the given delay.
func (s *manualScheduler) runNext(t *testing.T, delay time.Duration) {
	t.Helper()
	s.mu.Lock()
	idx := -1
	for i, j := range s.jobs {
		if j.delay == delay {
			idx = i
			break
		}
	}
	require.GreaterOrEqual(t, idx, 0, "no job scheduled with delay %s", delay)
	j := s.jobs[idx]
	s.jobs = append(s.jobs[:idx], s.jobs[idx+1:]...)
	s.mu.Unlock()

	j.job.Run(context.Background())
}

// asyncScheduler runs jobs on their own goroutines like the timer-backed
// scheduler, and tracks how many delayed jobs are outstanding.
type asyncScheduler struct {
	wg             sync.WaitGroup
	pendingDelayed atomic.Int32
	maxDelayed     atomic.Int32
}

func (s *asyncScheduler) Schedule(delay time.Duration, job Job) {
	s.wg.Add(1)
	if delay == 0 {
		go func() {
			defer s.wg.Done()
			job.Run(context.Background())
		}()
		return
	}

	n := s.pendingDelayed.Add(1)
	for {
		m := s.maxDelayed.Load()
		if n <= m || s.maxDelayed.CompareAndSwap(m, n) {
			break
		}
	}
	time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.pendingDelayed.Add(-1)
		job.Run(context.Background())
	})
}

// fakeStore is an in-memory Store holding block sizes in LRU order.
type fakeStore struct {
	mu       sync.Mutex
	blocks   []int64
	latency  time.Duration
	failures int   // number of upcoming evictions that fail
	stuck    bool  // report size but free nothing
	evicted  int64 // total bytes flushed
	onEvict  func()

	evictMu     sync.Mutex   // serialises evictions like a real cache
	inFlight    atomic.Int32 // concurrent EvictOneBlock callers
	maxInFlight atomic.Int32
}

var errFlush = errors.New("flush failed")

func newFakeStore(blocks ...int64) *fakeStore {
	return &fakeStore{blocks: blocks}
}

func (s *fakeStore) add(n int64) {
	s.mu.Lock()
	s.blocks = append(s.blocks, n)
	s.mu.Unlock()
}

func (s *fakeStore) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, b := range s.blocks {
		total += b
	}
	return total
}

func (s *fakeStore) EvictOneBlock(ctx context.Context) (int64, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		m := s.maxInFlight.Load()
		if n <= m || s.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	s.evictMu.Lock()
	defer s.evictMu.Unlock()

	if s.onEvict != nil {
		s.onEvict()
	}

	if s.latency > 0 {
		time.Sleep(s.latency)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return 0, errFlush
	}
	if s.stuck || len(s.blocks) == 0 {
		return 0, nil
	}
	b := s.blocks[0]
	s.blocks = s.blocks[1:]
	s.evicted += b
	return b, nil
}

func (s *fakeStore) flushed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evicted
}

// recordingMetrics counts Metrics calls.
type recordingMetrics struct {
	mu        sync.Mutex
	accepted  int
	refused   int
	lastSize  int64
	sweeps    map[string]int
	skipped   map[string]int
	defects   int
	stores    int
	freedSeen int64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{sweeps: map[string]int{}, skipped: map[string]int{}}
}

func (m *recordingMetrics) ObserveAdmission(accepted bool, _ int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if accepted {
		m.accepted++
	} else {
		m.refused++
	}
}

func (m *recordingMetrics) RecordSize(size, _ int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSize = size
}

func (m *recordingMetrics) ObserveSweep(kind string, freed int64, _ int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeps[kind]++
	m.freedSeen += freed
}

func (m *recordingMetrics) RecordStoreSkipped(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped[reason]++
}

func (m *recordingMetrics) RecordAccountingDefect(int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defects++
}

func (m *recordingMetrics) RecordStores(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores = n
}

func newTestTracker(t *testing.T, maxSize int64, period time.Duration, sched Scheduler, opts ...Option) *Tracker {
	t.Helper()
	tr, err := New(Config{MaxSize: maxSize, Period: period}, sched, opts...)
	require.NoError(t, err)
	return tr
}
