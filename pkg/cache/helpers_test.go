package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittocache/pkg/store/block"
	"github.com/marmos91/dittocache/pkg/store/block/memory"
)

var errBackend = errors.New("backend unavailable")

// ledger is an Admitter with a fixed budget.
type ledger struct {
	mu       sync.Mutex
	max      int64
	size     int64
	released int64
	refuse   bool
}

func (l *ledger) Admit(n int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.refuse || l.size+n > l.max {
		return false
	}
	l.size += n
	return true
}

func (l *ledger) Release(n int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.size -= n
	l.released += n
}

// evicted credits bytes a sweep freed.
func (l *ledger) evicted(n int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.size -= n
}

func (l *ledger) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// flakyStore fails the next `failures` writes, and can block writes until
// released.
type flakyStore struct {
	*memory.Store

	mu       sync.Mutex
	failures int
	gate     chan struct{}
	entered  chan string
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Store: memory.New()}
}

func (s *flakyStore) WriteBlock(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	gate, entered := s.gate, s.entered
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()

	if entered != nil {
		entered <- key
	}
	if gate != nil {
		<-gate
	}
	if fail {
		return errBackend
	}
	return s.Store.WriteBlock(ctx, key, data)
}

func (s *flakyStore) hold() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
	s.entered = make(chan string, 16)
}

func (s *flakyStore) waitEntered(t *testing.T) string {
	t.Helper()
	select {
	case key := <-s.entered:
		return key
	case <-time.After(2 * time.Second):
		t.Fatal("backend write did not start")
		return ""
	}
}

func (s *flakyStore) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.gate)
	s.gate = nil
	s.entered = nil
}

func (s *flakyStore) failNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
}

var _ block.Store = (*flakyStore)(nil)

func newTestCache(t *testing.T, backend block.Store, max int64, opts ...Option) (*Cache, *ledger) {
	t.Helper()
	l := &ledger{max: max}
	c, err := New("test", backend, l, opts...)
	require.NoError(t, err)
	return c, l
}

type recordingMetrics struct {
	mu        sync.Mutex
	writes    map[string]int
	evictions map[bool]int
	bytes     int64
	blocks    int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{writes: map[string]int{}, evictions: map[bool]int{}}
}

func (m *recordingMetrics) ObserveWrite(_, mode string, _ int64, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes[mode]++
}

func (m *recordingMetrics) ObserveEviction(_ string, _ int64, ok bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictions[ok]++
}

func (m *recordingMetrics) RecordBuffered(_ string, bytes int64, blocks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytes, m.blocks = bytes, blocks
}
