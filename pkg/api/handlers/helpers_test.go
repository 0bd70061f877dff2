package handlers

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittocache/pkg/cache"
	"github.com/marmos91/dittocache/pkg/store/block/memory"
	"github.com/marmos91/dittocache/pkg/tracker"
)

// budget is an Admitter with a fixed number of bytes.
type budget struct {
	mu   sync.Mutex
	max  int64
	used int64
}

func (b *budget) Admit(n int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used+n > b.max {
		return false
	}
	b.used += n
	return true
}

func (b *budget) Release(n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used -= n
}

type fakeRuntime struct {
	caches []*cache.Cache
	stats  tracker.Stats
}

func (f *fakeRuntime) Status() Status {
	st := Status{Tracker: f.stats}
	for _, c := range f.caches {
		st.Caches = append(st.Caches, CacheStatus{Name: c.Name(), Backend: "memory", Size: c.Size(), Blocks: c.Len()})
	}
	return st
}

func (f *fakeRuntime) Caches() []*cache.Cache { return f.caches }

func (f *fakeRuntime) Cache(name string) (*cache.Cache, bool) {
	for _, c := range f.caches {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

func newMemoryCache(t *testing.T, name string, capacity int64) (*cache.Cache, *memory.Store) {
	t.Helper()
	backend := memory.New()
	c, err := cache.New(name, backend, &budget{max: capacity})
	require.NoError(t, err)
	return c, backend
}
