// Package storetest provides a conformance suite for block.Store
// implementations.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittocache/pkg/store/block"
)

// Suite tests the block.Store contract, not implementation details.
//
// Usage:
//
//	func TestStore(t *testing.T) {
//	    suite := &storetest.Suite{
//	        NewStore: func(t *testing.T) block.Store { return memory.New() },
//	    }
//	    suite.Run(t)
//	}
type Suite struct {
	// NewStore creates a fresh, empty store for each test.
	NewStore func(t *testing.T) block.Store
}

// Run executes all tests in the suite.
func (s *Suite) Run(t *testing.T) {
	t.Run("WriteAndRead", s.testWriteAndRead)
	t.Run("Overwrite", s.testOverwrite)
	t.Run("ReadNotFound", s.testReadNotFound)
	t.Run("Delete", s.testDelete)
	t.Run("ListByPrefix", s.testListByPrefix)
	t.Run("InvalidKey", s.testInvalidKey)
	t.Run("HealthCheck", s.testHealthCheck)
	t.Run("Closed", s.testClosed)
	t.Run("Concurrent", s.testConcurrent)
}

func (s *Suite) open(t *testing.T) block.Store {
	t.Helper()
	st := s.NewStore(t)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func (s *Suite) testWriteAndRead(t *testing.T) {
	ctx := context.Background()
	st := s.open(t)

	data := []byte("hello world")
	require.NoError(t, st.WriteBlock(ctx, "cache1/block-0", data))

	got, err := st.ReadBlock(ctx, "cache1/block-0")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// The store keeps its own copy.
	data[0] = 'X'
	got, err = st.ReadBlock(ctx, "cache1/block-0")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))

	require.NoError(t, st.WriteBlock(ctx, "cache1/empty", nil))
	got, err = st.ReadBlock(ctx, "cache1/empty")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func (s *Suite) testOverwrite(t *testing.T) {
	ctx := context.Background()
	st := s.open(t)

	require.NoError(t, st.WriteBlock(ctx, "k", []byte("first")))
	require.NoError(t, st.WriteBlock(ctx, "k", []byte("second")))

	got, err := st.ReadBlock(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func (s *Suite) testReadNotFound(t *testing.T) {
	st := s.open(t)

	_, err := st.ReadBlock(context.Background(), "missing")
	assert.ErrorIs(t, err, block.ErrBlockNotFound)
}

func (s *Suite) testDelete(t *testing.T) {
	ctx := context.Background()
	st := s.open(t)

	require.NoError(t, st.WriteBlock(ctx, "k", []byte("v")))
	require.NoError(t, st.DeleteBlock(ctx, "k"))

	_, err := st.ReadBlock(ctx, "k")
	assert.ErrorIs(t, err, block.ErrBlockNotFound)

	assert.NoError(t, st.DeleteBlock(ctx, "k"), "deleting a missing block")
}

func (s *Suite) testListByPrefix(t *testing.T) {
	ctx := context.Background()
	st := s.open(t)

	for _, key := range []string{"a/2", "a/1", "a/sub/3", "b/1"} {
		require.NoError(t, st.WriteBlock(ctx, key, []byte(key)))
	}

	keys, err := st.ListByPrefix(ctx, "a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1", "a/2", "a/sub/3"}, keys)

	keys, err = st.ListByPrefix(ctx, "")
	require.NoError(t, err)
	assert.Len(t, keys, 4)

	keys, err = st.ListByPrefix(ctx, "none/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func (s *Suite) testInvalidKey(t *testing.T) {
	st := s.open(t)

	err := st.WriteBlock(context.Background(), "", []byte("v"))
	assert.ErrorIs(t, err, block.ErrInvalidKey)
}

func (s *Suite) testHealthCheck(t *testing.T) {
	st := s.open(t)
	assert.NoError(t, st.HealthCheck(context.Background()))
}

func (s *Suite) testClosed(t *testing.T) {
	ctx := context.Background()
	st := s.NewStore(t)
	require.NoError(t, st.Close())

	assert.ErrorIs(t, st.WriteBlock(ctx, "k", []byte("v")), block.ErrStoreClosed)
	_, err := st.ReadBlock(ctx, "k")
	assert.ErrorIs(t, err, block.ErrStoreClosed)
	assert.ErrorIs(t, st.DeleteBlock(ctx, "k"), block.ErrStoreClosed)
	_, err = st.ListByPrefix(ctx, "")
	assert.ErrorIs(t, err, block.ErrStoreClosed)
	assert.ErrorIs(t, st.HealthCheck(ctx), block.ErrStoreClosed)
}

func (s *Suite) testConcurrent(t *testing.T) {
	ctx := context.Background()
	st := s.open(t)

	const workers = 8
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				key := fmt.Sprintf("w%d/%02d", w, i)
				assert.NoError(t, st.WriteBlock(ctx, key, []byte(key)))
				got, err := st.ReadBlock(ctx, key)
				if assert.NoError(t, err) {
					assert.Equal(t, key, string(got))
				}
			}
		}(w)
	}
	wg.Wait()

	keys, err := st.ListByPrefix(ctx, "")
	require.NoError(t, err)
	assert.Len(t, keys, workers*20)
}
