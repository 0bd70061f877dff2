package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittocache/pkg/store/block"
	"github.com/marmos91/dittocache/pkg/store/block/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	return s
}

func TestStoreConformance(t *testing.T) {
	suite := &storetest.Suite{
		NewStore: func(t *testing.T) block.Store { return newTestStore(t) },
	}
	suite.Run(t)
}

func TestNewRequiresBasePath(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNewRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := New(Config{BasePath: path})
	assert.Error(t, err)
}

func TestBlocksAreFilesBelowBase(t *testing.T) {
	dir := t.TempDir()
	s, err := New(DefaultConfig(dir))
	require.NoError(t, err)

	require.NoError(t, s.WriteBlock(context.Background(), "cache1/block-7", []byte("data")))

	data, err := os.ReadFile(filepath.Join(dir, "cache1", "block-7"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	_, err = os.Stat(filepath.Join(dir, "cache1", "block-7"+tmpSuffix))
	assert.True(t, os.IsNotExist(err), "temporary file left behind")
}

func TestKeysCannotEscapeBase(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"../outside", "a/../../outside", "/abs", "x.tmp"} {
		err := s.WriteBlock(ctx, key, []byte("v"))
		assert.ErrorIs(t, err, block.ErrInvalidKey, key)
	}
}

func TestListIgnoresTemporaryFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := New(DefaultConfig(dir))
	require.NoError(t, err)

	require.NoError(t, s.WriteBlock(context.Background(), "a", []byte("v")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b"+tmpSuffix), []byte("partial"), 0o644))

	keys, err := s.ListByPrefix(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)
}
