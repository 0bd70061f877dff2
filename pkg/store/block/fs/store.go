// Package fs provides a filesystem-backed block store. Blocks are stored as
// files named by their key below a base directory.
package fs

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/marmos91/dittocache/pkg/store/block"
)

const (
	tmpSuffix    = ".tmp"
	healthPrefix = ".health-"
)

// Config holds configuration for the filesystem block store.
type Config struct {
	// BasePath is the root directory for block storage.
	BasePath string

	// CreateDir creates the base directory if it doesn't exist.
	CreateDir bool

	// DirMode is the permission mode for created directories. Default: 0755
	DirMode os.FileMode

	// FileMode is the permission mode for created files. Default: 0644
	FileMode os.FileMode
}

// DefaultConfig returns the default configuration rooted at basePath.
func DefaultConfig(basePath string) Config {
	return Config{
		BasePath:  basePath,
		CreateDir: true,
		DirMode:   0o755,
		FileMode:  0o644,
	}
}

// Store is a filesystem-backed implementation of block.Store.
type Store struct {
	mu       sync.RWMutex
	basePath string
	dirMode  os.FileMode
	fileMode os.FileMode
	closed   bool
}

// New creates a filesystem block store.
func New(cfg Config) (*Store, error) {
	if cfg.BasePath == "" {
		return nil, errors.New("base path is required")
	}
	if cfg.DirMode == 0 {
		cfg.DirMode = 0o755
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0o644
	}

	if cfg.CreateDir {
		if err := os.MkdirAll(cfg.BasePath, cfg.DirMode); err != nil {
			return nil, fmt.Errorf("create base path: %w", err)
		}
	}

	info, err := os.Stat(cfg.BasePath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("base path %q is not a directory", cfg.BasePath)
	}

	return &Store{
		basePath: cfg.BasePath,
		dirMode:  cfg.DirMode,
		fileMode: cfg.FileMode,
	}, nil
}

// blockPath maps a key to a path below the base directory. Keys that would
// escape it are rejected.
func (s *Store) blockPath(key string) (string, error) {
	if err := block.ValidateKey(key); err != nil {
		return "", err
	}
	if strings.HasSuffix(key, tmpSuffix) {
		return "", block.ErrInvalidKey
	}
	rel := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(rel) || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", block.ErrInvalidKey
	}
	return filepath.Join(s.basePath, rel), nil
}

func (s *Store) WriteBlock(ctx context.Context, key string, data []byte) error {
	path, err := s.blockPath(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return block.ErrStoreClosed
	}

	if err := os.MkdirAll(filepath.Dir(path), s.dirMode); err != nil {
		return err
	}

	// Readers never see a partial block.
	tmpPath := path + tmpSuffix
	if err := os.WriteFile(tmpPath, data, s.fileMode); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func (s *Store) ReadBlock(_ context.Context, key string) ([]byte, error) {
	path, err := s.blockPath(key)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, block.ErrStoreClosed
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, block.ErrBlockNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *Store) DeleteBlock(_ context.Context, key string) error {
	path, err := s.blockPath(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return block.ErrStoreClosed
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, block.ErrStoreClosed
	}

	keys := []string{}
	err := filepath.WalkDir(s.basePath, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, tmpSuffix) || strings.HasPrefix(d.Name(), healthPrefix) {
			return nil
		}

		rel, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.basePath, err)
	}

	sort.Strings(keys)
	return keys, nil
}

// HealthCheck verifies the base directory is still a writable directory.
func (s *Store) HealthCheck(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return block.ErrStoreClosed
	}

	info, err := os.Stat(s.basePath)
	if err != nil {
		return fmt.Errorf("filesystem health check failed: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("filesystem health check failed: %s is not a directory", s.basePath)
	}

	probe, err := os.CreateTemp(s.basePath, healthPrefix+"*")
	if err != nil {
		return fmt.Errorf("filesystem health check failed: %w", err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ block.Store = (*Store)(nil)
