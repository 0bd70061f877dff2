package config

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/marmos91/dittocache/pkg/store/block"
	blockbadger "github.com/marmos91/dittocache/pkg/store/block/badger"
	blockfs "github.com/marmos91/dittocache/pkg/store/block/fs"
	blockmemory "github.com/marmos91/dittocache/pkg/store/block/memory"
)

func TestCreateBackend(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name  string
		cfg   BackendConfig
		check func(block.Store) bool
	}{
		{
			name: "memory",
			cfg:  BackendConfig{Type: BackendMemory},
			check: func(s block.Store) bool {
				_, ok := s.(*blockmemory.Store)
				return ok
			},
		},
		{
			name: "filesystem",
			cfg: BackendConfig{
				Type:       BackendFilesystem,
				Filesystem: FilesystemBackendConfig{Path: filepath.Join(tmpDir, "blocks")},
			},
			check: func(s block.Store) bool {
				_, ok := s.(*blockfs.Store)
				return ok
			},
		},
		{
			name: "badger in memory",
			cfg: BackendConfig{
				Type:   BackendBadger,
				Badger: BadgerBackendConfig{InMemory: true},
			},
			check: func(s block.Store) bool {
				_, ok := s.(*blockbadger.Store)
				return ok
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := CreateBackend(context.Background(), tt.cfg, nil)
			if err != nil {
				t.Fatalf("CreateBackend failed: %v", err)
			}
			defer func() { _ = s.Close() }()

			if !tt.check(s) {
				t.Errorf("Unexpected store type %T", s)
			}
			if err := s.HealthCheck(context.Background()); err != nil {
				t.Errorf("HealthCheck failed: %v", err)
			}
		})
	}
}

func TestCreateBackend_UnknownType(t *testing.T) {
	if _, err := CreateBackend(context.Background(), BackendConfig{Type: "tape"}, nil); err == nil {
		t.Fatal("Expected error for unknown backend type")
	}
}

func TestCreateBackend_S3RequiresBucket(t *testing.T) {
	if _, err := CreateBackend(context.Background(), BackendConfig{Type: BackendS3}, nil); err == nil {
		t.Fatal("Expected error for s3 backend without bucket")
	}
}
