package config

import (
	"context"
	"fmt"

	"github.com/marmos91/dittocache/internal/logger"
	"github.com/marmos91/dittocache/pkg/store/block"
	blockbadger "github.com/marmos91/dittocache/pkg/store/block/badger"
	blockfs "github.com/marmos91/dittocache/pkg/store/block/fs"
	blockmemory "github.com/marmos91/dittocache/pkg/store/block/memory"
	blocks3 "github.com/marmos91/dittocache/pkg/store/block/s3"
)

// CreateBackend creates the block store described by cfg. m may be nil, in
// which case the store is returned uninstrumented.
func CreateBackend(ctx context.Context, cfg BackendConfig, m block.Metrics) (block.Store, error) {
	var (
		s   block.Store
		err error
	)

	switch cfg.Type {
	case BackendMemory:
		s = createMemoryBackend(cfg.Memory)
	case BackendFilesystem:
		s, err = createFilesystemBackend(cfg.Filesystem)
	case BackendS3:
		s, err = createS3Backend(ctx, cfg.S3)
	case BackendBadger:
		s, err = createBadgerBackend(cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown backend type: %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", cfg.Type, err)
	}

	logger.Debug("Block backend created", "type", cfg.Type)
	return block.Instrument(s, cfg.Type, m), nil
}

func createMemoryBackend(cfg MemoryBackendConfig) block.Store {
	var opts []blockmemory.Option
	if cfg.Latency > 0 {
		opts = append(opts, blockmemory.WithLatency(cfg.Latency))
	}
	return blockmemory.New(opts...)
}

func createFilesystemBackend(cfg FilesystemBackendConfig) (block.Store, error) {
	return blockfs.New(blockfs.DefaultConfig(cfg.Path))
}

func createS3Backend(ctx context.Context, cfg S3BackendConfig) (block.Store, error) {
	return blocks3.NewFromConfig(ctx, blocks3.Config{
		Bucket:          cfg.Bucket,
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		KeyPrefix:       cfg.KeyPrefix,
		MaxRetries:      cfg.MaxRetries,
		ForcePathStyle:  cfg.ForcePathStyle,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
	})
}

func createBadgerBackend(cfg BadgerBackendConfig) (block.Store, error) {
	return blockbadger.New(blockbadger.Config{
		Path:       cfg.Path,
		InMemory:   cfg.InMemory,
		SyncWrites: cfg.SyncWrites,
	})
}
