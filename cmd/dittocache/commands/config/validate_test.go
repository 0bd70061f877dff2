package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marmos91/dittocache/internal/bytesize"
	"github.com/marmos91/dittocache/pkg/config"
)

func TestConfigWarnings(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Tracker.Period = 0
	cfg.Tracker.MaxSize = 1 * bytesize.MiB
	cfg.Caches = append(cfg.Caches, config.CacheConfig{
		Name: "disk",
		Backend: config.BackendConfig{
			Type:       config.BackendFilesystem,
			Filesystem: config.FilesystemBackendConfig{Path: "/var/lib/dittocache"},
		},
	})

	warnings := strings.Join(configWarnings(cfg), "\n")
	assert.Contains(t, warnings, "tracker.period is 0")
	assert.Contains(t, warnings, `cache "default" uses the memory backend`)
	assert.NotContains(t, warnings, `"disk"`)
	assert.Contains(t, warnings, "api.max_block_size exceeds tracker.max_size")
}

func TestConfigWarningsCleanConfig(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Caches = []config.CacheConfig{{
		Name: "s3",
		Backend: config.BackendConfig{
			Type: config.BackendS3,
			S3:   config.S3BackendConfig{Bucket: "blocks"},
		},
	}}

	assert.Empty(t, configWarnings(cfg))
}
