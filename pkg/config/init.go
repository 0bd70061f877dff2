package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# dittocache Configuration File
#
# Every setting can be overridden from the environment with the
# DITTOCACHE_ prefix, e.g. DITTOCACHE_TRACKER_MAX_SIZE=256Mi.
#
# tracker.max_size bounds the bytes buffered across all caches. When an
# admission would exceed it, an urgent flush evicts least recently used
# blocks to their backends.
#
# Backend types: memory, filesystem, s3, badger.

`

// InitConfig writes a sample configuration to the default location and
// returns its path. An existing file is kept unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	data, err := sampleConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// sampleConfig renders the defaults with a filesystem cache next to the
// default memory one, so both shapes are visible to the user.
func sampleConfig() ([]byte, error) {
	cfg := GetDefaultConfig()
	cfg.Caches = append(cfg.Caches, CacheConfig{
		Name: "disk",
		Backend: BackendConfig{
			Type:       BackendFilesystem,
			Filesystem: FilesystemBackendConfig{Path: filepath.Join(GetConfigDir(), "blocks")},
		},
	})

	var buf bytes.Buffer
	buf.WriteString(configHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to marshal sample config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to marshal sample config: %w", err)
	}
	return buf.Bytes(), nil
}
