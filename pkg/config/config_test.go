package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/dittocache/internal/bytesize"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
// On Windows, backslashes in double-quoted YAML strings are interpreted as
// escape sequences.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, `
logging:
  level: "info"

tracker:
  max_size: 128Mi
  period: 2s

caches:
  - name: disk
    backend:
      type: filesystem
      filesystem:
        path: "`+yamlSafePath(tmpDir)+`/blocks"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected normalized level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Tracker.MaxSize != 128*bytesize.MiB {
		t.Errorf("Expected max_size 128Mi, got %v", cfg.Tracker.MaxSize)
	}
	if cfg.Tracker.Period != 2*time.Second {
		t.Errorf("Expected period 2s, got %v", cfg.Tracker.Period)
	}
	if len(cfg.Caches) != 1 || cfg.Caches[0].Name != "disk" {
		t.Fatalf("Expected one cache named 'disk', got %+v", cfg.Caches)
	}
	if cfg.Caches[0].Backend.Type != BackendFilesystem {
		t.Errorf("Expected filesystem backend, got %q", cfg.Caches[0].Backend.Type)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("Expected API port 8080, got %d", cfg.API.Port)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}

	if len(cfg.Caches) != 1 || cfg.Caches[0].Name != DefaultCacheName {
		t.Errorf("Expected the default cache, got %+v", cfg.Caches)
	}
	if cfg.Tracker.MaxSize != 64*bytesize.MiB {
		t.Errorf("Expected default max_size 64Mi, got %v", cfg.Tracker.MaxSize)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "logging:\n  level: [unclosed\n")

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestLoad_InvalidConfig(t *testing.T) {
	configPath := writeConfig(t, `
caches:
  - name: broken
    backend:
      type: s3
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for s3 backend without bucket")
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("DITTOCACHE_LOGGING_LEVEL", "ERROR")
	t.Setenv("DITTOCACHE_API_PORT", "9091")
	t.Setenv("DITTOCACHE_TRACKER_MAX_SIZE", "256Mi")
	t.Setenv("DITTOCACHE_TRACKER_PERIOD", "750ms")

	configPath := writeConfig(t, `
logging:
  level: "INFO"
tracker:
  max_size: 1Mi
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.API.Port != 9091 {
		t.Errorf("Expected port 9091 from env var, got %d", cfg.API.Port)
	}
	if cfg.Tracker.MaxSize != 256*bytesize.MiB {
		t.Errorf("Expected max_size 256Mi from env var, got %v", cfg.Tracker.MaxSize)
	}
	if cfg.Tracker.Period != 750*time.Millisecond {
		t.Errorf("Expected period 750ms from env var, got %v", cfg.Tracker.Period)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Tracker.MaxSize = 3 * bytesize.GiB
	cfg.Tracker.Period = 42 * time.Second
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Config file was not written: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("Expected mode 0600, got %v", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Saved config does not load: %v", err)
	}
	if loaded.Tracker.MaxSize != 3*bytesize.GiB {
		t.Errorf("Expected max_size 3Gi, got %v", loaded.Tracker.MaxSize)
	}
	if loaded.Tracker.Period != 42*time.Second {
		t.Errorf("Expected period 42s, got %v", loaded.Tracker.Period)
	}
}

func TestMustLoad_MissingFile(t *testing.T) {
	if _, err := MustLoad(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestGetConfigDir(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	if got, want := GetConfigDir(), filepath.Join(tmpDir, "dittocache"); got != want {
		t.Errorf("Expected config dir %q, got %q", want, got)
	}
	if got, want := GetDefaultConfigPath(), filepath.Join(tmpDir, "dittocache", "config.yaml"); got != want {
		t.Errorf("Expected config path %q, got %q", want, got)
	}
	if DefaultConfigExists() {
		t.Error("Expected no config at the default location")
	}
}
