package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestConfigFile(t *testing.T, cfg *Configuration) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}
	return path
}

func TestYAMLConfigSource_GetString(t *testing.T) {
	cfg := NewDefault()
	cfg.ImageCache.InfoCache = "filesystem"
	cfg.ImageCache.FilesystemCachePathname = "/tmp/cache-root"
	path := writeTestConfigFile(t, cfg)

	src, err := NewYAMLConfigSource(path, 0)
	if err != nil {
		t.Fatalf("NewYAMLConfigSource() error = %v", err)
	}
	defer src.Close()

	if got := src.GetString("info_cache"); got != "filesystem" {
		t.Errorf("GetString(info_cache) = %q, want %q", got, "filesystem")
	}
	if got := src.GetString("filesystem_cache_pathname"); got != "/tmp/cache-root" {
		t.Errorf("GetString(filesystem_cache_pathname) = %q, want %q", got, "/tmp/cache-root")
	}
	if got := src.GetString("unknown_key"); got != "" {
		t.Errorf("GetString(unknown_key) = %q, want empty", got)
	}
}

func TestYAMLConfigSource_GetInt64_ParsesHumanSize(t *testing.T) {
	cfg := NewDefault()
	cfg.ImageCache.HeapCacheTargetSize = "256M"
	path := writeTestConfigFile(t, cfg)

	src, err := NewYAMLConfigSource(path, 0)
	if err != nil {
		t.Fatalf("NewYAMLConfigSource() error = %v", err)
	}
	defer src.Close()

	want := int64(256 * 1024 * 1024)
	if got := src.GetInt64("heapcache_target_size"); got != want {
		t.Errorf("GetInt64(heapcache_target_size) = %d, want %d", got, want)
	}
}

func TestYAMLConfigSource_GetBool_GetInt_GetDuration(t *testing.T) {
	cfg := NewDefault()
	cfg.ImageCache.VariantCacheEnabled = false
	cfg.ImageCache.FilesystemCacheDirectoryDepth = 4
	cfg.ImageCache.CacheWorkerInterval = 90 * time.Second
	path := writeTestConfigFile(t, cfg)

	src, err := NewYAMLConfigSource(path, 0)
	if err != nil {
		t.Fatalf("NewYAMLConfigSource() error = %v", err)
	}
	defer src.Close()

	if src.GetBool("variant_cache_enabled") {
		t.Error("GetBool(variant_cache_enabled) = true, want false")
	}
	if got := src.GetInt("filesystem_cache_directory_depth"); got != 4 {
		t.Errorf("GetInt(filesystem_cache_directory_depth) = %d, want 4", got)
	}
	if got := src.GetDuration("cache_worker_interval"); got != 90*time.Second {
		t.Errorf("GetDuration(cache_worker_interval) = %v, want 90s", got)
	}
}

func TestYAMLConfigSource_WatchFiresOnReload(t *testing.T) {
	cfg := NewDefault()
	cfg.ImageCache.InfoCache = "filesystem"
	path := writeTestConfigFile(t, cfg)

	src, err := NewYAMLConfigSource(path, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewYAMLConfigSource() error = %v", err)
	}
	defer src.Close()

	fired := make(chan struct{}, 1)
	src.Watch("info_cache", func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	// Ensure the new file's mtime strictly advances past the first stat.
	time.Sleep(20 * time.Millisecond)
	cfg.ImageCache.InfoCache = "heap"
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("watch callback did not fire after config reload")
	}

	if got := src.GetString("info_cache"); got != "heap" {
		t.Errorf("GetString(info_cache) after reload = %q, want %q", got, "heap")
	}
}

func TestYAMLConfigSource_InvalidFile(t *testing.T) {
	if _, err := NewYAMLConfigSource(filepath.Join(t.TempDir(), "missing.yaml"), 0); err == nil {
		t.Error("NewYAMLConfigSource() with missing file, want error")
	}
}

func TestYAMLConfigSource_RejectsInvalidReload(t *testing.T) {
	cfg := NewDefault()
	path := writeTestConfigFile(t, cfg)

	src, err := NewYAMLConfigSource(path, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewYAMLConfigSource() error = %v", err)
	}
	defer src.Close()

	time.Sleep(20 * time.Millisecond)
	if err := os.WriteFile(path, []byte("global:\n  max_concurrency: not-a-number\n  metrics_port: 1\n  health_port: 1\nperformance:\n  max_concurrency: -1\n"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if got := src.GetString("info_cache"); got != cfg.ImageCache.InfoCache {
		t.Errorf("config source applied an invalid reload: GetString(info_cache) = %q", got)
	}
}
