package config

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/objectfs/imagecache/pkg/utils"
)

// YAMLConfigSource adapts a YAML-backed Configuration to a narrow
// key/value configuration source with live reload. It implements the
// cache package's ConfigSource interface structurally, without either
// package importing the other.
type YAMLConfigSource struct {
	mu       sync.RWMutex
	path     string
	cfg      *Configuration
	modTime  time.Time
	logger   *slog.Logger
	watchers []func()
	stopCh   chan struct{}
	stopped  chan struct{}
}

// NewYAMLConfigSource loads cfg from path and starts a background poller
// that reloads the file and fires registered watch callbacks whenever its
// modification time advances. pollInterval <= 0 disables the poller.
func NewYAMLConfigSource(path string, pollInterval time.Duration) (*YAMLConfigSource, error) {
	cfg := NewDefault()
	if err := cfg.LoadFromFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var modTime time.Time
	if info, err := os.Stat(path); err == nil {
		modTime = info.ModTime()
	}

	s := &YAMLConfigSource{
		path:    path,
		cfg:     cfg,
		modTime: modTime,
		logger:  slog.Default().With("component", "config-source"),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}

	if pollInterval > 0 {
		go s.poll(pollInterval)
	} else {
		close(s.stopped)
	}

	return s, nil
}

// Close stops the background poller.
func (s *YAMLConfigSource) Close() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	<-s.stopped
}

func (s *YAMLConfigSource) poll(interval time.Duration) {
	defer close(s.stopped)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.reloadIfChanged()
		}
	}
}

func (s *YAMLConfigSource) reloadIfChanged() {
	info, err := os.Stat(s.path)
	if err != nil {
		s.logger.Warn("config stat failed", "path", s.path, "err", err)
		return
	}

	s.mu.RLock()
	unchanged := !info.ModTime().After(s.modTime)
	s.mu.RUnlock()
	if unchanged {
		return
	}

	next := NewDefault()
	if err := next.LoadFromFile(s.path); err != nil {
		s.logger.Warn("config reload failed", "path", s.path, "err", err)
		return
	}
	if err := next.Validate(); err != nil {
		s.logger.Warn("reloaded config failed validation, keeping previous", "path", s.path, "err", err)
		return
	}

	s.mu.Lock()
	s.cfg = next
	s.modTime = info.ModTime()
	callbacks := append([]func(){}, s.watchers...)
	s.mu.Unlock()

	s.logger.Info("config reloaded", "path", s.path)
	for _, cb := range callbacks {
		cb()
	}
}

// Watch registers a callback fired after any successful reload. The key
// argument is accepted for interface symmetry with ConfigSource but every
// watcher is notified on every reload, since a single file backs the
// whole Configuration.
func (s *YAMLConfigSource) Watch(key string, callback func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, callback)
}

// GetString returns the string value for key, or "" if key is unknown.
func (s *YAMLConfigSource) GetString(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ic := s.cfg.ImageCache

	switch key {
	case "info_cache":
		return ic.InfoCache
	case "variant_cache":
		return ic.VariantCache
	case "heapcache_target_size":
		return ic.HeapCacheTargetSize
	case "filesystem_cache_pathname":
		return ic.FilesystemCachePathname
	default:
		return ""
	}
}

// GetInt returns the int value for key, or 0 if key is unknown.
func (s *YAMLConfigSource) GetInt(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ic := s.cfg.ImageCache

	switch key {
	case "filesystem_cache_directory_depth":
		return ic.FilesystemCacheDirectoryDepth
	case "filesystem_cache_directory_name_length":
		return ic.FilesystemCacheDirectoryNameLength
	default:
		return 0
	}
}

// GetInt64 returns the int64 value for key, parsing human-readable sizes
// where applicable (e.g. heapcache_target_size).
func (s *YAMLConfigSource) GetInt64(key string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ic := s.cfg.ImageCache

	switch key {
	case "heapcache_target_size":
		size, err := utils.ParseBytes(ic.HeapCacheTargetSize)
		if err != nil {
			return 0
		}
		return size
	default:
		return 0
	}
}

// GetBool returns the bool value for key, or false if key is unknown.
func (s *YAMLConfigSource) GetBool(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ic := s.cfg.ImageCache

	switch key {
	case "info_cache_enabled":
		return ic.InfoCacheEnabled
	case "variant_cache_enabled":
		return ic.VariantCacheEnabled
	case "heap_info_cache_enabled":
		return ic.HeapInfoCacheEnabled
	default:
		return false
	}
}

// GetDuration returns the time.Duration value for key, or 0 if key is
// unknown. The TTL fields of ImageCacheConfig are time.Duration values; in
// the YAML file they are written as Go duration strings such as "90s", and a
// bare integer is read as nanoseconds.
func (s *YAMLConfigSource) GetDuration(key string) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ic := s.cfg.ImageCache

	switch key {
	case "info_cache_ttl":
		return ic.InfoCacheTTL
	case "variant_cache_ttl":
		return ic.VariantCacheTTL
	case "cache_worker_interval":
		return ic.CacheWorkerInterval
	default:
		return 0
	}
}
