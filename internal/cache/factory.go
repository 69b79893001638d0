package cache

import (
	"sync"

	"github.com/objectfs/imagecache/pkg/errors"
)

// Backend identity names recognized by CacheFactory.
const (
	backendFilesystem = "filesystem"
	backendHeap       = "heap"
)

// CacheFactory holds volatile references to the current info backend and
// variant backend, each behind its own mutex, and reinitializes them
// lazily whenever the configuration names a different implementation.
type CacheFactory struct {
	cfg       ConfigSource
	submitter TaskSubmitter
	observers *ObserverRegistry

	infoMu      sync.Mutex
	infoIdent   string
	info        InfoBackend
	heapIndex   *HeapInfoIndex
	heapOnce    sync.Once

	variantMu    sync.Mutex
	variantIdent string
	variant      VariantBackend
}

// NewCacheFactory builds a factory reading from cfg. submitter is passed
// through to any backend that schedules asynchronous work (currently the
// filesystem backend's async deletes).
func NewCacheFactory(cfg ConfigSource, submitter TaskSubmitter, observers *ObserverRegistry) *CacheFactory {
	if observers == nil {
		observers = NewObserverRegistry()
	}
	return &CacheFactory{cfg: cfg, submitter: submitter, observers: observers}
}

// HeapInfoIndex returns the process-lifetime singleton HeapInfoIndex,
// constructing it on first use if heap_info_cache_enabled is true. Returns
// nil if the index is disabled.
func (f *CacheFactory) HeapInfoIndex() *HeapInfoIndex {
	if !f.cfg.GetBool("heap_info_cache_enabled") {
		return nil
	}
	f.heapOnce.Do(func() {
		f.heapIndex = NewHeapInfoIndex()
	})
	return f.heapIndex
}

// InfoBackend resolves the configured info backend, reinitializing it if
// the configuration's identity no longer matches the live instance.
// Returns nil if info_cache_enabled is false.
func (f *CacheFactory) InfoBackend() (InfoBackend, error) {
	if !f.cfg.GetBool("info_cache_enabled") {
		f.infoMu.Lock()
		f.shutdownInfoLocked()
		f.infoMu.Unlock()
		return nil, nil
	}

	ident := f.cfg.GetString("info_cache")

	f.infoMu.Lock()
	defer f.infoMu.Unlock()

	if f.info != nil && f.infoIdent == ident {
		return f.info, nil
	}

	f.shutdownInfoLocked()

	backend, err := f.buildInfoBackend(ident)
	if err != nil {
		return nil, err
	}
	if err := backend.Initialize(); err != nil {
		return nil, err
	}

	f.info = backend
	f.infoIdent = ident
	return f.info, nil
}

func (f *CacheFactory) shutdownInfoLocked() {
	if f.info != nil {
		f.info.Shutdown()
		f.info = nil
		f.infoIdent = ""
	}
}

// VariantBackend resolves the configured variant backend, reinitializing
// it if the configuration's identity no longer matches the live instance.
// Returns nil if variant_cache_enabled is false.
func (f *CacheFactory) VariantBackend() (VariantBackend, error) {
	if !f.cfg.GetBool("variant_cache_enabled") {
		f.variantMu.Lock()
		f.shutdownVariantLocked()
		f.variantMu.Unlock()
		return nil, nil
	}

	ident := f.cfg.GetString("variant_cache")

	f.variantMu.Lock()
	defer f.variantMu.Unlock()

	if f.variant != nil && f.variantIdent == ident {
		return f.variant, nil
	}

	f.shutdownVariantLocked()

	backend, err := f.buildVariantBackend(ident)
	if err != nil {
		return nil, err
	}
	if err := backend.Initialize(); err != nil {
		return nil, err
	}

	f.variant = backend
	f.variantIdent = ident
	return f.variant, nil
}

func (f *CacheFactory) shutdownVariantLocked() {
	if f.variant != nil {
		f.variant.Shutdown()
		f.variant = nil
		f.variantIdent = ""
	}
}

func (f *CacheFactory) buildInfoBackend(ident string) (InfoBackend, error) {
	switch ident {
	case backendFilesystem, "":
		cfg, err := f.filesystemConfig()
		if err != nil {
			return nil, err
		}
		return NewFilesystemBackend(cfg, f.submitter, f.observers), nil
	case backendHeap:
		cfg, err := f.heapConfig()
		if err != nil {
			return nil, err
		}
		return NewHeapBackend(cfg, f.observers), nil
	default:
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "unknown info_cache backend").
			WithComponent("cache-factory").WithOperation("buildInfoBackend").
			WithContext("info_cache", ident)
	}
}

func (f *CacheFactory) buildVariantBackend(ident string) (VariantBackend, error) {
	switch ident {
	case backendFilesystem, "":
		cfg, err := f.filesystemConfig()
		if err != nil {
			return nil, err
		}
		return NewFilesystemBackend(cfg, f.submitter, f.observers), nil
	case backendHeap:
		cfg, err := f.heapConfig()
		if err != nil {
			return nil, err
		}
		return NewHeapBackend(cfg, f.observers), nil
	default:
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "unknown variant_cache backend").
			WithComponent("cache-factory").WithOperation("buildVariantBackend").
			WithContext("variant_cache", ident)
	}
}

func (f *CacheFactory) filesystemConfig() (FilesystemBackendConfig, error) {
	root := f.cfg.GetString("filesystem_cache_pathname")
	if root == "" {
		return FilesystemBackendConfig{}, errors.NewError(errors.ErrCodeInvalidConfig, "filesystem_cache_pathname not set").
			WithComponent("cache-factory").WithOperation("filesystemConfig")
	}
	return FilesystemBackendConfig{
		Root:            root,
		Depth:           f.cfg.GetInt("filesystem_cache_directory_depth"),
		SegmentLength:   f.cfg.GetInt("filesystem_cache_directory_name_length"),
		InfoTTL:         f.cfg.GetDuration("info_cache_ttl"),
		VariantTTL:      f.cfg.GetDuration("variant_cache_ttl"),
		MinCleanableAge: 0,
	}, nil
}

func (f *CacheFactory) heapConfig() (HeapBackendConfig, error) {
	size := f.cfg.GetInt64("heapcache_target_size")
	if size <= 0 {
		return HeapBackendConfig{}, errors.NewError(errors.ErrCodeInvalidConfig, "heapcache_target_size must be a positive size").
			WithComponent("cache-factory").WithOperation("heapConfig")
	}
	return HeapBackendConfig{
		TargetBytes: size,
		InfoTTL:     f.cfg.GetDuration("info_cache_ttl"),
		VariantTTL:  f.cfg.GetDuration("variant_cache_ttl"),
	}, nil
}

// ShutdownAll tears down both backend slots, used on process shutdown.
func (f *CacheFactory) ShutdownAll() {
	f.infoMu.Lock()
	f.shutdownInfoLocked()
	f.infoMu.Unlock()

	f.variantMu.Lock()
	f.shutdownVariantLocked()
	f.variantMu.Unlock()
}
