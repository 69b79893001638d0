package cache

import (
	"bytes"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/objectfs/imagecache/pkg/errors"
)

// heapSweepInterval is how often the background sweep recomputes and
// enforces the target byte budget.
const heapSweepInterval = 10 * time.Second

// HeapBackend is a single process-wide cache storing both infos and
// variants as byte blobs, LRU-evicted by size and TTL. It implements both
// InfoBackend and VariantBackend.
type HeapBackend struct {
	targetBytes int64
	infoTTL     time.Duration
	variantTTL  time.Duration
	logger      *slog.Logger
	observers   *ObserverRegistry

	mu           sync.RWMutex
	entries      map[cacheKey]*cacheEntry
	totalBytes   int64
	sweepMu      sync.Mutex
	beingWritten map[cacheKey]struct{}

	stopCh  chan struct{}
	stopped chan struct{}
}

// HeapBackendConfig configures a HeapBackend.
type HeapBackendConfig struct {
	TargetBytes int64
	InfoTTL     time.Duration
	VariantTTL  time.Duration
}

// NewHeapBackend constructs a HeapBackend. Call Initialize to start its
// background sweep before use.
func NewHeapBackend(cfg HeapBackendConfig, observers *ObserverRegistry) *HeapBackend {
	if observers == nil {
		observers = NewObserverRegistry()
	}
	return &HeapBackend{
		targetBytes:  cfg.TargetBytes,
		infoTTL:      cfg.InfoTTL,
		variantTTL:   cfg.VariantTTL,
		logger:       slog.Default().With("component", "heap-backend"),
		observers:    observers,
		entries:      make(map[cacheKey]*cacheEntry),
		beingWritten: make(map[cacheKey]struct{}),
	}
}

// Initialize launches the cooperative background sweep task.
func (h *HeapBackend) Initialize() error {
	h.stopCh = make(chan struct{})
	h.stopped = make(chan struct{})
	go h.sweepLoop()
	return nil
}

// Shutdown cooperatively stops the background sweep task.
func (h *HeapBackend) Shutdown() {
	if h.stopCh == nil {
		return
	}
	select {
	case <-h.stopCh:
	default:
		close(h.stopCh)
	}
	<-h.stopped
}

func (h *HeapBackend) sweepLoop() {
	defer close(h.stopped)

	ticker := time.NewTicker(heapSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.evictExcess()
		}
	}
}

// FetchInfo decodes bytes from the entry under key {id}, updating its
// last-accessed time. Missing or expired entries return absent.
func (h *HeapBackend) FetchInfo(id Identifier) (Info, bool) {
	key := infoKey(id)

	h.mu.Lock()
	entry, ok := h.entries[key]
	if !ok {
		h.mu.Unlock()
		return Info{}, false
	}
	if h.isExpired(entry) {
		delete(h.entries, key)
		h.totalBytes -= int64(len(entry.data))
		h.mu.Unlock()
		return Info{}, false
	}
	entry.lastAccessed = time.Now()
	h.mu.Unlock()

	info, err := InfoFromJSON(entry.data)
	if err != nil {
		h.logger.Warn("corrupt info entry", "identifier", id, "err", err)
		return Info{}, false
	}
	if info.SerializedAt == nil {
		t := entry.lastModified
		info.SerializedAt = &t
	}
	return info, true
}

// Put stores the info's serialized bytes under key {id}, overwriting any
// prior value.
func (h *HeapBackend) Put(id Identifier, info Info) error {
	data, err := info.ToJSON()
	if err != nil {
		return errors.NewError(errors.ErrCodeStorageWrite, "encode info").
			WithComponent("heap-backend").WithOperation("Put").WithCause(err)
	}

	key := infoKey(id)
	now := time.Now()

	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.entries[key]; ok {
		h.totalBytes -= int64(len(old.data))
	}
	h.entries[key] = &cacheEntry{data: data, lastModified: now, lastAccessed: now, kind: kindInfo}
	h.totalBytes += int64(len(data))
	return nil
}

// NewVariantInputStream returns a reader over the bytes stored for ol, if
// present and valid, filling stat.LastModified and updating last-accessed.
func (h *HeapBackend) NewVariantInputStream(ol OperationList, stat *StatResult) (VariantReader, bool) {
	key := variantKey(ol)

	h.mu.Lock()
	entry, ok := h.entries[key]
	if !ok {
		h.mu.Unlock()
		return nil, false
	}
	if h.isExpired(entry) {
		delete(h.entries, key)
		h.totalBytes -= int64(len(entry.data))
		h.mu.Unlock()
		return nil, false
	}
	entry.lastAccessed = time.Now()
	data := entry.data
	lastModified := entry.lastModified
	h.mu.Unlock()

	if stat != nil {
		stat.LastModified = lastModified
	}
	return io.NopCloser(bytes.NewReader(data)), true
}

// NewVariantOutputStream returns a completable sink for ol. If an entry
// already exists under its key, the caller instead gets a no-op sink that
// discards writes (but still touches the existing entry); a second
// concurrent opener while a write is in flight also gets a no-op sink.
func (h *HeapBackend) NewVariantOutputStream(ol OperationList) VariantWriter {
	key := variantKey(ol)

	h.mu.Lock()
	_, writing := h.beingWritten[key]
	if writing {
		h.mu.Unlock()
		cerr := errors.NewError(errors.ErrCodeConcurrentWrite, "variant already being written").
			WithComponent("heap-backend").WithOperation("NewVariantOutputStream").
			WithContext("key", string(key))
		h.logger.Debug("concurrent variant writer, returning no-op sink", "err", cerr)
		return &realVariantWriter{backend: h, key: key, ol: ol, noop: true}
	}
	if entry, ok := h.entries[key]; ok {
		entry.lastAccessed = time.Now()
		h.mu.Unlock()
		return &realVariantWriter{backend: h, key: key, ol: ol, noop: true}
	}
	h.beingWritten[key] = struct{}{}
	h.mu.Unlock()

	return &realVariantWriter{backend: h, key: key, ol: ol}
}

// realVariantWriter is the concrete completable sink for variant writes.
type realVariantWriter struct {
	backend *HeapBackend
	key     cacheKey
	ol      OperationList
	buf     bytes.Buffer
	noop    bool
}

func (w *realVariantWriter) Write(p []byte) (int, error) {
	if w.noop {
		return len(p), nil
	}
	return w.buf.Write(p)
}

func (w *realVariantWriter) Close(complete bool) error {
	if w.noop {
		return nil
	}
	defer w.backend.finishWrite(w.key)

	if !complete {
		return nil
	}

	now := time.Now()
	data := w.buf.Bytes()

	w.backend.mu.Lock()
	if old, ok := w.backend.entries[w.key]; ok {
		w.backend.totalBytes -= int64(len(old.data))
	}
	w.backend.entries[w.key] = &cacheEntry{data: data, lastModified: now, lastAccessed: now, kind: kindVariant}
	w.backend.totalBytes += int64(len(data))
	w.backend.mu.Unlock()

	w.backend.observers.Notify(w.ol)
	return nil
}

func (h *HeapBackend) finishWrite(key cacheKey) {
	h.mu.Lock()
	delete(h.beingWritten, key)
	h.mu.Unlock()
}

// EvictVariant removes the one entry keyed by ol.
func (h *HeapBackend) EvictVariant(ol OperationList) {
	key := variantKey(ol)
	h.mu.Lock()
	defer h.mu.Unlock()
	if entry, ok := h.entries[key]; ok {
		h.totalBytes -= int64(len(entry.data))
		delete(h.entries, key)
	}
}

// Evict removes every entry whose Identifier equals id: the info entry and
// any variant entries derived from it. Variant keys encode the
// OperationList's filename, which is always prefixed by md5(id)
// (OperationList.Filename), the same prefix-match the filesystem backend
// uses against its shard directory; matching it here against the variant
// key string evicts both kinds from this instance without a separate
// reverse index. CacheFactory builds a separate HeapBackend for the info
// slot and for the variant slot, and Facade.Evict calls Evict on each.
func (h *HeapBackend) Evict(id Identifier) {
	key := infoKey(id)
	prefix := "op:" + id.MD5Hex()
	h.mu.Lock()
	defer h.mu.Unlock()
	if entry, ok := h.entries[key]; ok {
		h.totalBytes -= int64(len(entry.data))
		delete(h.entries, key)
	}
	for k, entry := range h.entries {
		if k.isVariantFor(prefix) {
			h.totalBytes -= int64(len(entry.data))
			delete(h.entries, k)
		}
	}
}

// EvictInfos removes entries with no opList component (kind == kindInfo).
func (h *HeapBackend) EvictInfos() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, entry := range h.entries {
		if entry.kind == kindInfo {
			h.totalBytes -= int64(len(entry.data))
			delete(h.entries, key)
		}
	}
}

// EvictInvalid removes all entries whose last-accessed is older than the
// configured TTL for the entry's kind.
func (h *HeapBackend) EvictInvalid() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, entry := range h.entries {
		if h.isExpired(entry) {
			h.totalBytes -= int64(len(entry.data))
			delete(h.entries, key)
		}
	}
}

// Purge clears all entries.
func (h *HeapBackend) Purge() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = make(map[cacheKey]*cacheEntry)
	h.totalBytes = 0
}

// CleanUp is a no-op for the heap backend: it has no temp files to sweep.
func (h *HeapBackend) CleanUp() {}

func (h *HeapBackend) isExpired(entry *cacheEntry) bool {
	ttl := h.infoTTL
	if entry.kind == kindVariant {
		ttl = h.variantTTL
	}
	if ttl <= 0 {
		return false
	}
	return time.Since(entry.lastAccessed) > ttl
}

// evictExcess computes excess = totalBytes - targetBytes under a single
// mutex; if positive, walks entries in ascending last-accessed order and
// removes them, accumulating freed bytes, until freed meets or exceeds the
// excess.
func (h *HeapBackend) evictExcess() {
	h.sweepMu.Lock()
	defer h.sweepMu.Unlock()

	h.mu.Lock()
	excess := h.totalBytes - h.targetBytes
	if excess <= 0 {
		h.mu.Unlock()
		return
	}

	type keyed struct {
		key   cacheKey
		entry *cacheEntry
	}
	snapshot := make([]keyed, 0, len(h.entries))
	for k, e := range h.entries {
		snapshot = append(snapshot, keyed{k, e})
	}
	h.mu.Unlock()

	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].entry.lastAccessed.Before(snapshot[j].entry.lastAccessed)
	})

	var freed int64
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, k := range snapshot {
		if freed >= excess {
			break
		}
		if _, ok := h.entries[k.key]; !ok {
			continue
		}
		freed += int64(len(k.entry.data))
		h.totalBytes -= int64(len(k.entry.data))
		delete(h.entries, k.key)
	}
}

// TotalBytes reports the current sum of entry data sizes, for tests and
// metrics.
func (h *HeapBackend) TotalBytes() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalBytes
}
