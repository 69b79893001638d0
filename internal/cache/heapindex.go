package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/objectfs/imagecache/pkg/memmon"
)

// expectedAvgInfoSize is the assumed average serialized size of an Info,
// used (with process max heap) to derive the HeapInfoIndex's entry
// capacity. Mirrors the 4096-byte figure named in its design.
const expectedAvgInfoSize = 4096

// heapIndexHeapFraction is the fraction of process max heap the index is
// allowed to account for.
const heapIndexHeapFraction = 0.05

// HeapInfoIndex is a bounded, process-wide in-memory index from
// Identifier to Info, acting as an optional L1 in front of the persistent
// info backend. It is an insertion/access-ordered LRU: on overflow the
// least-recently-used entry is discarded. It is never persisted.
type HeapInfoIndex struct {
	mu       sync.Mutex
	capacity int
	items    map[Identifier]*list.Element
	order    *list.List // front = most recently used
}

type heapIndexEntry struct {
	id   Identifier
	info Info
}

// NewHeapInfoIndex derives its capacity from the process's current max
// heap (sampled via pkg/memmon) times heapIndexHeapFraction, divided by
// expectedAvgInfoSize, and returns a ready index.
func NewHeapInfoIndex() *HeapInfoIndex {
	return NewHeapInfoIndexWithCapacity(deriveHeapIndexCapacity())
}

// NewHeapInfoIndexWithCapacity builds an index with an explicit capacity,
// bypassing memory sampling. Used by tests and by callers that already
// know their budget.
func NewHeapInfoIndexWithCapacity(capacity int) *HeapInfoIndex {
	if capacity < 1 {
		capacity = 1
	}
	return &HeapInfoIndex{
		capacity: capacity,
		items:    make(map[Identifier]*list.Element),
		order:    list.New(),
	}
}

// deriveHeapIndexCapacity samples current process memory via a short-lived
// memmon.MemoryMonitor and converts it to an entry count.
func deriveHeapIndexCapacity() int {
	mon := memmon.NewMemoryMonitor(memmon.DefaultMonitorConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mon.Start(ctx); err != nil {
		return fallbackHeapIndexCapacity
	}
	defer func() { _ = mon.Stop() }()

	// Start's monitorLoop takes its first sample synchronously before
	// entering the ticker loop; a short yield is enough for it to land.
	time.Sleep(5 * time.Millisecond)

	sample := mon.GetStats().CurrentSample
	maxHeap := sample.HeapSys
	if maxHeap == 0 {
		return fallbackHeapIndexCapacity
	}

	capacity := int(float64(maxHeap) * heapIndexHeapFraction / expectedAvgInfoSize)
	if capacity < 1 {
		capacity = fallbackHeapIndexCapacity
	}
	return capacity
}

// fallbackHeapIndexCapacity is used when memory sampling yields nothing
// useful (e.g. the monitor failed to start).
const fallbackHeapIndexCapacity = 4096

// Get returns the Info stored under id, marking it most-recently-used.
func (h *HeapInfoIndex) Get(id Identifier) (Info, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	el, ok := h.items[id]
	if !ok {
		return Info{}, false
	}
	h.order.MoveToFront(el)
	return el.Value.(*heapIndexEntry).info, true
}

// Put inserts or overwrites the entry for id, evicting the
// least-recently-used entry if the index is at capacity.
func (h *HeapInfoIndex) Put(id Identifier, info Info) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if el, ok := h.items[id]; ok {
		el.Value.(*heapIndexEntry).info = info
		h.order.MoveToFront(el)
		return
	}

	el := h.order.PushFront(&heapIndexEntry{id: id, info: info})
	h.items[id] = el

	for len(h.items) > h.capacity {
		h.evictOldestLocked()
	}
}

// Evict removes the entry for id, if present.
func (h *HeapInfoIndex) Evict(id Identifier) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if el, ok := h.items[id]; ok {
		h.order.Remove(el)
		delete(h.items, id)
	}
}

// Purge clears all entries.
func (h *HeapInfoIndex) Purge() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items = make(map[Identifier]*list.Element)
	h.order.Init()
}

// Size returns the number of entries currently held.
func (h *HeapInfoIndex) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items)
}

func (h *HeapInfoIndex) evictOldestLocked() {
	el := h.order.Back()
	if el == nil {
		return
	}
	entry := el.Value.(*heapIndexEntry)
	h.order.Remove(el)
	delete(h.items, entry.id)
}
