package cache

import (
	"context"
	"log/slog"
)

// Facade is the stable public surface of the cache core. It coordinates
// the HeapInfoIndex, info backend, and variant backend through a
// CacheFactory, implementing read-through for infos, asynchronous writes,
// and fan-out evictions. All backend handles are obtained via the factory
// on each call, so a live configuration change takes effect on the very
// next operation.
type Facade struct {
	factory   *CacheFactory
	submitter TaskSubmitter
	logger    *slog.Logger
}

// NewFacade builds a Facade over factory, using submitter for the
// asynchronous writes fetchOrReadInfo and the async-eviction path perform.
func NewFacade(factory *CacheFactory, submitter TaskSubmitter) *Facade {
	return &Facade{
		factory:   factory,
		submitter: submitter,
		logger:    slog.Default().With("component", "cache-facade"),
	}
}

// FetchInfo consults the HeapInfoIndex first; on a miss it falls through
// to the info backend and, on a hit there, populates the index before
// returning.
func (c *Facade) FetchInfo(id Identifier) (Info, bool) {
	if idx := c.factory.HeapInfoIndex(); idx != nil {
		if info, ok := idx.Get(id); ok {
			return info, true
		}
	}

	backend, err := c.factory.InfoBackend()
	if err != nil {
		c.logger.Warn("info backend unavailable", "err", err)
		return Info{}, false
	}
	if backend == nil {
		return Info{}, false
	}

	info, ok := backend.FetchInfo(id)
	if !ok {
		return Info{}, false
	}

	if idx := c.factory.HeapInfoIndex(); idx != nil {
		idx.Put(id, info)
	}
	return info, true
}

// FetchOrReadInfo returns the cached Info for id, or — on a miss — calls
// decoder.Read synchronously, schedules an asynchronous write to the
// HeapInfoIndex and info backend, and returns the freshly read Info.
func (c *Facade) FetchOrReadInfo(ctx context.Context, id Identifier, decoder Decoder) (Info, error) {
	if info, ok := c.FetchInfo(id); ok {
		return info, nil
	}

	info, err := decoder.Read(ctx)
	if err != nil {
		return Info{}, err
	}

	c.submit(func() {
		if idx := c.factory.HeapInfoIndex(); idx != nil {
			idx.Put(id, info)
		}
		backend, err := c.factory.InfoBackend()
		if err != nil {
			c.logger.Warn("info backend unavailable for async write", "err", err)
			return
		}
		if backend == nil {
			return
		}
		if err := backend.Put(id, info); err != nil {
			c.logger.Warn("async info write failed", "identifier", id, "err", err)
		}
	})

	return info, nil
}

// NewVariantInputStream delegates to the variant backend, returning
// absent if none is configured.
func (c *Facade) NewVariantInputStream(ol OperationList, stat *StatResult) (VariantReader, bool) {
	backend, err := c.factory.VariantBackend()
	if err != nil {
		c.logger.Warn("variant backend unavailable", "err", err)
		return nil, false
	}
	if backend == nil {
		return nil, false
	}
	return backend.NewVariantInputStream(ol, stat)
}

// NewVariantOutputStream delegates to the variant backend, returning a
// no-op sink if none is configured.
func (c *Facade) NewVariantOutputStream(ol OperationList) VariantWriter {
	backend, err := c.factory.VariantBackend()
	if err != nil {
		c.logger.Warn("variant backend unavailable", "err", err)
		return noopVariantWriter{}
	}
	if backend == nil {
		return noopVariantWriter{}
	}
	return backend.NewVariantOutputStream(ol)
}

// Evict fans out eviction of id to the HeapInfoIndex, info backend, and
// variant backend, scheduled on the background submitter.
func (c *Facade) Evict(id Identifier) {
	c.submit(func() {
		if idx := c.factory.HeapInfoIndex(); idx != nil {
			idx.Evict(id)
		}
		if backend, err := c.factory.InfoBackend(); err == nil && backend != nil {
			backend.Evict(id)
		}
		if backend, err := c.factory.VariantBackend(); err == nil && backend != nil {
			backend.Evict(id)
		}
	})
}

// EvictVariant evicts the one variant entry for ol from the variant
// backend only.
func (c *Facade) EvictVariant(ol OperationList) {
	backend, err := c.factory.VariantBackend()
	if err != nil || backend == nil {
		return
	}
	backend.EvictVariant(ol)
}

// EvictInfos fans out to the HeapInfoIndex and info backend.
func (c *Facade) EvictInfos() {
	if idx := c.factory.HeapInfoIndex(); idx != nil {
		idx.Purge()
	}
	if backend, err := c.factory.InfoBackend(); err == nil && backend != nil {
		backend.EvictInfos()
	}
}

// EvictInvalid fans out to the info and variant backends.
func (c *Facade) EvictInvalid() {
	if backend, err := c.factory.InfoBackend(); err == nil && backend != nil {
		backend.EvictInvalid()
	}
	if backend, err := c.factory.VariantBackend(); err == nil && backend != nil {
		backend.EvictInvalid()
	}
}

// CleanUp fans out to the info and variant backends.
func (c *Facade) CleanUp() {
	if backend, err := c.factory.InfoBackend(); err == nil && backend != nil {
		backend.CleanUp()
	}
	if backend, err := c.factory.VariantBackend(); err == nil && backend != nil {
		backend.CleanUp()
	}
}

// Purge fans out to the HeapInfoIndex and both backends.
func (c *Facade) Purge() {
	if idx := c.factory.HeapInfoIndex(); idx != nil {
		idx.Purge()
	}
	if backend, err := c.factory.InfoBackend(); err == nil && backend != nil {
		backend.Purge()
	}
	if backend, err := c.factory.VariantBackend(); err == nil && backend != nil {
		backend.Purge()
	}
}

func (c *Facade) submit(fn func()) {
	if c.submitter != nil {
		c.submitter.Submit(fn)
		return
	}
	fn()
}

// Shutdown tears down the factory's live backends.
func (c *Facade) Shutdown() {
	c.factory.ShutdownAll()
}
