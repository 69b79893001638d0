package cache

import (
	"context"
	"time"
)

// ConfigSource is the narrow key/value configuration capability the core
// consumes. A concrete adapter lives at internal/config.YAMLConfigSource;
// any implementation satisfying this method set works here by structural
// typing, with no import back into internal/config.
type ConfigSource interface {
	GetString(key string) string
	GetInt(key string) int
	GetInt64(key string) int64
	GetBool(key string) bool
	GetDuration(key string) time.Duration
	Watch(key string, callback func())
}

// TaskSubmitter is the background thread pool the façade and worker use
// for fire-and-forget closures: asynchronous writes, purges, and periodic
// ticks. Submit must not block the caller.
type TaskSubmitter interface {
	Submit(fn func())
}

// Decoder produces a freshly-read Info when no cache entry exists. It
// performs no caching of its own; the façade is responsible for that.
type Decoder interface {
	Read(ctx context.Context) (Info, error)
}

// InfoBackend is the capability set a pluggable info store must provide.
// The filesystem backend and the heap backend both implement it.
type InfoBackend interface {
	FetchInfo(id Identifier) (Info, bool)
	Put(id Identifier, info Info) error
	EvictInfos()
	Evict(id Identifier)
	EvictInvalid()
	Purge()
	CleanUp()
	Initialize() error
	Shutdown()
}

// VariantBackend is the capability set a pluggable variant store must
// provide. The filesystem backend and the heap backend both implement it.
type VariantBackend interface {
	NewVariantInputStream(ol OperationList, stat *StatResult) (VariantReader, bool)
	NewVariantOutputStream(ol OperationList) VariantWriter
	EvictVariant(ol OperationList)
	Evict(id Identifier)
	EvictInvalid()
	Purge()
	CleanUp()
	Initialize() error
	Shutdown()
}

// VariantReader is a readable handle over a cached variant's bytes.
type VariantReader interface {
	Read(p []byte) (int, error)
	Close() error
}

// VariantWriter is a completable sink: the caller streams bytes to it,
// then calls Close(complete) to either commit (rename into place, notify
// observers) or discard the artifact.
type VariantWriter interface {
	Write(p []byte) (int, error)
	Close(complete bool) error
}
