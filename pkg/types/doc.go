// Package types holds the small set of plain data structures shared across
// package boundaries that would otherwise create an import cycle between
// internal/storage/s3 and its callers.
//
// It intentionally does not define interfaces: internal/cache and
// internal/storage/s3 own their own contracts (InfoBackend/VariantBackend and
// ConfigSource in internal/cache, s3.Backend in internal/storage/s3) at the
// point where they're consumed, rather than
// routing through a shared abstraction layer here.
package types
