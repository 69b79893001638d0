/*
Package cache implements the two-tier info/variant cache at the heart of
the image delivery service: a fast in-process HeapInfoIndex in front of a
pluggable, hot-swappable InfoBackend and VariantBackend pair.

# Architecture

	┌───────────────────────────────────────────┐
	│                  Facade                  │  read-through, eviction
	└───────────────────────────────────────────┘
	        │                          │
	┌───────────────┐        ┌──────────────────────────┐
	│ HeapInfoIndex │        │        CacheFactory       │
	│  (L1, in-proc)│        │  builds/swaps backends on │
	└───────────────┘        │  live config change        │
	                          └──────────────────────────┘
	                             │                  │
	                    ┌─────────────────┐  ┌──────────────────┐
	                    │ FilesystemBackend│  │   HeapBackend     │
	                    │  (sharded on disk)│  │ (process-wide RAM)│
	                    └─────────────────┘  └──────────────────┘

Both backends implement InfoBackend and VariantBackend and are
interchangeable per slot: the info store and the variant store can each
independently be "filesystem" or "heap", chosen and swapped at runtime
through a ConfigSource, without restarting the process.

# Identity and Coordination

An Identifier names a source image; an OperationList names a derived
variant (a sequence of named operations with parameters applied to that
source, plus an output format). Info and variant entries are keyed
separately: a HeapInfoIndex eviction, EvictInfos, or EvictVariant touches
only its own kind, while Evict(id) on either backend removes the info
entry and every variant derived from that identifier.

Concurrent writers to the same variant destination never corrupt it: the
first acquires the write, later concurrent openers receive a no-op sink.
Commits are atomic (temp file + rename for FilesystemBackend, replace-in-map
for HeapBackend) so a reader never observes a partially written artifact.
A global Purge or EvictInvalid on FilesystemBackend waits for in-flight
EvictVariant calls through a condition variable, and per-identifier Evict
calls started during it return without deleting, rather than serializing
all access behind one lock.

# Observers

Subscribing an Observer to the ObserverRegistry shared by a Facade's
backends notifies it after every committed variant write. Subscription
tokens are explicit (Subscription.Unsubscribe), since nothing in this
cache core relies on garbage-collector timing for cleanup.

# Background Work

A Worker periodically invokes EvictInvalid and CleanUp across both
backends. A Pool runs fire-and-forget tasks — asynchronous info writes and
evictions scheduled by Facade — recovering a panicking task rather than
losing a worker goroutine.
*/
package cache
