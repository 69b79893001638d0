package cache

import (
	"hash/fnv"
	"sync"
)

// shardCount is the fixed number of lock shards. Identifiers hashing to
// the same shard contend for the same lock; this trades contention for a
// bounded memory footprint instead of the unbounded per-identifier lock
// map the original design accepted as a deliberate leak.
const shardCount = 256

// shardLocks is a fixed-size array of RWMutexes indexed by hash(id) mod
// shardCount. It never grows, so it has no leak to accept.
type shardLocks struct {
	mus [shardCount]sync.RWMutex
}

func newShardLocks() *shardLocks {
	return &shardLocks{}
}

func (s *shardLocks) shard(id Identifier) *sync.RWMutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.mus[h.Sum32()%shardCount]
}

// RLock acquires the read lock for id's shard.
func (s *shardLocks) RLock(id Identifier) {
	s.shard(id).RLock()
}

// RUnlock releases the read lock for id's shard.
func (s *shardLocks) RUnlock(id Identifier) {
	s.shard(id).RUnlock()
}

// Lock acquires the write lock for id's shard.
func (s *shardLocks) Lock(id Identifier) {
	s.shard(id).Lock()
}

// Unlock releases the write lock for id's shard.
func (s *shardLocks) Unlock(id Identifier) {
	s.shard(id).Unlock()
}
