// Package cmap provides a sharded concurrent map keyed by strings.
//
// Keys are spread over a power-of-two number of shards using murmur3, and
// each shard has its own RWMutex, so operations on different keys rarely
// contend.
//
// Usage:
//
//	m := cmap.New[[]byte](cmap.WithShardCount(64))
//	m.Set("key", value)
//	val, ok := m.Get("key")
//
// All operations are safe for concurrent use. Range walks the shards one at
// a time, so it does not see a single consistent snapshot of the map.
package cmap
