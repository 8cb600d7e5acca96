// Package memory provides the in-memory Store.
//
// Keys live in a murmur3-sharded concurrent map, so operations on keys in
// different shards never contend. Values are copied on the way in and on
// the way out; callers may reuse their buffers.
//
// Contents are lost on exit. Durability comes from the write-ahead log and
// snapshots, which recovery replays into a fresh Store.
package memory
