// Package storage provides the keyspace and its durability layer.
//
// A Store holds the keys. Two implementations exist: the in-memory store
// in package memory (sharded map, rebuilt from disk on start) and
// BadgerStore (persistent LSM tree).
//
// Engine pairs a Store with:
//
//   - WAL: every successful write command, in commit order
//   - Snapshots: full store dumps tagged with the WAL sequence they cover
//
// Recovery loads the newest valid snapshot and replays the WAL records
// logged after it through the same command handlers that served them.
//
// Store dumps are a stream of RESP "SET key value" arrays, so a dump can
// be read back by any engine.
package storage
