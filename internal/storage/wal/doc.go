// Package wal provides the write-ahead log of successful write commands.
//
// Every record is a RESP-encoded command exactly as it was admitted. The
// Writer assigns each record a sequence number; replaying the records in
// sequence order against an empty store (or a snapshot taken at a known
// sequence) reproduces the store.
//
// Format:
//
//	wal-<segment-id>.log
//	[magic:8 "KVGWAL\x00\x01"]
//	[Entry]*
//	[checksum:32 SHA-256 of all bytes above] (absent on the active segment)
//
// Entry wire format:
//
//	[Length:4][CRC32:4][Type:1][Seq:8][Timestamp:8][Record:Length-21]
//
// Where:
//   - Length counts every byte after itself (big-endian uint32)
//   - CRC32 (IEEE) covers Type through Record
//   - Timestamp is Unix milliseconds
package wal
