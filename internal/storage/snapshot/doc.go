// Package snapshot writes and loads full store images.
//
// A snapshot pairs a store dump with the WAL sequence it reflects, so
// recovery loads the newest valid snapshot and replays only the records
// logged after it.
//
//	snapshot-<ULID>.snap
//	[magic:8 "KVGSNAP\x01"]
//	[HeaderLen:4][HeaderJSON:HeaderLen]
//	[store dump: RESP "SET key value" arrays]
//	[checksum:32 SHA-256 of all bytes above]
package snapshot
