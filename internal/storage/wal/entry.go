package wal

import (
	"errors"
	"time"
)

const (
	// headerSize is the size of the frame prefix: length (4) + crc (4).
	headerSize = 8

	// fixedFrameSize is crc (4) + type (1) + seq (8) + timestamp (8).
	fixedFrameSize = 4 + 1 + 8 + 8
)

// Errors for WAL operations.
var (
	ErrCorruptedEntry   = errors.New("wal: corrupted entry")
	ErrChecksumMismatch = errors.New("wal: checksum mismatch")
	ErrInvalidEntryType = errors.New("wal: invalid entry type")
	ErrClosed           = errors.New("wal: writer is closed")
)

// EntryType is the kind of record stored in a frame.
type EntryType uint8

const (
	EntryTypeUnspecified EntryType = iota
	// EntryTypeCommand carries one RESP-encoded write command.
	EntryTypeCommand
)

func (t EntryType) String() string {
	switch t {
	case EntryTypeCommand:
		return "command"
	default:
		return "unspecified"
	}
}

// Entry is one durable record in the log.
//
// Seq is assigned by the Writer and strictly increases across segments.
// Timestamp is Unix milliseconds.
type Entry struct {
	Type      EntryType
	Seq       uint64
	Timestamp int64
	Record    []byte
}

// NewCommandEntry wraps a serialized command record.
func NewCommandEntry(seq uint64, record []byte) *Entry {
	return &Entry{
		Type:      EntryTypeCommand,
		Seq:       seq,
		Timestamp: time.Now().UnixMilli(),
		Record:    record,
	}
}
