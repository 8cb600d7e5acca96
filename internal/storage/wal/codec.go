package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// encodeEntryFrame lays out [len:4][crc:4][type:1][seq:8][ts:8][record].
// len counts everything after itself; crc covers type through record.
func encodeEntryFrame(e *Entry) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("wal: entry is nil")
	}
	if e.Type != EntryTypeCommand {
		return nil, ErrInvalidEntryType
	}
	if len(e.Record) == 0 {
		return nil, fmt.Errorf("wal: empty record")
	}

	length := fixedFrameSize + len(e.Record)
	out := make([]byte, 4+length)

	binary.BigEndian.PutUint32(out[0:4], uint32(length))
	body := out[8:]
	body[0] = byte(e.Type)
	binary.BigEndian.PutUint64(body[1:9], e.Seq)
	binary.BigEndian.PutUint64(body[9:17], uint64(e.Timestamp))
	copy(body[17:], e.Record)

	binary.BigEndian.PutUint32(out[4:8], crc32.ChecksumIEEE(body))
	return out, nil
}

// decodeEntryFrame parses a frame without its length prefix.
func decodeEntryFrame(frame []byte) (*Entry, error) {
	if len(frame) <= fixedFrameSize {
		return nil, ErrCorruptedEntry
	}

	wantCRC := binary.BigEndian.Uint32(frame[:4])
	body := frame[4:]
	if crc32.ChecksumIEEE(body) != wantCRC {
		return nil, ErrChecksumMismatch
	}

	typ := EntryType(body[0])
	if typ != EntryTypeCommand {
		return nil, ErrInvalidEntryType
	}

	record := make([]byte, len(body)-17)
	copy(record, body[17:])

	return &Entry{
		Type:      typ,
		Seq:       binary.BigEndian.Uint64(body[1:9]),
		Timestamp: int64(binary.BigEndian.Uint64(body[9:17])),
		Record:    record,
	}, nil
}
