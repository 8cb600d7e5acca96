package storage

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/yndnr/kvgate-go/internal/protocol/resp"
)

// Common errors
var (
	ErrNotFound = errors.New("storage: key not found")
	ErrClosed   = errors.New("storage: store closed")
)

// Store is the keyspace that command handlers operate on.
//
// Implementations are safe for concurrent use. Per-key ordering of writes
// is the caller's concern; a Store only guarantees that each call is atomic
// on its own.
type Store interface {
	// Get returns a copy of the value, or ErrNotFound.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value []byte) error

	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key, value []byte) (bool, error)

	// Delete removes keys and returns how many existed.
	Delete(ctx context.Context, keys ...[]byte) (int, error)

	// Exists counts how many of keys are present; duplicates count twice.
	Exists(ctx context.Context, keys ...[]byte) (int, error)

	// Len returns the number of keys.
	Len(ctx context.Context) (int64, error)

	// Flush removes every key.
	Flush(ctx context.Context) error

	// Dump writes every key as a RESP "SET key value" array and returns
	// the number of keys written.
	Dump(ctx context.Context, w io.Writer) (int64, error)

	// Restore replaces the contents with a stream written by Dump.
	Restore(ctx context.Context, r io.Reader) (int64, error)

	Close() error
}

// Persistent is implemented by stores whose contents survive a restart on
// their own, so recovery must not replay the log into them.
type Persistent interface {
	Persistent() bool
}

// IsPersistent reports whether s keeps its data across restarts.
func IsPersistent(s Store) bool {
	p, ok := s.(Persistent)
	return ok && p.Persistent()
}

var setCmd = []byte("SET")

// WriteRecord writes one dump record.
func WriteRecord(w io.Writer, key, value []byte) error {
	_, err := w.Write(resp.EncodeCommand([][]byte{setCmd, key, value}))
	return err
}

// RecordReader reads records written by WriteRecord.
type RecordReader struct {
	br *bufio.Reader
}

// NewRecordReader wraps r for reading dump records.
func NewRecordReader(r io.Reader) *RecordReader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, 64*1024)
	}
	return &RecordReader{br: br}
}

// Next returns the next key and value, or io.EOF at a clean end of stream.
func (rr *RecordReader) Next() (key, value []byte, err error) {
	args, err := resp.ReadCommand(rr.br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, io.EOF
		}
		return nil, nil, fmt.Errorf("storage: read dump record: %w", err)
	}
	if len(args) != 3 || !bytes.EqualFold(args[0], setCmd) || args[1] == nil || args[2] == nil {
		return nil, nil, fmt.Errorf("storage: malformed dump record with %d args", len(args))
	}
	return args[1], args[2], nil
}
