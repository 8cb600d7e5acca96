package memory

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/yndnr/kvgate-go/internal/storage"
	"github.com/yndnr/kvgate-go/pkg/cmap"
)

// Store keeps the keyspace in a sharded map.
type Store struct {
	data   *cmap.Map[[]byte]
	closed atomic.Bool
}

var _ storage.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*options)

type options struct {
	shards int
}

// WithShardCount sets the number of map shards (a power of two).
func WithShardCount(n int) Option {
	return func(o *options) {
		o.shards = n
	}
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var mapOpts []cmap.Option
	if o.shards > 0 {
		mapOpts = append(mapOpts, cmap.WithShardCount(o.shards))
	}
	return &Store{data: cmap.New[[]byte](mapOpts...)}
}

func (s *Store) check() error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(_ context.Context, key []byte) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	v, ok := s.data.Get(string(key))
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clone(v), nil
}

// Set stores a copy of value.
func (s *Store) Set(_ context.Context, key, value []byte) error {
	if err := s.check(); err != nil {
		return err
	}
	s.data.Set(string(key), clone(value))
	return nil
}

// SetNX stores value only if key is absent.
func (s *Store) SetNX(_ context.Context, key, value []byte) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	return s.data.SetIfAbsent(string(key), clone(value)), nil
}

// Delete removes keys and returns how many existed.
func (s *Store) Delete(_ context.Context, keys ...[]byte) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	n := 0
	for _, k := range keys {
		if s.data.Delete(string(k)) {
			n++
		}
	}
	return n, nil
}

// Exists counts how many of keys are present.
func (s *Store) Exists(_ context.Context, keys ...[]byte) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	n := 0
	for _, k := range keys {
		if s.data.Has(string(k)) {
			n++
		}
	}
	return n, nil
}

// Len returns the number of keys.
func (s *Store) Len(_ context.Context) (int64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return int64(s.data.Count()), nil
}

// Flush removes every key.
func (s *Store) Flush(_ context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	s.data.Clear()
	return nil
}

// Dump writes every key, one shard at a time. Writers to a shard wait
// while it is being dumped.
func (s *Store) Dump(ctx context.Context, w io.Writer) (int64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	var (
		n   int64
		err error
	)
	s.data.Range(func(k string, v []byte) bool {
		if err = ctx.Err(); err != nil {
			return false
		}
		if err = storage.WriteRecord(w, []byte(k), v); err != nil {
			return false
		}
		n++
		return true
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Restore clears the store and loads a dump.
func (s *Store) Restore(ctx context.Context, r io.Reader) (int64, error) {
	if err := s.Flush(ctx); err != nil {
		return 0, err
	}

	rr := storage.NewRecordReader(r)
	var n int64
	for {
		key, value, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		// Reader output is freshly allocated; no copy needed.
		s.data.Set(string(key), value)
		n++
	}
}

// Close marks the store closed; later calls fail with storage.ErrClosed.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}
