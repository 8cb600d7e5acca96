package guard

import (
	"sync"

	"github.com/spaolacci/murmur3"
)

const keyLockShards = 64

// KeyLocks hands out one exclusion token per key. Entries are created on
// demand and removed when the last holder or waiter releases them.
type KeyLocks struct {
	shards [keyLockShards]keyLockShard
}

type keyLockShard struct {
	mu      sync.Mutex
	entries map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// KeyGuard is a held key lock. Release it exactly once.
type KeyGuard struct {
	table *KeyLocks
	key   string
	lock  *keyLock
}

func NewKeyLocks() *KeyLocks {
	t := &KeyLocks{}
	for i := range t.shards {
		t.shards[i].entries = make(map[string]*keyLock)
	}
	return t
}

func (t *KeyLocks) shard(key string) *keyLockShard {
	return &t.shards[murmur3.Sum32([]byte(key))%keyLockShards]
}

// Lock blocks until the caller holds key.
func (t *KeyLocks) Lock(key string) *KeyGuard {
	s := t.shard(key)
	s.mu.Lock()
	l, ok := s.entries[key]
	if !ok {
		l = &keyLock{}
		s.entries[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return &KeyGuard{table: t, key: key, lock: l}
}

// Release unlocks the key and drops the entry once nobody references it.
func (g *KeyGuard) Release() {
	if g == nil || g.lock == nil {
		return
	}
	l := g.lock
	g.lock = nil
	l.mu.Unlock()

	s := g.table.shard(g.key)
	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.entries, g.key)
	}
	s.mu.Unlock()
}

// Len returns the number of keys currently locked or waited on.
func (t *KeyLocks) Len() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}
