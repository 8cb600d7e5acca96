// Package monitor fans executed commands out to MONITOR subscribers.
package monitor

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/kvgate-go/internal/protocol/resp"
)

// Target receives monitor lines. Deliver must not block.
type Target interface {
	ID() string
	Deliver(line string) bool
}

// Registry holds the current subscribers.
type Registry struct {
	mu      sync.RWMutex
	targets map[string]Target
	count   atomic.Int32

	dropped atomic.Uint64
	onDrop  func()
}

// NewRegistry creates a registry. onDrop, if set, is called once per line a
// subscriber could not take.
func NewRegistry(onDrop func()) *Registry {
	return &Registry{
		targets: make(map[string]Target),
		onDrop:  onDrop,
	}
}

// Subscribe adds t. Subscribing the same id twice keeps one entry.
func (r *Registry) Subscribe(t Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[t.ID()] = t
	r.count.Store(int32(len(r.targets)))
}

func (r *Registry) Unsubscribe(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.targets, id)
	r.count.Store(int32(len(r.targets)))
}

// HasSubscribers is a lock-free check for the hot path.
func (r *Registry) HasSubscribers() bool {
	return r.count.Load() > 0
}

// IsSubscribed reports whether id is currently a subscriber.
func (r *Registry) IsSubscribed(id string) bool {
	if !r.HasSubscribers() {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.targets[id]
	return ok
}

func (r *Registry) Len() int {
	return int(r.count.Load())
}

// Broadcast delivers line to every subscriber. Slow subscribers lose lines;
// Broadcast never blocks on them.
func (r *Registry) Broadcast(line string) {
	if !r.HasSubscribers() {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.targets {
		if !t.Deliver(line) {
			r.dropped.Add(1)
			if r.onDrop != nil {
				r.onDrop()
			}
		}
	}
}

// Dropped returns the number of lines lost to full subscriber queues.
func (r *Registry) Dropped() uint64 {
	return r.dropped.Load()
}

// FormatLine renders a command the way MONITOR shows it:
//
//	1700000000.123456 [127.0.0.1:50123] "set" "k" "v"
func FormatLine(at time.Time, addr string, args [][]byte) string {
	us := at.UnixMicro()
	buf := make([]byte, 0, 64+len(addr)+16*len(args))
	buf = strconv.AppendInt(buf, us/1e6, 10)
	buf = append(buf, '.')
	frac := us % 1e6
	if frac < 0 {
		frac = -frac
	}
	buf = appendPadded(buf, frac, 6)
	buf = append(buf, " ["...)
	buf = append(buf, addr...)
	buf = append(buf, ']')
	for _, a := range args {
		buf = append(buf, ' ')
		buf = resp.Quote(buf, a)
	}
	return string(buf)
}

func appendPadded(dst []byte, n int64, width int) []byte {
	s := strconv.FormatInt(n, 10)
	for i := len(s); i < width; i++ {
		dst = append(dst, '0')
	}
	return append(dst, s...)
}
