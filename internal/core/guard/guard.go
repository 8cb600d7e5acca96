// Package guard composes the per-key write lock, the global suspend lock and
// the write-ahead log gate around command execution.
//
// Execute is the only place that takes more than one of these locks, and it
// always takes them in the same order: key lock, then suspend read hold, then
// (on success) the log gate. That fixed order is what keeps concurrent
// connections free of deadlock.
package guard

import (
	"context"
	"sync/atomic"

	"github.com/yndnr/kvgate-go/internal/core/command"
	"github.com/yndnr/kvgate-go/internal/core/domain"
	"github.com/yndnr/kvgate-go/internal/protocol/resp"
)

// Stats counts lock and log activity since the Guard was created.
type Stats struct {
	KeyLocks     uint64
	SuspendReads uint64
	Suspensions  uint64
	LogAppends   uint64
	LogFailures  uint64
}

// Guard runs commands under the concurrency rules.
type Guard struct {
	keys    *KeyLocks
	suspend *SuspendLock
	gate    *LogGate

	keyLocks     atomic.Uint64
	suspendReads atomic.Uint64
	suspensions  atomic.Uint64
	logAppends   atomic.Uint64
	logFailures  atomic.Uint64
}

// New creates a Guard. suspend and gate are shared with the suspend owners
// and the snapshot machinery.
func New(suspend *SuspendLock, gate *LogGate) *Guard {
	if suspend == nil {
		suspend = NewSuspendLock()
	}
	if gate == nil {
		gate = NewLogGate(nil)
	}
	return &Guard{
		keys:    NewKeyLocks(),
		suspend: suspend,
		gate:    gate,
	}
}

func (g *Guard) SuspendLock() *SuspendLock { return g.suspend }
func (g *Guard) LogGate() *LogGate         { return g.gate }
func (g *Guard) KeyLocks() *KeyLocks       { return g.keys }

// Execute runs fn under the locks desc requires.
//
// Writes lock args[1] when present. Every command except suspend-class ones
// holds the suspend read side while fn runs. A write whose fn succeeds is
// appended to the log before the locks are released; if the append fails
// Execute returns domain.ErrLogAppend even though fn already mutated the
// store.
func (g *Guard) Execute(ctx context.Context, desc command.Descriptor, args [][]byte, fn func(context.Context) error) error {
	var record []byte
	if desc.IsWrite() {
		record = resp.EncodeCommand(args)
		if len(args) >= 2 {
			kg := g.keys.Lock(string(args[1]))
			g.keyLocks.Add(1)
			defer kg.Release()
		}
	}

	if desc.IsSuspend() {
		scope := &suspendScope{}
		ctx = context.WithValue(ctx, suspendScopeKey{}, scope)
		defer scope.release()
	} else {
		rh := g.suspend.RLock()
		g.suspendReads.Add(1)
		defer rh.Release()
	}

	if err := fn(ctx); err != nil {
		return err
	}

	if record != nil {
		if err := g.gate.Append(record); err != nil {
			g.logFailures.Add(1)
			return domain.ErrLogAppend.WithCause(err)
		}
		g.logAppends.Add(1)
	}
	return nil
}

type suspendScopeKey struct{}

type suspendScope struct {
	s *Suspension
}

func (sc *suspendScope) release() {
	if sc.s != nil {
		sc.s.release()
	}
}

// Suspend takes the write side of the suspend lock. Inside Execute of a
// suspend-class command the suspension lasts until Execute returns, so the
// command's own log record is written before anyone else resumes; repeated
// calls within that command return the same suspension. Elsewhere the caller
// must call Resume.
func (g *Guard) Suspend(ctx context.Context) *Suspension {
	sc, ok := ctx.Value(suspendScopeKey{}).(*suspendScope)
	if !ok {
		s := g.suspend.Suspend()
		g.suspensions.Add(1)
		return s
	}
	if sc.s == nil {
		sc.s = g.suspend.Suspend()
		sc.s.scoped = true
		g.suspensions.Add(1)
	}
	return sc.s
}

// Stats returns a snapshot of the counters.
func (g *Guard) Stats() Stats {
	return Stats{
		KeyLocks:     g.keyLocks.Load(),
		SuspendReads: g.suspendReads.Load(),
		Suspensions:  g.suspensions.Load(),
		LogAppends:   g.logAppends.Load(),
		LogFailures:  g.logFailures.Load(),
	}
}
