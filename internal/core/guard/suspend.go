package guard

import (
	"sync"
	"sync/atomic"
)

// SuspendLock is the process-wide reader/writer lock around command
// execution. Normal commands hold the read side; a Suspension holds the
// write side. A pending Suspension blocks new readers, so a stream of
// commands cannot starve it.
type SuspendLock struct {
	rw        sync.RWMutex
	suspended atomic.Bool
}

func NewSuspendLock() *SuspendLock {
	return &SuspendLock{}
}

// ReadHold is a held read side of the suspend lock.
type ReadHold struct {
	l *SuspendLock
}

// RLock blocks while a suspension is held or pending.
func (l *SuspendLock) RLock() *ReadHold {
	l.rw.RLock()
	return &ReadHold{l: l}
}

func (h *ReadHold) Release() {
	if h == nil || h.l == nil {
		return
	}
	l := h.l
	h.l = nil
	l.rw.RUnlock()
}

// Suspension is a held write side of the suspend lock.
type Suspension struct {
	l    *SuspendLock
	once sync.Once
	// scoped suspensions belong to a running command and are released by
	// Guard.Execute after the command's log record is written.
	scoped bool
}

// Suspend waits for in-flight commands to drain and blocks new ones until
// Resume is called.
func (l *SuspendLock) Suspend() *Suspension {
	l.rw.Lock()
	l.suspended.Store(true)
	return &Suspension{l: l}
}

// Resume releases the suspension. Extra calls are no-ops, as are calls on a
// suspension taken through Guard.Suspend inside Execute.
func (s *Suspension) Resume() {
	if s.scoped {
		return
	}
	s.release()
}

func (s *Suspension) release() {
	s.once.Do(func() {
		s.l.suspended.Store(false)
		s.l.rw.Unlock()
	})
}

// Suspended reports whether a suspension is currently held.
func (l *SuspendLock) Suspended() bool {
	return l.suspended.Load()
}
