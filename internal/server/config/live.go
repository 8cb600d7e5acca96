package config

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Live is the running configuration. Readers call Load on every request;
// Reload swaps in a new snapshot.
//
// Only auth, engine and log.level take effect on reload. Other sections are
// fixed at startup and changes to them are reported back as ignored.
type Live struct {
	cur atomic.Pointer[ServerConfig]

	mu        sync.Mutex
	callbacks []func(old, cur *ServerConfig)
}

// NewLive wraps an already verified configuration.
func NewLive(cfg *ServerConfig) *Live {
	l := &Live{}
	l.cur.Store(cfg)
	return l
}

// Load returns the current snapshot. Callers must not modify it.
func (l *Live) Load() *ServerConfig {
	return l.cur.Load()
}

// OnChange registers a callback run after each successful Reload.
func (l *Live) OnChange(fn func(old, cur *ServerConfig)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callbacks = append(l.callbacks, fn)
}

// Reload applies the reloadable sections of next. It returns the names of
// the sections that changed but need a restart.
func (l *Live) Reload(next *ServerConfig) ([]string, error) {
	if next == nil {
		return nil, errors.New("config: nil reload")
	}
	if err := verifyAuth(&next.Auth); err != nil {
		return nil, err
	}
	if err := verifyLog(&next.Log); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.cur.Load()
	merged := *old
	merged.Auth = next.Auth
	merged.Auth.UserBlacklist = append([]string(nil), next.Auth.UserBlacklist...)
	merged.Engine = next.Engine
	merged.Log.Level = next.Log.Level

	var ignored []string
	if next.Server != old.Server {
		ignored = append(ignored, "server")
	}
	if next.Storage != old.Storage {
		ignored = append(ignored, "storage")
	}
	if next.Log.Format != old.Log.Format {
		ignored = append(ignored, "log.format")
	}

	l.cur.Store(&merged)
	for _, fn := range l.callbacks {
		fn(old, &merged)
	}
	return ignored, nil
}
