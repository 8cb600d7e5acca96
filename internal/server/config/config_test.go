package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Redis.Addr != DefaultRedisAddr {
		t.Errorf("Redis.Addr = %q, want %q", cfg.Server.Redis.Addr, DefaultRedisAddr)
	}
	if cfg.Server.Redis.MaxOutputBuffer != 128<<20 {
		t.Errorf("Redis.MaxOutputBuffer = %d, want %d", cfg.Server.Redis.MaxOutputBuffer, 128<<20)
	}
	if cfg.Server.Redis.RateLimit != 0 {
		t.Errorf("Redis.RateLimit = %d, want 0", cfg.Server.Redis.RateLimit)
	}
	if cfg.Storage.Engine != EngineMemory {
		t.Errorf("Storage.Engine = %q, want %q", cfg.Storage.Engine, EngineMemory)
	}
	if cfg.Storage.WALSyncMode != WALSyncModeSync {
		t.Errorf("Storage.WALSyncMode = %q, want %q", cfg.Storage.WALSyncMode, WALSyncModeSync)
	}
	if cfg.Storage.SnapshotKeep != DefaultSnapshotKeep {
		t.Errorf("SnapshotKeep = %d, want %d", cfg.Storage.SnapshotKeep, DefaultSnapshotKeep)
	}
	if cfg.Engine.SlowlogThreshold() != 10*time.Millisecond {
		t.Errorf("SlowlogThreshold() = %v, want 10ms", cfg.Engine.SlowlogThreshold())
	}
	if cfg.Log.Level != DefaultLogLevel || cfg.Log.Format != DefaultLogFormat {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestEngineSection_SlowlogThreshold(t *testing.T) {
	tests := []struct {
		micros int64
		want   time.Duration
	}{
		{0, 0},
		{1, time.Microsecond},
		{250000, 250 * time.Millisecond},
		{-1, -time.Microsecond},
	}
	for _, tt := range tests {
		e := EngineSection{SlowlogSlowerThan: tt.micros}
		if got := e.SlowlogThreshold(); got != tt.want {
			t.Errorf("SlowlogThreshold(%d) = %v, want %v", tt.micros, got, tt.want)
		}
	}
}

// ============================================================
// Verify
// ============================================================

func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr string
	}{
		{"defaults", func(*ServerConfig) {}, ""},
		{"badger engine", func(c *ServerConfig) { c.Storage.Engine = EngineBadger }, ""},
		{"metrics disabled", func(c *ServerConfig) { c.Server.Metrics.Addr = "" }, ""},
		{"missing redis addr", func(c *ServerConfig) { c.Server.Redis.Addr = "" }, "server.redis.addr is required"},
		{"malformed redis addr", func(c *ServerConfig) { c.Server.Redis.Addr = "localhost" }, "server.redis.addr"},
		{"port conflict", func(c *ServerConfig) { c.Server.Metrics.Addr = c.Server.Redis.Addr }, "conflicts"},
		{"negative rate limit", func(c *ServerConfig) { c.Server.Redis.RateLimit = -1 }, "rate_limit"},
		{"negative timeout", func(c *ServerConfig) { c.Server.Redis.IdleTimeout = -time.Second }, "timeouts"},
		{"same passwords", func(c *ServerConfig) {
			c.Auth.RequirePass = "p"
			c.Auth.UserPass = "p"
		}, "must differ"},
		{"empty blacklist entry", func(c *ServerConfig) { c.Auth.UserBlacklist = []string{"flushall", " "} }, "empty command"},
		{"unknown engine", func(c *ServerConfig) { c.Storage.Engine = "rocks" }, "storage.engine"},
		{"unknown sync mode", func(c *ServerConfig) { c.Storage.WALSyncMode = "never" }, "wal_sync_mode"},
		{"batch without interval", func(c *ServerConfig) {
			c.Storage.WALSyncMode = WALSyncModeBatch
			c.Storage.WALSyncInterval = 0
		}, "wal_sync_interval"},
		{"missing data dir", func(c *ServerConfig) { c.Storage.DataDir = "" }, "data_dir is required"},
		{"zero snapshot keep", func(c *ServerConfig) { c.Storage.SnapshotKeep = 0 }, "snapshot_keep"},
		{"bad log format", func(c *ServerConfig) { c.Log.Format = "xml" }, "log.format"},
		{"bad log level", func(c *ServerConfig) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Storage.DataDir = filepath.Join(t.TempDir(), "data")
			tt.mutate(cfg)

			err := Verify(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Verify() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Verify() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestVerify_CreatesDataDir(t *testing.T) {
	cfg := Default()
	cfg.Storage.DataDir = filepath.Join(t.TempDir(), "a", "b")
	if err := Verify(cfg); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if err := Verify(cfg); err != nil {
		t.Errorf("Verify() on existing dir error = %v", err)
	}
}

// ============================================================
// Sanitize
// ============================================================

func TestSanitize(t *testing.T) {
	cfg := Default()
	cfg.Auth.RequirePass = "admin-secret-123"
	cfg.Auth.UserPass = "abc"
	cfg.Auth.UserBlacklist = []string{"flushall"}

	s := Sanitize(cfg)

	if cfg.Auth.RequirePass != "admin-secret-123" || cfg.Auth.UserPass != "abc" {
		t.Error("Sanitize() modified the original")
	}
	if s.Auth.RequirePass != "ad************23" {
		t.Errorf("RequirePass = %q", s.Auth.RequirePass)
	}
	if s.Auth.UserPass != "****" {
		t.Errorf("UserPass = %q, want ****", s.Auth.UserPass)
	}

	s.Auth.UserBlacklist[0] = "changed"
	if cfg.Auth.UserBlacklist[0] != "flushall" {
		t.Error("Sanitize() shares the blacklist slice")
	}
}

func TestSanitize_EmptyPasswords(t *testing.T) {
	s := Sanitize(Default())
	if s.Auth.RequirePass != "" || s.Auth.UserPass != "" {
		t.Errorf("empty passwords should stay empty: %+v", s.Auth)
	}
}

// ============================================================
// Live
// ============================================================

func TestLive_Reload(t *testing.T) {
	base := Default()
	live := NewLive(base)

	var calls int
	live.OnChange(func(old, cur *ServerConfig) {
		calls++
		if old != base {
			t.Error("OnChange() old is not the previous snapshot")
		}
	})

	next := Default()
	next.Auth.RequirePass = "new"
	next.Auth.UserBlacklist = []string{"flushall"}
	next.Engine.ReadOnly = true
	next.Engine.SlowlogSlowerThan = -1
	next.Log.Level = "debug"

	ignored, err := live.Reload(next)
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if len(ignored) != 0 {
		t.Errorf("Reload() ignored = %v, want none", ignored)
	}
	if calls != 1 {
		t.Errorf("OnChange() calls = %d, want 1", calls)
	}

	cur := live.Load()
	if cur.Auth.RequirePass != "new" || !cur.Engine.ReadOnly || cur.Log.Level != "debug" {
		t.Errorf("Load() = %+v, reloadable sections not applied", cur)
	}
	if base.Engine.ReadOnly {
		t.Error("Reload() modified the previous snapshot")
	}

	next.Auth.UserBlacklist[0] = "changed"
	if cur.Auth.UserBlacklist[0] != "flushall" {
		t.Error("Reload() shares the blacklist slice with its input")
	}
}

func TestLive_ReloadIgnoresStartupSections(t *testing.T) {
	live := NewLive(Default())

	next := Default()
	next.Server.Redis.Addr = "127.0.0.1:7000"
	next.Storage.Engine = EngineBadger
	next.Log.Format = "text"
	next.Engine.ReadOnly = true

	ignored, err := live.Reload(next)
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	want := []string{"server", "storage", "log.format"}
	if strings.Join(ignored, ",") != strings.Join(want, ",") {
		t.Errorf("Reload() ignored = %v, want %v", ignored, want)
	}

	cur := live.Load()
	if cur.Server.Redis.Addr != DefaultRedisAddr || cur.Storage.Engine != EngineMemory || cur.Log.Format != DefaultLogFormat {
		t.Errorf("startup sections changed: %+v", cur)
	}
	if !cur.Engine.ReadOnly {
		t.Error("engine section not applied")
	}
}

func TestLive_ReloadRejectsInvalid(t *testing.T) {
	live := NewLive(Default())

	next := Default()
	next.Log.Level = "loud"
	if _, err := live.Reload(next); err == nil {
		t.Error("Reload() expected error for invalid log level")
	}
	if _, err := live.Reload(nil); err == nil {
		t.Error("Reload(nil) expected error")
	}
	if live.Load().Log.Level != DefaultLogLevel {
		t.Error("failed Reload() changed the snapshot")
	}
}
